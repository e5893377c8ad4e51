package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/paybridge/internal/config"
	"github.com/noah-isme/paybridge/internal/events"
	"github.com/noah-isme/paybridge/internal/gateway"
	"github.com/noah-isme/paybridge/internal/health"
	"github.com/noah-isme/paybridge/internal/lock"
	"github.com/noah-isme/paybridge/internal/obs"
	"github.com/noah-isme/paybridge/internal/ratelimit"
	"github.com/noah-isme/paybridge/internal/store"
)

const (
	serviceName = "paybridge-api"
	gatewayID   = "custom_gateway"
)

type orderStore interface {
	gateway.Host
	events.EventStore
}

func tracingConfig(cfg *config.Config) obs.TracingConfig {
	return obs.TracingConfig{
		ServiceName:   serviceName,
		Environment:   cfg.AppEnv,
		GatewayID:     gatewayID,
		StoreDriver:   cfg.StoreDriver,
		Exporter:      cfg.Tracing.Exporter,
		Endpoint:      cfg.Tracing.Endpoint,
		SamplingRatio: cfg.Tracing.SamplingRatio,
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "paybridge")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := cfg.Tracing.Enabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), tracingConfig(cfg))
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	probes := map[string]health.Probe{
		"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}

	var orders orderStore
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn().Msg("using in-memory order store; orders are lost on restart")
		orders = store.NewMemory(cfg.Store.OrderReceivedURL)
	default:
		if cfg.MigrateOnStart {
			if err := store.Migrate(cfg.DatabaseURL); err != nil {
				logger.Fatal().Err(err).Msg("run migrations")
			}
			logger.Info().Msg("migrations applied")
		}
		poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse database config")
		}
		poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
		if poolConfig.ConnConfig.RuntimeParams == nil {
			poolConfig.ConnConfig.RuntimeParams = map[string]string{}
		}
		poolConfig.ConnConfig.RuntimeParams["application_name"] = serviceName

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect database")
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Fatal().Err(err).Msg("ping database")
		}
		probes["database"] = pool.Ping
		orders = &store.Postgres{DB: pool, ReceivedBase: cfg.Store.OrderReceivedURL}
	}

	bus := &events.Bus{
		Store:     orders,
		Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}},
	}
	gatewayLogger := logger.With().Str("component", "gateway").Logger()

	builder, err := gateway.NewBuilder(gateway.BuilderConfig{
		Host:        orders,
		Secret:      cfg.Gateway.SecretKey,
		ExternalURL: cfg.Gateway.ExternalURL,
		ReturnURL:   cfg.Gateway.ReturnURL,
		Enabled:     cfg.Gateway.Enabled,
		Title:       cfg.Gateway.Title,
		Events:      bus,
		Logger:      gatewayLogger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise payment redirect builder")
	}
	verifier, err := gateway.NewVerifier(gateway.VerifierConfig{
		Host:   orders,
		Secret: cfg.Gateway.SecretKey,
		Locker: lock.Locker{
			R:            redisClient,
			Prefix:       "paybridge:lock:",
			RetryBackoff: 50 * time.Millisecond,
			MaxWait:      cfg.Callback.LockWait,
		},
		LockTTL: cfg.Callback.LockTTL,
		Title:   cfg.Gateway.Title,
		Events:  bus,
		Logger:  gatewayLogger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise payment callback verifier")
	}

	callbackLimiter, err := ratelimit.NewRedisLimiter(redisClient, "paybridge:ratelimit:callback", cfg.Callback.RateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise callback rate limiter")
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", "")), nil)
	}

	handler := newRouter(routes{
		Logger:         logger,
		Metrics:        httpMetrics,
		MetricsEnabled: metricsEnabled,
		Tracing:        tracingEnabled,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		HSTS:           strings.HasPrefix(cfg.PublicBaseURL, "https://"),
		Pprof:          envBool("OBS_ENABLE_PPROF", false),
		PprofUser:      envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", ""),
		PprofPass:      envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", ""),
		Health: health.Handler{
			Probes:  probes,
			Timeout: envDurationMillis("HEALTH_READY_TIMEOUT_MS", 500),
		},
		Gateway: &gateway.Handler{
			Builder:  builder,
			Verifier: verifier,
			Method: gateway.MethodInfo{
				ID:           gatewayID,
				Title:        cfg.Gateway.Title,
				Description:  cfg.Gateway.Description,
				Image:        cfg.Gateway.PaymentImage,
				Instructions: cfg.Gateway.Instructions,
				Enabled:      cfg.Gateway.Enabled,
			},
			CheckoutURL: cfg.Store.CheckoutURL,
		},
		CallbackLimit: ratelimit.Handler{
			Limiter: callbackLimiter,
			Key:     ratelimit.ClientIPKey,
			OnError: func(err error) {
				logger.Warn().Err(err).Msg("callback rate limiter unavailable")
			},
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Str("store", cfg.StoreDriver).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}
