package main

import (
	"crypto/subtle"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/paybridge/internal/config"
	"github.com/noah-isme/paybridge/internal/gateway"
	"github.com/noah-isme/paybridge/internal/health"
	"github.com/noah-isme/paybridge/internal/obs"
	"github.com/noah-isme/paybridge/internal/ratelimit"
	"github.com/noah-isme/paybridge/internal/security"
)

type routes struct {
	Logger         zerolog.Logger
	Metrics        *obs.HTTPMetrics
	MetricsEnabled bool
	Tracing        bool
	CORSOrigins    []string
	HSTS           bool

	Pprof     bool
	PprofUser string
	PprofPass string

	Health        health.Handler
	Gateway       *gateway.Handler
	CallbackLimit ratelimit.Handler
}

func newRouter(rt routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if rt.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if rt.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: rt.Metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: rt.Logger}.Middleware)
	r.Use(security.Headers{NoStore: true, EnableHSTS: rt.HSTS}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(rt.CORSOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	if rt.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if rt.Pprof {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), rt.PprofUser, rt.PprofPass))
	}

	r.Get("/health/live", rt.Health.Live)
	r.Get("/health/ready", rt.Health.Ready)

	r.Group(func(cb chi.Router) {
		cb.Use(rt.CallbackLimit.Middleware)
		cb.Use(security.BodyLimit{Max: security.DefaultCallbackBodyLimit}.Middleware)
		cb.Get(config.CallbackPath, rt.Gateway.Callback)
		cb.Post(config.CallbackPath, rt.Gateway.Callback)
		cb.Get("/api/v1/payments/callback", rt.Gateway.Callback)
		cb.Post("/api/v1/payments/callback", rt.Gateway.Callback)
	})

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/payment-method", rt.Gateway.PaymentMethod)
		v.Post("/orders/{orderId}/pay", rt.Gateway.Pay)
	})
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
