package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Store drivers understood by the API entrypoint.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// CallbackPath is the public route the payment processor calls back on.
const CallbackPath = "/process_custom_payment_response"

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	StoreDriver        string `validate:"oneof=postgres memory"`
	DatabaseURL        string `validate:"required_if=StoreDriver postgres"`
	MigrateOnStart     bool
	RedisURL           string `validate:"required"`
	PublicBaseURL      string `validate:"required,http_url"`
	CORSAllowedOrigins []string

	Gateway  GatewayConfig
	Store    StoreConfig
	Callback CallbackConfig
	Tracing  TracingConfig
}

// GatewayConfig mirrors the payment method settings of the storefront.
type GatewayConfig struct {
	Enabled      bool
	Title        string
	Description  string
	PaymentImage string `validate:"omitempty,http_url"`
	Instructions string
	ExternalURL  string `validate:"required,http_url"`
	SecretKey    string `validate:"required"`
	ReturnURL    string `validate:"omitempty,http_url"`
}

// StoreConfig holds the storefront URLs the callback redirects buyers to.
type StoreConfig struct {
	CheckoutURL      string `validate:"omitempty,http_url"`
	OrderReceivedURL string `validate:"omitempty,http_url"`
}

// CallbackConfig tunes the inbound callback endpoint.
type CallbackConfig struct {
	LockTTL   time.Duration
	LockWait  time.Duration
	RateLimit string
}

// TracingConfig selects the span exporter.
type TracingConfig struct {
	Enabled       bool
	Exporter      string  `validate:"oneof=otlp none off"`
	Endpoint      string  `validate:"omitempty,http_url"`
	SamplingRatio float64 `validate:"gte=0,lte=1"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	publicBase := strings.TrimRight(valueOrDefault(k.String("PUBLIC_BASE_URL"), "http://localhost:8080"), "/")
	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		StoreDriver:        strings.ToLower(valueOrDefault(k.String("STORE_DRIVER"), StoreDriverPostgres)),
		DatabaseURL:        k.String("DATABASE_URL"),
		MigrateOnStart:     parseBool(k.String("MIGRATE_ON_START")),
		RedisURL:           k.String("REDIS_URL"),
		PublicBaseURL:      publicBase,
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		Gateway: GatewayConfig{
			Enabled:      parseBoolDefault(k.String("GATEWAY_ENABLED"), true),
			Title:        valueOrDefault(k.String("GATEWAY_TITLE"), "Custom Payment Gateway"),
			Description:  valueOrDefault(k.String("GATEWAY_DESCRIPTION"), "Pay using our custom payment gateway."),
			PaymentImage: strings.TrimSpace(k.String("GATEWAY_PAYMENT_IMAGE")),
			Instructions: k.String("GATEWAY_INSTRUCTIONS"),
			ExternalURL:  strings.TrimSpace(k.String("GATEWAY_EXTERNAL_URL")),
			SecretKey:    k.String("GATEWAY_SECRET_KEY"),
			ReturnURL:    valueOrDefault(k.String("GATEWAY_RETURN_URL"), publicBase+CallbackPath),
		},
		Store: StoreConfig{
			CheckoutURL:      valueOrDefault(k.String("STORE_CHECKOUT_URL"), publicBase+"/checkout"),
			OrderReceivedURL: valueOrDefault(k.String("STORE_ORDER_RECEIVED_URL"), publicBase+"/checkout/order-received"),
		},
		Callback: CallbackConfig{
			LockTTL:   parseDuration(k.String("CALLBACK_LOCK_TTL"), "10s"),
			LockWait:  parseDuration(k.String("CALLBACK_LOCK_WAIT"), "3s"),
			RateLimit: valueOrDefault(k.String("CALLBACK_RATE_LIMIT"), "120-M"),
		},
		Tracing: TracingConfig{
			Enabled:       parseBoolDefault(k.String("OBS_ENABLE_TRACING"), true),
			Exporter:      strings.ToLower(valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp")),
			Endpoint:      strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio: parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
		},
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, describeValidation(err)
	}
	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

var envNames = map[string]string{
	"StoreDriver":      "STORE_DRIVER",
	"DatabaseURL":      "DATABASE_URL",
	"RedisURL":         "REDIS_URL",
	"PublicBaseURL":    "PUBLIC_BASE_URL",
	"PaymentImage":     "GATEWAY_PAYMENT_IMAGE",
	"ExternalURL":      "GATEWAY_EXTERNAL_URL",
	"SecretKey":        "GATEWAY_SECRET_KEY",
	"ReturnURL":        "GATEWAY_RETURN_URL",
	"CheckoutURL":      "STORE_CHECKOUT_URL",
	"OrderReceivedURL": "STORE_ORDER_RECEIVED_URL",
	"Exporter":         "OBS_TRACING_EXPORTER",
	"Endpoint":         "OBS_OTLP_ENDPOINT",
	"SamplingRatio":    "OBS_TRACING_SAMPLING_RATIO",
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := envNames[fe.Field()]
		if name == "" {
			name = fe.Namespace()
		}
		switch fe.Tag() {
		case "required", "required_if":
			msgs = append(msgs, name+" is required")
		case "http_url":
			msgs = append(msgs, name+" must be an absolute http(s) URL")
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", name, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
