package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/remlyo/remlyo-api/internal/application"
	"github.com/remlyo/remlyo-api/internal/domain"
)

// Config is the resolved runtime configuration for the API, worker and CLI.
type Config struct {
	ServiceID string
	LogLevel  slog.Level

	HTTPPort       int
	GRPCPort       int
	CORSOrigins    []string
	TrustedProxies []string

	DatabaseURL string
	MaxDBConns  int32
	RedisURL    string

	KafkaBrokers     []string
	KafkaTopicPrefix string

	JWTPrivateKeyPEM  string
	JWTPublicKeyPEM   string
	JWTKeyID          string
	AllowEphemeralJWT bool

	BcryptCost int

	TokenTTL           time.Duration
	SessionTTL         time.Duration
	SessionAbsoluteTTL time.Duration
	LockoutDuration    time.Duration
	FailedThreshold    int
	VerifyEmailLimit   int
	VerifyEmailWindow  time.Duration
	FlowCacheTTL       time.Duration
	ConsentVersion     string
	IdempotencyKeepFor time.Duration

	Plans               []domain.Plan
	PastDueGrace        time.Duration
	CommissionRate      float64
	StripeSecretKey     string
	StripeWebhookSecret string

	GeminiAPIKey      string
	GeminiModel       string
	AIDailyQuota      int
	AIGenerateTimeout time.Duration

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxClaimTTL     time.Duration
	OutboxMaxRetries   int
	ExpiryInterval     time.Duration
	ExpiryBatchSize    int
}

// configFile mirrors the YAML schema used by configs/default.yaml.
type configFile struct {
	Service struct {
		ID             string   `yaml:"id"`
		HTTPPort       int      `yaml:"http_port"`
		GRPCPort       int      `yaml:"grpc_port"`
		LogLevel       string   `yaml:"log_level"`
		CORSOrigins    []string `yaml:"cors_origins"`
		TrustedProxies []string `yaml:"trusted_proxies"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL      string   `yaml:"postgres_url"`
		RedisURL         string   `yaml:"redis_url"`
		KafkaBrokers     []string `yaml:"kafka_brokers"`
		KafkaTopicPrefix string   `yaml:"kafka_topic_prefix"`
	} `yaml:"dependencies"`
	Auth struct {
		TokenTTL        string `yaml:"token_ttl"`
		SessionTTL      string `yaml:"session_ttl"`
		LockoutDuration string `yaml:"lockout_duration"`
		FailedThreshold int    `yaml:"failed_login_threshold"`
		ConsentVersion  string `yaml:"consent_version"`
	} `yaml:"auth"`
	Billing struct {
		Plans          []domain.Plan `yaml:"plans"`
		PastDueGrace   string        `yaml:"past_due_grace"`
		CommissionRate float64       `yaml:"commission_rate"`
	} `yaml:"billing"`
	AI struct {
		Model      string `yaml:"model"`
		DailyQuota int    `yaml:"daily_quota"`
		Timeout    string `yaml:"timeout"`
	} `yaml:"ai"`
	Worker struct {
		OutboxPollInterval string `yaml:"outbox_poll_interval"`
		OutboxBatchSize    int    `yaml:"outbox_batch_size"`
		ExpiryInterval     string `yaml:"expiry_interval"`
		ExpiryBatchSize    int    `yaml:"expiry_batch_size"`
	} `yaml:"worker"`
}

func defaultPlans() []domain.Plan {
	return []domain.Plan{
		{PlanID: "basic_monthly", Name: "Basic", AmountCents: 999, Currency: "usd", Interval: "month"},
		{PlanID: "premium_monthly", Name: "Premium", AmountCents: 1999, Currency: "usd", Interval: "month"},
		{PlanID: "premium_yearly", Name: "Premium (yearly)", AmountCents: 19900, Currency: "usd", Interval: "year"},
	}
}

// LoadConfig resolves configuration in priority order: defaults -> file -> .env -> env.
// Values already present in the process environment win over .env entries.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:          "remlyo-api",
		LogLevel:           slog.LevelInfo,
		HTTPPort:           8080,
		GRPCPort:           9090,
		MaxDBConns:         20,
		KafkaTopicPrefix:   "remlyo",
		JWTKeyID:           "remlyo-key-1",
		AllowEphemeralJWT:  true,
		BcryptCost:         12,
		TokenTTL:           24 * time.Hour,
		SessionTTL:         7 * 24 * time.Hour,
		SessionAbsoluteTTL: 30 * 24 * time.Hour,
		LockoutDuration:    15 * time.Minute,
		FailedThreshold:    5,
		VerifyEmailLimit:   3,
		VerifyEmailWindow:  time.Hour,
		FlowCacheTTL:       30 * time.Second,
		ConsentVersion:     "1.0",
		IdempotencyKeepFor: 24 * time.Hour,
		Plans:              defaultPlans(),
		PastDueGrace:       3 * 24 * time.Hour,
		CommissionRate:     0.20,
		GeminiModel:        "gemini-2.5-flash",
		AIDailyQuota:       10,
		AIGenerateTimeout:  30 * time.Second,
		OutboxPollInterval: 2 * time.Second,
		OutboxBatchSize:    100,
		OutboxClaimTTL:     30 * time.Second,
		OutboxMaxRetries:   5,
		ExpiryInterval:     10 * time.Minute,
		ExpiryBatchSize:    500,
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := applyFile(&cfg, raw); err != nil {
			return Config{}, err
		}
	case !errors.Is(err, fs.ErrNotExist):
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg.ServiceID = envOrDefault("SERVICE_ID", cfg.ServiceID)
	cfg.LogLevel = envLevel("LOG_LEVEL", cfg.LogLevel)
	cfg.HTTPPort = envInt("PORT", envInt("HTTP_PORT", cfg.HTTPPort))
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.CORSOrigins = envCSV("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.TrustedProxies = envCSV("TRUSTED_PROXIES", cfg.TrustedProxies)

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("DATABASE_URL", cfg.DatabaseURL))
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopicPrefix = envOrDefault("KAFKA_TOPIC_PREFIX", cfg.KafkaTopicPrefix)

	cfg.JWTPrivateKeyPEM = envOrDefault("JWT_PRIVATE_KEY_PEM", cfg.JWTPrivateKeyPEM)
	cfg.JWTPublicKeyPEM = envOrDefault("JWT_PUBLIC_KEY_PEM", cfg.JWTPublicKeyPEM)
	cfg.JWTKeyID = envOrDefault("JWT_KEY_ID", cfg.JWTKeyID)
	cfg.AllowEphemeralJWT = envBool("JWT_ALLOW_EPHEMERAL", cfg.AllowEphemeralJWT)
	cfg.BcryptCost = envInt("BCRYPT_ROUNDS", cfg.BcryptCost)

	cfg.TokenTTL = envDuration("TOKEN_TTL", cfg.TokenTTL)
	cfg.SessionTTL = envDuration("SESSION_TTL", cfg.SessionTTL)
	cfg.SessionAbsoluteTTL = envDuration("SESSION_ABSOLUTE_TTL", cfg.SessionAbsoluteTTL)
	cfg.LockoutDuration = envDuration("ACCOUNT_LOCKOUT_DURATION", cfg.LockoutDuration)
	cfg.FailedThreshold = envInt("FAILED_LOGIN_THRESHOLD", cfg.FailedThreshold)
	cfg.VerifyEmailLimit = envInt("VERIFY_EMAIL_LIMIT", cfg.VerifyEmailLimit)
	cfg.ConsentVersion = envOrDefault("CONSENT_VERSION", cfg.ConsentVersion)

	cfg.PastDueGrace = envDuration("PAST_DUE_GRACE", cfg.PastDueGrace)
	cfg.CommissionRate = envFloat("AFFILIATE_COMMISSION_RATE", cfg.CommissionRate)
	cfg.StripeSecretKey = envOrDefault("STRIPE_SECRET_KEY", cfg.StripeSecretKey)
	cfg.StripeWebhookSecret = envOrDefault("STRIPE_WEBHOOK_SECRET", cfg.StripeWebhookSecret)

	cfg.GeminiAPIKey = envOrDefault("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.GeminiModel = envOrDefault("GEMINI_MODEL", cfg.GeminiModel)
	cfg.AIDailyQuota = envInt("AI_DAILY_QUOTA", cfg.AIDailyQuota)
	cfg.AIGenerateTimeout = envDuration("AI_TIMEOUT", cfg.AIGenerateTimeout)

	cfg.OutboxPollInterval = envDuration("OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxClaimTTL = envDuration("OUTBOX_CLAIM_TTL", cfg.OutboxClaimTTL)
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)
	cfg.ExpiryInterval = envDuration("EXPIRY_INTERVAL", cfg.ExpiryInterval)
	cfg.ExpiryBatchSize = envInt("EXPIRY_BATCH_SIZE", cfg.ExpiryBatchSize)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL")
	}
	if (cfg.JWTPrivateKeyPEM == "" || cfg.JWTPublicKeyPEM == "") && !cfg.AllowEphemeralJWT {
		return Config{}, fmt.Errorf("missing JWT_PRIVATE_KEY_PEM or JWT_PUBLIC_KEY_PEM")
	}
	if len(cfg.Plans) == 0 {
		return Config{}, fmt.Errorf("no subscription plans configured")
	}
	return cfg, nil
}

func applyFile(cfg *Config, raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if f.Service.ID != "" {
		cfg.ServiceID = f.Service.ID
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		cfg.GRPCPort = f.Service.GRPCPort
	}
	if f.Service.LogLevel != "" {
		cfg.LogLevel = parseLevel(f.Service.LogLevel, cfg.LogLevel)
	}
	if len(f.Service.CORSOrigins) > 0 {
		cfg.CORSOrigins = f.Service.CORSOrigins
	}
	if len(f.Service.TrustedProxies) > 0 {
		cfg.TrustedProxies = f.Service.TrustedProxies
	}
	if f.Dependencies.PostgresURL != "" {
		cfg.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if len(f.Dependencies.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = f.Dependencies.KafkaBrokers
	}
	if f.Dependencies.KafkaTopicPrefix != "" {
		cfg.KafkaTopicPrefix = f.Dependencies.KafkaTopicPrefix
	}
	if f.Auth.FailedThreshold > 0 {
		cfg.FailedThreshold = f.Auth.FailedThreshold
	}
	if f.Auth.ConsentVersion != "" {
		cfg.ConsentVersion = f.Auth.ConsentVersion
	}
	if len(f.Billing.Plans) > 0 {
		cfg.Plans = f.Billing.Plans
	}
	if f.Billing.CommissionRate > 0 {
		cfg.CommissionRate = f.Billing.CommissionRate
	}
	if f.AI.Model != "" {
		cfg.GeminiModel = f.AI.Model
	}
	if f.AI.DailyQuota > 0 {
		cfg.AIDailyQuota = f.AI.DailyQuota
	}
	if f.Worker.OutboxBatchSize > 0 {
		cfg.OutboxBatchSize = f.Worker.OutboxBatchSize
	}
	if f.Worker.ExpiryBatchSize > 0 {
		cfg.ExpiryBatchSize = f.Worker.ExpiryBatchSize
	}

	durations := []struct {
		raw string
		dst *time.Duration
		key string
	}{
		{f.Auth.TokenTTL, &cfg.TokenTTL, "auth.token_ttl"},
		{f.Auth.SessionTTL, &cfg.SessionTTL, "auth.session_ttl"},
		{f.Auth.LockoutDuration, &cfg.LockoutDuration, "auth.lockout_duration"},
		{f.Billing.PastDueGrace, &cfg.PastDueGrace, "billing.past_due_grace"},
		{f.AI.Timeout, &cfg.AIGenerateTimeout, "ai.timeout"},
		{f.Worker.OutboxPollInterval, &cfg.OutboxPollInterval, "worker.outbox_poll_interval"},
		{f.Worker.ExpiryInterval, &cfg.ExpiryInterval, "worker.expiry_interval"},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	return nil
}

// ServiceConfig projects the runtime configuration onto the application service settings.
func (c Config) ServiceConfig() application.Config {
	return application.Config{
		TokenTTL:             c.TokenTTL,
		SessionTTL:           c.SessionTTL,
		SessionAbsoluteTTL:   c.SessionAbsoluteTTL,
		FailedLoginThreshold: c.FailedThreshold,
		LockoutDuration:      c.LockoutDuration,
		VerifyEmailLimit:     c.VerifyEmailLimit,
		VerifyEmailWindow:    c.VerifyEmailWindow,
		FlowCacheTTL:         c.FlowCacheTTL,
		ConsentVersion:       c.ConsentVersion,
		Plans:                c.Plans,
		PastDueGrace:         c.PastDueGrace,
		CommissionRate:       c.CommissionRate,
		AIDailyQuota:         c.AIDailyQuota,
		AIGenerateTimeout:    c.AIGenerateTimeout,
		IdempotencyKeepFor:   c.IdempotencyKeepFor,
		ExpiryBatchSize:      c.ExpiryBatchSize,
	}
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envFloat(name string, fallback float64) float64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

// envDuration accepts Go duration strings ("15m", "72h").
func envDuration(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}

func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}

func envLevel(name string, fallback slog.Level) slog.Level {
	return parseLevel(os.Getenv(name), fallback)
}

func parseLevel(raw string, fallback slog.Level) slog.Level {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return fallback
	}
	return lvl
}
