// Package config reads gateway configuration from the environment.
// cmd/server loads an optional .env file first, so every setting can live
// there during development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full runtime configuration.
type Config struct {
	Server       Server
	Redis        RedisConfig
	Postgres     PostgresConfig
	Grader       GraderConfig
	Detector     DetectorConfig
	Verification VerificationConfig
	Kafka        KafkaConfig
	Admin        AdminConfig
	Logging      LoggingConfig
	Sentry       SentryConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string
	ShutdownTimeout   time.Duration
	RestoreRatePerMin int
	RestoreRateBurst  int
	DisableRateLimit  bool
}

// RedisConfig configures the token vault backend. Empty URL selects the
// in-memory vault.
type RedisConfig struct {
	URL          string
	TokenTTL     time.Duration
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the API key, audit and verification stores.
// Empty DSN selects in-memory stores.
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	EnsureSchema bool
}

// GraderConfig configures the LLM judge.
type GraderConfig struct {
	OllamaURL        string
	Model            string
	Timeout          time.Duration
	PromptVersion    string
	FewShotExamples  int
	FailureThreshold int
	SuccessThreshold int
	Cooldown         time.Duration
}

// DetectorConfig selects and configures the entity detector.
type DetectorConfig struct {
	Kind           string // regex | presidio
	PresidioURL    string
	Language       string
	ScoreThreshold float64
}

// VerificationConfig configures the background verification pool and tiers.
type VerificationConfig struct {
	Workers        int
	QueueSize      int
	DrainTimeout   time.Duration
	LogThreshold   float64
	AlertThreshold float64
	PurgeThreshold float64
}

// KafkaConfig configures the alert producer. No brokers disables it.
type KafkaConfig struct {
	Brokers     []string
	AlertTopic  string
	EnsureTopic bool
}

// AdminConfig configures admin bearer tokens.
type AdminConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN         string
	Environment string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var errs []string
	p := parser{errs: &errs}

	cfg := Config{
		Server: Server{
			Addr:              p.str("IRONCLAD_ADDR", ":8080"),
			ShutdownTimeout:   p.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
			RestoreRatePerMin: p.integer("RESTORE_RATE_PER_MINUTE", 60),
			RestoreRateBurst:  p.integer("RESTORE_RATE_BURST", 10),
			DisableRateLimit:  p.boolean("DISABLE_RATE_LIMITING", false),
		},
		Redis: RedisConfig{
			URL:          p.str("REDIS_URL", ""),
			TokenTTL:     time.Duration(p.integer("REDIS_TTL", 86400)) * time.Second,
			PoolSize:     p.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			DSN:          p.str("DATABASE_URL", ""),
			MaxOpenConns: p.integer("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns: p.integer("DATABASE_MAX_IDLE_CONNS", 5),
			EnsureSchema: p.boolean("DATABASE_ENSURE_SCHEMA", true),
		},
		Grader: GraderConfig{
			OllamaURL:        p.str("OLLAMA_URL", "http://localhost:11434"),
			Model:            p.str("OLLAMA_MODEL", "phi3"),
			Timeout:          p.duration("GRADER_TIMEOUT", 30*time.Second),
			PromptVersion:    p.str("GRADER_PROMPT_VERSION", "v3_few_shot"),
			FewShotExamples:  p.integer("GRADER_FEW_SHOT_EXAMPLES", 3),
			FailureThreshold: p.integer("GRADER_BREAKER_FAILURES", 5),
			SuccessThreshold: p.integer("GRADER_BREAKER_SUCCESSES", 2),
			Cooldown:         p.duration("GRADER_BREAKER_COOLDOWN", 30*time.Second),
		},
		Detector: DetectorConfig{
			Kind:           strings.ToLower(p.str("DETECTOR", "regex")),
			PresidioURL:    p.str("PRESIDIO_URL", "http://localhost:5002"),
			Language:       p.str("PRESIDIO_LANGUAGE", "en"),
			ScoreThreshold: p.float("PRESIDIO_SCORE_THRESHOLD", 0.0),
		},
		Verification: VerificationConfig{
			Workers:        p.integer("VERIFY_WORKERS", 4),
			QueueSize:      p.integer("VERIFY_QUEUE_SIZE", 256),
			DrainTimeout:   p.duration("VERIFY_DRAIN_TIMEOUT", 10*time.Second),
			LogThreshold:   p.float("VERIFY_LOG_THRESHOLD", 0.3),
			AlertThreshold: p.float("VERIFY_ALERT_THRESHOLD", 0.6),
			PurgeThreshold: p.float("VERIFY_PURGE_THRESHOLD", 0.9),
		},
		Kafka: KafkaConfig{
			Brokers:     p.list("KAFKA_BROKERS"),
			AlertTopic:  p.str("VERIFY_ALERT_TOPIC", "ironclad.verification.alerts"),
			EnsureTopic: p.boolean("KAFKA_ENSURE_TOPIC", true),
		},
		Admin: AdminConfig{
			JWTSecret: p.str("ADMIN_JWT_SECRET", ""),
			Issuer:    p.str("ADMIN_JWT_ISSUER", "ironclad"),
			TokenTTL:  p.duration("ADMIN_TOKEN_TTL", 12*time.Hour),
		},
		Logging: LoggingConfig{
			Level:  p.str("LOG_LEVEL", "info"),
			Format: p.str("LOG_FORMAT", "json"),
		},
		Sentry: SentryConfig{
			DSN:         p.str("SENTRY_DSN", ""),
			Environment: p.str("SENTRY_ENVIRONMENT", "development"),
		},
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field invariants. Tier thresholds must be ordered
// log <= alert <= purge and lie in [0,1].
func (c Config) Validate() error {
	v := c.Verification
	for name, val := range map[string]float64{
		"VERIFY_LOG_THRESHOLD":   v.LogThreshold,
		"VERIFY_ALERT_THRESHOLD": v.AlertThreshold,
		"VERIFY_PURGE_THRESHOLD": v.PurgeThreshold,
	} {
		if val < 0 || val > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, val)
		}
	}
	if v.LogThreshold > v.AlertThreshold || v.AlertThreshold > v.PurgeThreshold {
		return fmt.Errorf("verification thresholds must satisfy log <= alert <= purge, got %v/%v/%v",
			v.LogThreshold, v.AlertThreshold, v.PurgeThreshold)
	}
	if v.Workers < 1 {
		return fmt.Errorf("VERIFY_WORKERS must be positive")
	}
	if v.QueueSize < 1 {
		return fmt.Errorf("VERIFY_QUEUE_SIZE must be positive")
	}
	if c.Redis.TokenTTL <= 0 {
		return fmt.Errorf("REDIS_TTL must be positive")
	}
	if c.Grader.Timeout <= 0 {
		return fmt.Errorf("GRADER_TIMEOUT must be positive")
	}
	switch c.Detector.Kind {
	case "regex", "presidio":
	default:
		return fmt.Errorf("DETECTOR must be regex or presidio, got %q", c.Detector.Kind)
	}
	if c.Admin.JWTSecret != "" && len(c.Admin.JWTSecret) < 32 {
		return fmt.Errorf("ADMIN_JWT_SECRET must be at least 32 bytes")
	}
	return nil
}

type parser struct {
	errs *[]string
}

func (p parser) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (p parser) integer(key string, def int) int {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Sprintf("%s: %q is not an integer", key, raw))
		return def
	}
	return n
}

func (p parser) float(key string, def float64) float64 {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Sprintf("%s: %q is not a number", key, raw))
		return def
	}
	return f
}

func (p parser) boolean(key string, def bool) bool {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Sprintf("%s: %q is not a boolean", key, raw))
		return def
	}
	return b
}

// duration accepts Go duration strings ("30s") or bare seconds ("30").
func (p parser) duration(key string, def time.Duration) time.Duration {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Sprintf("%s: %q is not a duration", key, raw))
		return def
	}
	return d
}

func (p parser) list(key string) []string {
	raw := p.str(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
