package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ironclad/internal/admintoken"
	keyhandler "ironclad/internal/apikeys/handler"
	keyservice "ironclad/internal/apikeys/service"
	keystore "ironclad/internal/apikeys/store"
	"ironclad/internal/audit"
	audithandler "ironclad/internal/audit/handler"
	auditstore "ironclad/internal/audit/store"
	"ironclad/internal/detector"
	"ironclad/internal/gateway"
	gatewayhandler "ironclad/internal/gateway/handler"
	"ironclad/internal/grader"
	"ironclad/internal/platform/config"
	"ironclad/internal/platform/kafka"
	"ironclad/internal/platform/metrics"
	"ironclad/internal/platform/postgres"
	"ironclad/internal/platform/redis"
	"ironclad/internal/platform/sentry"
	"ironclad/internal/policy"
	"ironclad/internal/redaction"
	"ironclad/internal/restoration"
	restorehandler "ironclad/internal/restoration/handler"
	"ironclad/internal/vault"
	"ironclad/internal/verification"
	verifyhandler "ironclad/internal/verification/handler"
	"ironclad/pkg/platform/circuit"
	"ironclad/pkg/platform/httputil"
	"ironclad/pkg/platform/middleware/admin"
	"ironclad/pkg/platform/middleware/metadata"
	"ironclad/pkg/platform/middleware/ratelimit"
	request "ironclad/pkg/platform/middleware/request"
	"ironclad/pkg/platform/middleware/requesttime"
)

// infrastructure holds the optional external connections. A nil field means
// the in-memory fallback is used for that concern.
type infrastructure struct {
	redis    *redis.Client
	db       *sql.DB
	producer *kafka.Producer
	log      *slog.Logger
}

func connect(ctx context.Context, cfg config.Config, log *slog.Logger) (*infrastructure, error) {
	infra := &infrastructure{log: log}

	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	infra.redis = client

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		infra.close()
		return nil, err
	}
	infra.db = db
	if db != nil && cfg.Postgres.EnsureSchema {
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			infra.close()
			return nil, err
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.AlertTopic, log)
		if err != nil {
			infra.close()
			return nil, err
		}
		infra.producer = producer
		if cfg.Kafka.EnsureTopic {
			if err := producer.EnsureTopic(ctx, cfg.Kafka.AlertTopic, 1, 1); err != nil {
				infra.close()
				return nil, err
			}
		}
	}
	return infra, nil
}

func (i *infrastructure) vaultBackend() string {
	if i.redis != nil {
		return "redis"
	}
	return "memory"
}

func (i *infrastructure) close() {
	if i.producer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		i.producer.Close(ctx)
		cancel()
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			i.log.Warn("close postgres", "error", err)
		}
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			i.log.Warn("close redis", "error", err)
		}
	}
}

func (i *infrastructure) health(ctx context.Context) map[string]string {
	status := map[string]string{}
	check := func(name string, err error) {
		if err != nil {
			status[name] = "unavailable"
			return
		}
		status[name] = "ok"
	}
	if i.redis != nil {
		check("redis", i.redis.Health(ctx))
	}
	if i.db != nil {
		check("postgres", i.db.PingContext(ctx))
	}
	if i.producer != nil {
		check("kafka", i.producer.Health(ctx))
	}
	return status
}

type application struct {
	router     http.Handler
	dispatcher *verification.Dispatcher
}

func build(cfg config.Config, infra *infrastructure, log *slog.Logger, m *metrics.Metrics, reporter *sentry.Reporter) (*application, error) {
	var tokens vault.Vault = vault.NewInMemoryStore()
	if infra.redis != nil {
		tokens = vault.NewRedisStore(infra.redis.Client, vault.WithMetrics(m))
	} else {
		log.Warn("REDIS_URL not set; tokens are kept in process memory")
	}

	var (
		keys    keyservice.Store         = keystore.NewInMemoryStore()
		audits  audit.Store              = auditstore.NewInMemoryStore()
		results verification.ResultStore = verification.NewInMemoryStore()
	)
	if infra.db != nil {
		keys = keystore.NewPostgres(infra.db)
		audits = auditstore.NewPostgres(infra.db)
		results = verification.NewPostgresStore(infra.db)
	} else {
		log.Warn("DATABASE_URL not set; api keys and audit logs are kept in process memory")
	}

	det, err := newDetector(cfg.Detector)
	if err != nil {
		return nil, err
	}

	prompts, err := grader.NewPromptBuilder(cfg.Grader.PromptVersion, cfg.Grader.FewShotExamples)
	if err != nil {
		return nil, fmt.Errorf("grader prompt: %w", err)
	}
	breaker := circuit.New("grader",
		circuit.WithFailureThreshold(cfg.Grader.FailureThreshold),
		circuit.WithSuccessThreshold(cfg.Grader.SuccessThreshold),
		circuit.WithCooldown(cfg.Grader.Cooldown),
	)
	judge := grader.NewGuarded(
		grader.NewOllamaGrader(cfg.Grader.OllamaURL, cfg.Grader.Model, prompts),
		breaker, log,
	)

	var sink verification.AlertSink = verification.NewLogSink(log)
	if infra.producer != nil {
		sink = verification.MultiSink{sink, verification.NewKafkaSink(infra.producer, cfg.Kafka.AlertTopic)}
	}
	thresholds := verification.Thresholds{
		Log:   cfg.Verification.LogThreshold,
		Alert: cfg.Verification.AlertThreshold,
		Purge: cfg.Verification.PurgeThreshold,
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	orchestrator := verification.NewOrchestrator(judge, tokens, thresholds,
		verification.WithLogger(log),
		verification.WithMetrics(m),
		verification.WithAlertSink(sink),
		verification.WithResultStore(results),
		verification.WithReporter(reporter),
		verification.WithGraderTimeout(cfg.Grader.Timeout),
	)
	dispatcher := verification.NewDispatcher(orchestrator, cfg.Verification.QueueSize,
		verification.WithWorkers(cfg.Verification.Workers),
		verification.WithDrainTimeout(cfg.Verification.DrainTimeout),
		verification.WithDispatcherLogger(log),
		verification.WithDispatcherMetrics(m),
		verification.WithDropRecorder(results),
	)

	engine := policy.NewEngine(policy.NewRegistry(), policy.WithLogger(log))
	mapper := redaction.New(tokens, redaction.WithLogger(log), redaction.WithTTL(cfg.Redis.TokenTTL))
	redactor := gateway.New(det, engine, mapper, dispatcher, gateway.WithLogger(log), gateway.WithMetrics(m))
	keySvc := keyservice.New(keys, keyservice.WithLogger(log))
	restorer := restoration.New(keySvc, tokens, audits, restoration.WithLogger(log), restoration.WithMetrics(m))

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		deps := infra.health(ctx)
		status := http.StatusOK
		for _, s := range deps {
			if s != "ok" {
				status = http.StatusServiceUnavailable
			}
		}
		httputil.WriteJSON(w, status, map[string]any{
			"status":             http.StatusText(status),
			"dependencies":       deps,
			"grader_circuit":     circuitState(breaker),
			"verification_queue": dispatcher.Pending(),
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	gatewayhandler.New(redactor, log).Register(r)

	limiter := ratelimit.New(cfg.Server.RestoreRatePerMin, cfg.Server.RestoreRateBurst, log,
		ratelimit.WithDisabled(cfg.Server.DisableRateLimit))
	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		restorehandler.New(restorer, log).Register(r)
	})

	if cfg.Admin.JWTSecret == "" {
		log.Warn("ADMIN_JWT_SECRET not set; admin endpoints are disabled")
	} else {
		tokensvc := admintoken.New(cfg.Admin.JWTSecret, cfg.Admin.Issuer)
		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdmin(tokensvc, log))
			keyhandler.New(keySvc, log).Register(r)
			audithandler.New(audits, log).Register(r)
			verifyhandler.New(results, log).Register(r)
		})
	}

	return &application{router: r, dispatcher: dispatcher}, nil
}

func newDetector(cfg config.DetectorConfig) (detector.Detector, error) {
	switch cfg.Kind {
	case "regex":
		return detector.NewRegexDetector(detector.DefaultPatterns), nil
	case "presidio":
		return detector.NewPresidioDetector(cfg.PresidioURL, cfg.Language, cfg.ScoreThreshold), nil
	default:
		return nil, fmt.Errorf("unknown detector %q", cfg.Kind)
	}
}

func circuitState(b *circuit.Breaker) string {
	if b.IsOpen() {
		return "open"
	}
	return "closed"
}
