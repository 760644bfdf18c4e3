// Package metrics holds the Prometheus instruments for the redaction gateway.
// All methods are nil-safe so components can run without metrics in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Redact path
	Redactions       *prometheus.CounterVec
	TokensIssued     *prometheus.CounterVec
	ConfidenceScores prometheus.Histogram
	RedactLatency    prometheus.Histogram

	// Verification
	VerificationOutcomes *prometheus.CounterVec
	LeaksFound           prometheus.Counter
	TokensPurged         prometheus.Counter
	GraderFailures       *prometheus.CounterVec
	GraderLatency        prometheus.Histogram
	QueueDrops           prometheus.Counter
	QueueDepth           prometheus.Gauge

	// Restoration
	RestoreAttempts *prometheus.CounterVec

	// Vault
	VaultGetLatency *prometheus.HistogramVec
}

// New creates and registers all metrics with the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers metrics on reg. Tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Redactions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ironclad_redactions_total",
			Help: "Redaction requests by policy context",
		}, []string{"context"}),

		TokensIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ironclad_tokens_issued_total",
			Help: "Substitution tokens written to the vault by entity type",
		}, []string{"entity_type"}),

		ConfidenceScores: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ironclad_model_confidence_scores",
			Help:    "Detector confidence of redacted entities",
			Buckets: []float64{0, 0.5, 0.7, 0.8, 0.9, 1.0},
		}),

		RedactLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ironclad_redact_duration_seconds",
			Help:    "Duration of the synchronous redact path",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		VerificationOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ironclad_verification_outcomes_total",
			Help: "Verification runs by final tier",
		}, []string{"tier", "skipped"}),

		LeaksFound: f.NewCounter(prometheus.CounterOpts{
			Name: "ironclad_auditor_leaks_found_total",
			Help: "Verification runs where the grader reported a leak",
		}),

		TokensPurged: f.NewCounter(prometheus.CounterOpts{
			Name: "ironclad_tokens_purged_total",
			Help: "Tokens deleted by the verification purge tier",
		}),

		GraderFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ironclad_grader_failures_total",
			Help: "Grader calls that produced no usable assessment, by kind",
		}, []string{"kind"}),

		GraderLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ironclad_grader_duration_seconds",
			Help:    "Latency of grader calls",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		QueueDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "ironclad_verification_queue_drops_total",
			Help: "Verification tasks dropped because the queue was full",
		}),

		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "ironclad_verification_queue_depth",
			Help: "Verification tasks waiting for a worker",
		}),

		RestoreAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ironclad_restore_attempts_total",
			Help: "Restoration attempts by result code",
		}, []string{"result"}),

		VaultGetLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ironclad_vault_get_duration_ms",
			Help:    "Latency of vault token lookups in milliseconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}, []string{"backend"}),
	}
}

// IncRedaction records one redact call and the confidence of each token it issued.
func (m *Metrics) IncRedaction(policyContext string, entityTypes []string, scores []float64, d time.Duration) {
	if m == nil {
		return
	}
	m.Redactions.WithLabelValues(policyContext).Inc()
	for _, t := range entityTypes {
		m.TokensIssued.WithLabelValues(t).Inc()
	}
	for _, s := range scores {
		m.ConfidenceScores.Observe(s)
	}
	m.RedactLatency.Observe(d.Seconds())
}

// IncVerification records a finished verification.
func (m *Metrics) IncVerification(tier string, skipped, leaked bool) {
	if m == nil {
		return
	}
	s := "false"
	if skipped {
		s = "true"
	}
	m.VerificationOutcomes.WithLabelValues(tier, s).Inc()
	if leaked {
		m.LeaksFound.Inc()
	}
}

func (m *Metrics) AddPurged(n int) {
	if m != nil && n > 0 {
		m.TokensPurged.Add(float64(n))
	}
}

// IncGraderFailure records a grader failure. kind is unreachable, parse_failed or circuit_open.
func (m *Metrics) IncGraderFailure(kind string) {
	if m != nil {
		m.GraderFailures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ObserveGraderLatency(d time.Duration) {
	if m != nil {
		m.GraderLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncQueueDrop() {
	if m != nil {
		m.QueueDrops.Inc()
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}

// IncRestore records a restoration attempt; result is "success" or an error code.
func (m *Metrics) IncRestore(result string) {
	if m != nil {
		m.RestoreAttempts.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) ObserveVaultGet(backend string, d time.Duration) {
	if m != nil {
		m.VaultGetLatency.WithLabelValues(backend).Observe(float64(d.Microseconds()) / 1000.0)
	}
}
