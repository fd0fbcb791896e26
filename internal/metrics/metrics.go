package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/desertthunder/noncmra/internal/credentials"
	"github.com/desertthunder/noncmra/internal/models"
)

// Metrics provides observability for one verification run.
//
// Each run gets its own registry so repeated runs in one process never share counters.
type Metrics struct {
	registry *prometheus.Registry

	// Provider call latencies by result kind
	VerifyLatency *prometheus.HistogramVec

	// Terminal outcomes by kind and failure cause
	Outcomes *prometheus.CounterVec

	// Retries scheduled by reason
	Retries *prometheus.CounterVec

	// Units charged per credential
	CredentialUsed *prometheus.GaugeVec

	// Credentials disabled or at their limit
	CredentialsExhausted prometheus.Gauge

	// Addresses left unprocessed by an early stop
	Unprocessed prometheus.Gauge
}

// New creates a new Metrics instance with all run metrics registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		VerifyLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "noncmra_verify_duration_seconds",
			Help:    "Duration of address verification calls by result kind",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"result"}), // result: "verified", "rejected", "quota_exceeded", "protocol_error", "network_error"

		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "noncmra_outcomes_total",
			Help: "Terminal address outcomes by kind and failure cause",
		}, []string{"kind", "cause"}),

		Retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "noncmra_retries_total",
			Help: "Address retries scheduled by reason",
		}, []string{"reason"}),

		CredentialUsed: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "noncmra_credential_used",
			Help: "Lookups charged to each credential during the run",
		}, []string{"credential"}),

		CredentialsExhausted: factory.NewGauge(prometheus.GaugeOpts{
			Name: "noncmra_credentials_exhausted",
			Help: "Credentials disabled or at their monthly limit",
		}),

		Unprocessed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "noncmra_unprocessed_addresses",
			Help: "Addresses skipped because the run stopped early",
		}),
	}
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveVerify records the duration of one provider call.
func (m *Metrics) ObserveVerify(result string, d time.Duration) {
	if m != nil {
		m.VerifyLatency.WithLabelValues(result).Observe(d.Seconds())
	}
}

// IncrementOutcome records a terminal outcome.
func (m *Metrics) IncrementOutcome(o models.Outcome) {
	if m != nil {
		m.Outcomes.WithLabelValues(o.Kind.String(), o.Cause.String()).Inc()
	}
}

// IncrementRetry records a scheduled retry.
func (m *Metrics) IncrementRetry(reason string) {
	if m != nil {
		m.Retries.WithLabelValues(reason).Inc()
	}
}

// SetCredentials publishes the pool usage snapshot.
//
// Credential IDs are masked since they end up in files read by other tools. Labels carry the
// configuration position so masked IDs sharing a suffix stay distinct.
func (m *Metrics) SetCredentials(usage []credentials.Usage, masked func(string) string) {
	if m == nil {
		return
	}
	exhausted := 0
	for i, u := range usage {
		id := u.ID
		if masked != nil {
			id = masked(id)
		}
		m.CredentialUsed.WithLabelValues(credentialLabel(i, id)).Set(float64(u.Used))
		if u.Exhausted() {
			exhausted++
		}
	}
	m.CredentialsExhausted.Set(float64(exhausted))
}

// credentialLabel names the credential at position i (zero-based) of the pool.
func credentialLabel(i int, id string) string {
	return fmt.Sprintf("%d:%s", i+1, id)
}

// SetUnprocessed records how many addresses an early stop left behind.
func (m *Metrics) SetUnprocessed(n int) {
	if m != nil {
		m.Unprocessed.Set(float64(n))
	}
}

// WriteTextfile writes the registry in the text exposition format for node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
