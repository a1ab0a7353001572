package verifier

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for verification metrics.
const (
	OutcomeAccepted       = "accepted"
	OutcomeRejected       = "rejected"
	OutcomeMalformed      = "malformed"
	OutcomeOutOfResources = "out_of_resources"
)

// Metrics provides observability for proof verification.
type Metrics struct {
	Verifications  *prometheus.CounterVec
	GasUsed        prometheus.Histogram
	VerifyDuration prometheus.Histogram
}

// NewMetrics registers verifier metrics with the default registry. Call once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agegate_proof_verifications_total",
			Help: "Proof verifications by outcome",
		}, []string{"outcome"}),
		GasUsed: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "agegate_proof_verification_gas",
			Help:    "Gas charged per proof verification",
			Buckets: prometheus.ExponentialBuckets(50_000, 2, 8),
		}),
		VerifyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "agegate_proof_verification_duration_seconds",
			Help:    "Duration of proof verification",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
	}
}

// ObserveVerification records one verification attempt.
func (m *Metrics) ObserveVerification(outcome string, gas uint64, start time.Time) {
	m.Verifications.WithLabelValues(outcome).Inc()
	m.GasUsed.Observe(float64(gas))
	m.VerifyDuration.Observe(time.Since(start).Seconds())
}
