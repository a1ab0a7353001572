package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the subscription module.
// Tracks lifecycle transitions, settlement outcomes and entry point latency.
type Metrics struct {
	Registrations      prometheus.Counter
	RegisterRejections *prometheus.CounterVec
	Cancellations      *prometheus.CounterVec
	Settlements        *prometheus.CounterVec
	AmountSettled      prometheus.Counter
	RegisterDuration   prometheus.Histogram
	SettleDuration     prometheus.Histogram
	KeeperSweeps       *prometheus.CounterVec
}

// New creates a new Metrics instance with all subscription metrics registered.
func New() *Metrics {
	return &Metrics{
		Registrations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agegate_subscriptions_registered_total",
			Help: "Total number of successful registrations",
		}),
		RegisterRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agegate_register_rejections_total",
			Help: "Registrations refused, by error code",
		}, []string{"code"}),
		Cancellations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agegate_subscriptions_cancelled_total",
			Help: "Subscriptions cancelled, by reason",
		}, []string{"reason"}),
		Settlements: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agegate_settlements_total",
			Help: "Settlement calls, by outcome",
		}, []string{"outcome"}),
		AmountSettled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agegate_settled_amount_total",
			Help: "Sum of amounts moved from subscribers to payees",
		}),
		RegisterDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "agegate_register_duration_seconds",
			Help:    "Duration of Register including proof verification",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		SettleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "agegate_settle_duration_seconds",
			Help:    "Duration of Settle",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		KeeperSweeps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agegate_keeper_sweeps_total",
			Help: "Keeper sweeps, by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncrementRegistered() {
	m.Registrations.Inc()
}

func (m *Metrics) IncrementRegisterRejected(code string) {
	m.RegisterRejections.WithLabelValues(code).Inc()
}

func (m *Metrics) IncrementCancelled(reason string) {
	m.Cancellations.WithLabelValues(reason).Inc()
}

// ObserveSettlement records one settlement outcome and the amount it moved.
func (m *Metrics) ObserveSettlement(outcome string, amount uint64) {
	m.Settlements.WithLabelValues(outcome).Inc()
	if amount > 0 {
		m.AmountSettled.Add(float64(amount))
	}
}

// ObserveRegister records the duration of a Register call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRegister(start time.Time) {
	m.RegisterDuration.Observe(time.Since(start).Seconds())
}

// ObserveSettle records the duration of a Settle call.
func (m *Metrics) ObserveSettle(start time.Time) {
	m.SettleDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementKeeperSweep(result string) {
	m.KeeperSweeps.WithLabelValues(result).Inc()
}
