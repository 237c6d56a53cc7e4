package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
	"github.com/nkiryanov/rewardledger/internal/models"
)

const namespace = "rewardledger"

// Metrics of the ledger. A nil *Metrics is valid and records nothing
type Metrics struct {
	operationsTotal    *prometheus.CounterVec
	transactionsTotal  *prometheus.CounterVec
	amountTotal        *prometheus.CounterVec
	accountsTotal      prometheus.Gauge
	pendingWithdrawals prometheus.Gauge
	activeCodes        prometheus.Gauge
	flowsExpiredTotal  prometheus.Counter
	droppedTotal       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New registers metrics in reg
// Pass prometheus.NewRegistry() in tests to avoid duplicate registration
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger operations partitioned by operation and result kind.",
			},
			[]string{"operation", "result"},
		),
		transactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "transactions_total",
				Help:      "Committed balance mutations by direction and reason.",
			},
			[]string{"direction", "reason"},
		),
		amountTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "amount_minor_units_total",
				Help:      "Sum of committed mutation amounts in minor units by reason.",
			},
			[]string{"reason"},
		),
		accountsTotal: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "accounts",
				Help:      "Current number of accounts.",
			},
		),
		pendingWithdrawals: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "withdrawal",
				Name:      "pending",
				Help:      "Current number of pending withdrawal requests.",
			},
		),
		activeCodes: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "codes",
				Name:      "active",
				Help:      "Current number of redeem codes not yet consumed.",
			},
		),
		flowsExpiredTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "withdrawal",
				Name:      "flows_expired_total",
				Help:      "Withdrawal flows removed after inactivity.",
			},
		),
		droppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "dropped_total",
				Help:      "Items dropped because the dispatcher buffer was full.",
			},
			[]string{"dispatcher"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by method, route and status.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}
}

// ObserveOperation counts an operation by its error kind, "ok" on success
func (m *Metrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = apperrors.KindOf(err).String()
	}
	m.operationsTotal.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) ObserveTransaction(tx models.Transaction) {
	if m == nil {
		return
	}
	m.transactionsTotal.WithLabelValues(tx.Direction, tx.Reason).Inc()
	m.amountTotal.WithLabelValues(tx.Reason).Add(float64(tx.Amount))
}

// Publish makes Metrics an event sink counting committed transactions
func (m *Metrics) Publish(ev models.Event) {
	if ev.Type == models.EventTransaction && ev.Tx != nil {
		m.ObserveTransaction(*ev.Tx)
	}
}

func (m *Metrics) SetAccounts(n int) {
	if m == nil {
		return
	}
	m.accountsTotal.Set(float64(n))
}

func (m *Metrics) SetPendingWithdrawals(n int) {
	if m == nil {
		return
	}
	m.pendingWithdrawals.Set(float64(n))
}

func (m *Metrics) SetActiveCodes(n int) {
	if m == nil {
		return
	}
	m.activeCodes.Set(float64(n))
}

func (m *Metrics) ObserveFlowsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.flowsExpiredTotal.Add(float64(n))
}

func (m *Metrics) ObserveDropped(dispatcher string) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(dispatcher).Inc()
}

func (m *Metrics) ObserveHTTPRequest(method string, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
