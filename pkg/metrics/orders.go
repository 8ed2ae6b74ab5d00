package metrics

import "github.com/prometheus/client_golang/prometheus"

// OrderMetrics counts placement, settlement, expiry and status outcomes.
// A nil *OrderMetrics is valid and records nothing.
type OrderMetrics struct {
	placed      *prometheus.CounterVec
	settlements *prometheus.CounterVec
	expired     prometheus.Counter
	transitions *prometheus.CounterVec
}

// NewOrderMetrics registers the order counters on reg.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	placed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_placed_total",
		Help:      "Orders placed, by payment method.",
	}, []string{"payment_method"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlements_total",
		Help:      "Settlement attempts, by result code.",
	}, []string{"result"})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_expired_total",
		Help:      "Card orders cancelled after missing their payment deadline.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_status_transitions_total",
		Help:      "Applied delivery status transitions, by actor role and target status.",
	}, []string{"actor", "status"})
	reg.MustRegister(placed, settlements, expired, transitions)
	return &OrderMetrics{
		placed:      placed,
		settlements: settlements,
		expired:     expired,
		transitions: transitions,
	}
}

func (m *OrderMetrics) IncPlaced(paymentMethod string) {
	if m == nil || m.placed == nil {
		return
	}
	m.placed.WithLabelValues(normalizeLabel(paymentMethod)).Inc()
}

// IncSettlement records a settlement outcome; result is "ok" or an error code.
func (m *OrderMetrics) IncSettlement(result string) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *OrderMetrics) AddExpired(n int) {
	if m == nil || m.expired == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

func (m *OrderMetrics) IncTransition(actor, status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(actor), normalizeLabel(status)).Inc()
}
