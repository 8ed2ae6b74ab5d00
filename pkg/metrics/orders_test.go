package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)

	m.IncPlaced("cod")
	m.IncPlaced("cod")
	m.IncSettlement("ok")
	m.IncSettlement("ALREADY_PAID")
	m.AddExpired(3)
	m.AddExpired(0)
	m.IncTransition("seller", "shipped")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	placed, err := fetchCounterValue(mfs, "bazaar_orders_placed_total", "payment_method", "cod")
	require.NoError(t, err)
	assert.Equal(t, 2.0, placed)

	alreadyPaid, err := fetchCounterValue(mfs, "bazaar_settlements_total", "result", "ALREADY_PAID")
	require.NoError(t, err)
	assert.Equal(t, 1.0, alreadyPaid)

	expired := findMetricFamily(mfs, "bazaar_orders_expired_total")
	require.NotNil(t, expired)
	assert.Equal(t, 3.0, expired.GetMetric()[0].GetCounter().GetValue())

	transitions, err := fetchCounterValue(mfs, "bazaar_order_status_transitions_total", "status", "shipped")
	require.NoError(t, err)
	assert.Equal(t, 1.0, transitions)
}

func TestNilOrderMetricsIsNoop(t *testing.T) {
	var m *OrderMetrics
	assert.NotPanics(t, func() {
		m.IncPlaced("card")
		m.IncSettlement("ok")
		m.AddExpired(1)
		m.IncTransition("admin", "cancelled")
	})
	assert.NotPanics(t, func() {
		NewOrderMetrics(nil).IncPlaced("card")
	})
}
