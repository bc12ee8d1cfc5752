package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	req := require.New(t)
	m := NewMetrics(prometheus.NewRegistry())

	m.Event("insert:messages")
	m.Event("insert:messages")
	m.Stale()
	m.Joined(2)
	m.Online(3)

	req.Equal(2.0, testutil.ToFloat64(m.EventsReceived.WithLabelValues("insert:messages")))
	req.Equal(1.0, testutil.ToFloat64(m.StaleDropped))
	req.Equal(2.0, testutil.ToFloat64(m.JoinNotifications))
	req.Equal(3.0, testutil.ToFloat64(m.OnlineUsers))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.Event("presence")
		m.Stale()
		m.Retry()
		m.SendFailed()
		m.Joined(1)
		m.Evicted(1)
		m.Switched()
		m.Online(1)
	})
}
