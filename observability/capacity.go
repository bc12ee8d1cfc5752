package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Capacity holds the gauges sampled by the channel capacity worker.
type Capacity struct {
	ChannelLength   *prometheus.GaugeVec
	ChannelCapacity *prometheus.GaugeVec
	HubRooms        prometheus.Gauge
	HubHandles      prometheus.Gauge
	HubDropped      prometheus.Gauge
}

func NewCapacity(reg prometheus.Registerer) *Capacity {
	factory := promauto.With(reg)
	return &Capacity{
		ChannelLength: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_length",
			Help:      "Items waiting in an internal queue.",
		}, []string{"channel"}),
		ChannelCapacity: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_capacity",
			Help:      "Buffer size of an internal queue.",
		}, []string{"channel"}),
		HubRooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hub_rooms",
			Help:      "Rooms with at least one open handle.",
		}),
		HubHandles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hub_handles",
			Help:      "Open room handles.",
		}),
		HubDropped: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hub_events_dropped",
			Help:      "Events dropped on full handle buffers since start.",
		}),
	}
}

func (c *Capacity) Channel(name string, length, capacity int) {
	c.ChannelLength.WithLabelValues(name).Set(float64(length))
	c.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
}

func (c *Capacity) Hub(rooms, handles int, dropped uint64) {
	c.HubRooms.Set(float64(rooms))
	c.HubHandles.Set(float64(handles))
	c.HubDropped.Set(float64(dropped))
}
