package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes hub health on the Prometheus registry backing /metrics.
type Metrics struct {
	connections prometheus.Gauge
	rooms       prometheus.Gauge
	delivered   prometheus.Counter
	dropped     prometheus.Counter
}

var (
	defaultMetrics *Metrics
)

// NewMetrics returns the process-wide realtime metrics. Prometheus forbids
// duplicate registration, so the instruments are created once.
func NewMetrics() *Metrics {
	if defaultMetrics != nil {
		return defaultMetrics
	}
	defaultMetrics = &Metrics{
		connections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "kijko_realtime_connections",
			Help: "Currently connected WebSocket clients.",
		}),
		rooms: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "kijko_realtime_rooms",
			Help: "Rooms with at least one member.",
		}),
		delivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kijko_realtime_events_delivered_total",
			Help: "Frames delivered to client send buffers.",
		}),
		dropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kijko_realtime_events_dropped_total",
			Help: "Frames dropped because a client's send buffer was full.",
		}),
	}
	return defaultMetrics
}

func (m *Metrics) SetConnections(n int) { m.connections.Set(float64(n)) }
func (m *Metrics) SetRooms(n int)       { m.rooms.Set(float64(n)) }
func (m *Metrics) AddDelivered(n int)   { m.delivered.Add(float64(n)) }
func (m *Metrics) AddDropped(n int)     { m.dropped.Add(float64(n)) }
