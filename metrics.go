package livetiming

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"justapengu.in/livetiming/internal/timing"
)

var (
	timingMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livetiming",
		Name:      "messages_total",
		Help:      "Timing board changes, by message type and action.",
	}, []string{"type", "action"})

	numDrivers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "livetiming",
		Name:      "drivers",
		Help:      "Drivers currently on the timing board.",
	})
)

// metricsNotifier counts every change to the board.
type metricsNotifier struct {
	field *timing.Field
}

func (mn metricsNotifier) Broadcast(message timing.Message) error {
	timingMessages.WithLabelValues(message.Type, message.Action).Inc()

	if message.Type != timing.TypeUser {
		numDrivers.Set(float64(mn.field.Len()))
	}

	return nil
}
