// Package metrics exports auth activity as prometheus counters.
package metrics

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	auth "github.com/goliatone/go-session-auth"
)

const namespace = "session_auth"

// Sink counts activity events by type. It satisfies auth.ActivitySink.
type Sink struct {
	events   *prometheus.CounterVec
	lastSeen *prometheus.GaugeVec
}

var _ auth.ActivitySink = (*Sink)(nil)

// NewSink registers the collectors with reg
func NewSink(reg prometheus.Registerer) (*Sink, error) {
	s := &Sink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_events_total",
			Help:      "Auth activity events by type.",
		}, []string{"event"}),
		lastSeen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "activity_last_event_timestamp_seconds",
			Help:      "Unix time of the last event of each type.",
		}, []string{"event"}),
	}

	for _, c := range []prometheus.Collector{s.events, s.lastSeen} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Record implements auth.ActivitySink
func (s *Sink) Record(_ context.Context, event auth.ActivityEvent) error {
	label := string(event.EventType)
	s.events.WithLabelValues(label).Inc()

	at := event.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	s.lastSeen.WithLabelValues(label).Set(float64(at.Unix()))

	return nil
}

// Handler serves the registry in the prometheus text format
func Handler(g prometheus.Gatherer) fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}
