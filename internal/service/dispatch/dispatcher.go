// Package dispatch implements the fan-out dispatcher: given a decoded
// event, its channel, and its routing keys, it serializes the outbound
// message once and enqueues it onto every matching session's outbox,
// never blocking on a single slow session.
package dispatch

import (
	"log/slog"
	"time"

	"github.com/galatea-ims/event-hub/internal/domain/event"
	"github.com/galatea-ims/event-hub/internal/domain/model"
	"github.com/galatea-ims/event-hub/internal/domain/registry"
	"github.com/galatea-ims/event-hub/internal/domain/session"
	"github.com/galatea-ims/event-hub/internal/service/wire"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Dispatcher is the fan-out path. It holds no session state of its own;
// sessions live in the Session Manager's table, resolved fresh for every
// event.
type Dispatcher struct {
	registry *registry.Registry
	sessions SessionLookup
	logger   *slog.Logger
	metrics  metrics
}

// SessionLookup is the subset of session.Manager the dispatcher depends on,
// kept as an interface so dispatcher tests can substitute a fake table.
type SessionLookup interface {
	Get(id uuid.UUID) (*session.Session, bool)
}

type metrics struct {
	delivered prometheus.Counter
	dropped   prometheus.Counter
	skipped   prometheus.Counter
}

// New builds a Dispatcher over reg and sessions, registering its counters
// with registerer so delivery, drop, and skip rates are observable.
func New(reg *registry.Registry, sessions SessionLookup, logger *slog.Logger, registerer prometheus.Registerer) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	m := metrics{
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "event_hub_dispatch_delivered_total",
			Help: "Messages successfully enqueued onto a session outbox.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "event_hub_dispatch_dropped_total",
			Help: "Messages dropped due to backpressure or a non-Open session.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "event_hub_dispatch_skipped_total",
			Help: "Candidate sessions skipped because they no longer exist or are not Open.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(m.delivered, m.dropped, m.skipped)
	}
	return &Dispatcher{registry: reg, sessions: sessions, logger: logger, metrics: m}
}

// Dispatch resolves matching sessions, serializes the event once, and
// enqueues it onto each candidate's outbox.
func (d *Dispatcher) Dispatch(e event.Event) error {
	channel := e.Channel()
	if !channel.Valid() && channel != model.ChannelAdmin {
		return nil
	}

	routingKeys, err := e.RoutingKeys()
	if err != nil {
		return err
	}

	candidates := d.registry.Matches(channel, routingKeys)
	if len(candidates) == 0 {
		return nil
	}

	payload, err := wire.BuildEnvelope(e, time.Now())
	if err != nil {
		return err
	}

	for _, sid := range candidates {
		sess, ok := d.sessions.Get(sid)
		if !ok {
			d.metrics.skipped.Inc()
			continue
		}
		if sess.State() != session.Open {
			d.metrics.skipped.Inc()
			continue
		}
		if sess.Enqueue(payload) {
			d.metrics.delivered.Inc()
		} else {
			d.metrics.dropped.Inc()
		}
	}

	return nil
}
