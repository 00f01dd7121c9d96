// Package router implements the event router: a static dispatch table
// keyed by (topic, eventType), validating each decoded event and handing it
// to the Fan-out Dispatcher.
package router

import (
	"fmt"

	"github.com/galatea-ims/event-hub/internal/domain/event"
	"github.com/galatea-ims/event-hub/internal/domain/model"
	"github.com/galatea-ims/event-hub/internal/service/dispatch"
	"go.uber.org/fx"
)

// RouteKey identifies one (topic, eventType) dispatch table entry.
type RouteKey struct {
	Topic     string
	EventType model.EventType
}

// topicEventTypes enumerates which eventType values are valid on each
// consumed topic. ReferenceDataUpdate, MarketDataTick, and
// PositionSnapshot payloads share no topic of their own among the named
// domain topics, so they route off a sixth topic, position-events, since
// every other payload family has an exactly-matching topic and these
// three share the Position channel classification.
var topicEventTypes = map[string][]model.EventType{
	"workflow-events":  {model.EventWorkflowTransition},
	"locate-events":    {model.EventLocateDecision},
	"inventory-events": {model.EventInventorySnapshot},
	"limit-events":     {model.EventLimitUpdate},
	"alert-events":     {model.EventAlertNotice},
	"position-events":  {model.EventPositionSnapshot, model.EventReferenceDataUpdate, model.EventMarketDataTick},
}

// Topics returns the full list of topics the Log Consumer Pool joins.
func Topics() []string {
	out := make([]string, 0, len(topicEventTypes))
	for t := range topicEventTypes {
		out = append(out, t)
	}
	return out
}

// Router checks events against the package-level (topic, eventType) table
// and hands them to the Dispatcher.
type Router struct {
	dispatcher *dispatch.Dispatcher
}

// New builds a Router over dispatcher. The table itself is implicit: every
// (topic, eventType) pair in topicEventTypes is valid and is handled
// uniformly by Route, since all handlers reduce to the same three steps —
// validate, compute routing keys, dispatch — with the per-family routing
// key logic living in event.RoutingKeys rather than per-handler bodies.
func New(dispatcher *dispatch.Dispatcher) *Router {
	return &Router{dispatcher: dispatcher}
}

// Route validates a decoded event against the (topic, eventType) table,
// then hands it to the Dispatcher.
func (r *Router) Route(topic string, e event.Event) error {
	allowed, ok := topicEventTypes[topic]
	if !ok {
		return fmt.Errorf("router: unknown topic %q", topic)
	}
	if !containsEventType(allowed, e.EventType) {
		return fmt.Errorf("router: eventType %q not valid on topic %q", e.EventType, topic)
	}

	if err := e.Validate(); err != nil {
		return fmt.Errorf("router: invalid event: %w", err)
	}

	return r.dispatcher.Dispatch(e)
}

func containsEventType(set []model.EventType, t model.EventType) bool {
	for _, candidate := range set {
		if candidate == t {
			return true
		}
	}
	return false
}

// Module wires the Router as a singleton.
var Module = fx.Module("router", fx.Provide(New))
