package router

import (
	"testing"

	"github.com/galatea-ims/event-hub/internal/domain/event"
	"github.com/galatea-ims/event-hub/internal/domain/model"
	"github.com/galatea-ims/event-hub/internal/domain/registry"
	"github.com/galatea-ims/event-hub/internal/domain/session"
	"github.com/galatea-ims/event-hub/internal/service/dispatch"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emptyLookup struct{}

func (emptyLookup) Get(uuid.UUID) (*session.Session, bool) { return nil, false }

func TestEveryTopicHasARegisteredEventType(t *testing.T) {
	for topic, types := range topicEventTypes {
		assert.NotEmpty(t, types, "topic %s must declare at least one eventType", topic)
	}
}

func TestRouteRejectsMismatchedTopic(t *testing.T) {
	reg := registry.New()
	d := dispatch.New(reg, emptyLookup{}, nil, nil)
	r := New(d)

	e := event.Event{
		EventID:   "e1",
		EventType: model.EventLocateDecision,
		EventTime: 1,
		Payload:   &model.LocateDecision{SecurityID: "SEC-1"},
	}

	err := r.Route("inventory-events", e)
	assert.Error(t, err)
}

func TestRouteAcceptsMatchingTopic(t *testing.T) {
	reg := registry.New()
	d := dispatch.New(reg, emptyLookup{}, nil, nil)
	r := New(d)

	e := event.Event{
		EventID:   "e1",
		EventType: model.EventAlertNotice,
		EventTime: 1,
		Payload:   &model.AlertNotice{Severity: "HIGH", Category: "RISK"},
	}

	require.NoError(t, r.Route("alert-events", e))
}
