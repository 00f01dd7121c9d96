package dispatch

import (
	"encoding/json"
	"testing"

	"github.com/galatea-ims/event-hub/internal/domain/event"
	"github.com/galatea-ims/event-hub/internal/domain/model"
	"github.com/galatea-ims/event-hub/internal/domain/registry"
	"github.com/galatea-ims/event-hub/internal/domain/session"
	"github.com/galatea-ims/event-hub/internal/service/wire"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	sessions map[uuid.UUID]*session.Session
}

func (f *fakeLookup) Get(id uuid.UUID) (*session.Session, bool) {
	s, ok := f.sessions[id]
	return s, ok
}

func newOpenSession(t *testing.T, channel model.Channel) *session.Session {
	t.Helper()
	s := session.New(uuid.New(), []string{"Trader"}, map[model.Channel]bool{channel: true}, 16)
	s.Open()
	t.Cleanup(s.Close)
	return s
}

func TestDispatchDeliversToMatchingSession(t *testing.T) {
	reg := registry.New()
	sess := newOpenSession(t, model.ChannelLocates)

	_, err := reg.Subscribe(sess.ID(), model.ChannelLocates, registry.Predicate{"securityId": "SEC-1"})
	require.NoError(t, err)

	lookup := &fakeLookup{sessions: map[uuid.UUID]*session.Session{sess.ID(): sess}}
	d := New(reg, lookup, nil, nil)

	e := event.Event{
		EventID:   "evt-1",
		EventType: model.EventLocateDecision,
		EventTime: 1,
		Payload: &model.LocateDecision{
			LocateID:   "LOC-1",
			SecurityID: "SEC-1",
			Status:     "APPROVED",
		},
	}

	require.NoError(t, d.Dispatch(e))

	entry := <-sess.Outbox()
	var env wire.Envelope
	require.NoError(t, json.Unmarshal(entry.Data, &env))
	assert.Equal(t, wire.MessageLocateApproval, env.MessageType)
}

func TestDispatchSkipsNonMatchingSession(t *testing.T) {
	reg := registry.New()
	sess := newOpenSession(t, model.ChannelPositions)

	_, err := reg.Subscribe(sess.ID(), model.ChannelPositions, registry.Predicate{"book": "EQ-01"})
	require.NoError(t, err)

	lookup := &fakeLookup{sessions: map[uuid.UUID]*session.Session{sess.ID(): sess}}
	d := New(reg, lookup, nil, nil)

	e := event.Event{
		EventID:   "evt-2",
		EventType: model.EventLocateDecision,
		EventTime: 1,
		Payload:   &model.LocateDecision{SecurityID: "SEC-1"},
	}

	require.NoError(t, d.Dispatch(e))

	select {
	case <-sess.Outbox():
		t.Fatal("expected no message delivered to a session on a different channel")
	default:
	}
}

func TestDispatchSkipsUnknownCandidate(t *testing.T) {
	reg := registry.New()
	orphanID := uuid.New()

	_, err := reg.Subscribe(orphanID, model.ChannelAlerts, registry.Predicate{})
	require.NoError(t, err)

	lookup := &fakeLookup{sessions: map[uuid.UUID]*session.Session{}}
	d := New(reg, lookup, nil, nil)

	e := event.Event{
		EventID:   "evt-3",
		EventType: model.EventAlertNotice,
		EventTime: 1,
		Payload:   &model.AlertNotice{Severity: "HIGH", Category: "RISK"},
	}

	assert.NoError(t, d.Dispatch(e))
}
