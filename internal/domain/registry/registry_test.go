package registry

import (
	"testing"

	"github.com/galatea-ims/event-hub/internal/domain/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeAndMatch(t *testing.T) {
	reg := New()
	sessionID := uuid.New()

	_, err := reg.Subscribe(sessionID, model.ChannelLocates, Predicate{"securityId": "SEC-EQ-001"})
	require.NoError(t, err)

	matches := reg.Matches(model.ChannelLocates, []string{"securityId:SEC-EQ-001"})
	assert.Equal(t, []uuid.UUID{sessionID}, matches)

	assert.Empty(t, reg.Matches(model.ChannelLocates, []string{"securityId:SEC-OTHER"}))
}

func TestSubscribeIsIdempotent(t *testing.T) {
	reg := New()
	sessionID := uuid.New()
	pred := Predicate{"book": "EQ-01"}

	first, err := reg.Subscribe(sessionID, model.ChannelPositions, pred)
	require.NoError(t, err)
	second, err := reg.Subscribe(sessionID, model.ChannelPositions, pred)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Len(t, reg.Subscriptions(sessionID, model.ChannelPositions), 1)
}

func TestUnsubscribeRemovesKeys(t *testing.T) {
	reg := New()
	sessionID := uuid.New()
	pred := Predicate{"book": "EQ-01", "security": "SEC-1"}

	_, err := reg.Subscribe(sessionID, model.ChannelPositions, pred)
	require.NoError(t, err)
	require.NotEmpty(t, reg.Matches(model.ChannelPositions, []string{"book:EQ-01&security:SEC-1"}))

	ok := reg.Unsubscribe(sessionID, model.ChannelPositions, pred)
	assert.True(t, ok)

	assert.Empty(t, reg.Matches(model.ChannelPositions, []string{"book:EQ-01&security:SEC-1"}))
	assert.Empty(t, reg.Subscriptions(sessionID, model.ChannelPositions))
}

func TestFilteredSubscriptionIgnoresOtherEvents(t *testing.T) {
	reg := New()
	sessionID := uuid.New()

	// Client-facing field name: SUBSCRIBE payloads say bookId where the
	// routing key says book.
	_, err := reg.Subscribe(sessionID, model.ChannelPositions, Predicate{"bookId": "EQ-01"})
	require.NoError(t, err)

	matching := model.CombineKeys(
		model.KV{Name: "book", Value: "EQ-01"},
		model.KV{Name: "security", Value: "SEC-1"},
		model.KV{Name: "date", Value: "2025-01-15"},
	)
	assert.Equal(t, []uuid.UUID{sessionID}, reg.Matches(model.ChannelPositions, matching))

	otherBook := model.CombineKeys(
		model.KV{Name: "book", Value: "EQ-02"},
		model.KV{Name: "security", Value: "SEC-1"},
		model.KV{Name: "date", Value: "2025-01-15"},
	)
	assert.Empty(t, reg.Matches(model.ChannelPositions, otherBook),
		"a book-filtered subscription must not receive other books' events")
}

func TestMultiFieldPositionPredicateMatchesConjunctively(t *testing.T) {
	reg := New()
	sessionID := uuid.New()

	_, err := reg.Subscribe(sessionID, model.ChannelPositions, Predicate{"bookId": "EQ-01", "securityId": "SEC-EQ-001"})
	require.NoError(t, err)

	both := model.CombineKeys(
		model.KV{Name: "book", Value: "EQ-01"},
		model.KV{Name: "security", Value: "SEC-EQ-001"},
		model.KV{Name: "date", Value: "2025-01-15"},
	)
	assert.NotEmpty(t, reg.Matches(model.ChannelPositions, both))

	bookOnly := model.CombineKeys(
		model.KV{Name: "book", Value: "EQ-01"},
		model.KV{Name: "security", Value: "SEC-OTHER"},
		model.KV{Name: "date", Value: "2025-01-15"},
	)
	assert.Empty(t, reg.Matches(model.ChannelPositions, bookOnly),
		"both fields must match, not just one")
}

func TestMultiFieldLocatePredicateMatchesPerField(t *testing.T) {
	reg := New()
	sessionID := uuid.New()

	_, err := reg.Subscribe(sessionID, model.ChannelLocates, Predicate{"securityId": "SEC-1", "clientId": "CP-9"})
	require.NoError(t, err)

	bySecurity := model.SingleKeys(
		model.KV{Name: "securityId", Value: "SEC-1"},
		model.KV{Name: "clientId", Value: "CP-1"},
		model.KV{Name: "status", Value: "APPROVED"},
	)
	assert.NotEmpty(t, reg.Matches(model.ChannelLocates, bySecurity),
		"locate filters match per field, so the security hit alone suffices")
}

func TestUnsubscribeUnknownPredicateReturnsFalse(t *testing.T) {
	reg := New()
	sessionID := uuid.New()

	ok := reg.Unsubscribe(sessionID, model.ChannelPositions, Predicate{"book": "EQ-01"})
	assert.False(t, ok)
}

func TestWildcardSubscriptionMatchesEverything(t *testing.T) {
	reg := New()
	sessionID := uuid.New()

	_, err := reg.Subscribe(sessionID, model.ChannelInventory, Predicate{})
	require.NoError(t, err)

	matches := reg.Matches(model.ChannelInventory, []string{"all"})
	assert.Equal(t, []uuid.UUID{sessionID}, matches)
}

func TestRemoveSessionClearsEveryChannel(t *testing.T) {
	reg := New()
	sessionID := uuid.New()

	_, err := reg.Subscribe(sessionID, model.ChannelPositions, Predicate{"book": "EQ-01"})
	require.NoError(t, err)
	_, err = reg.Subscribe(sessionID, model.ChannelAlerts, Predicate{"severity": "HIGH"})
	require.NoError(t, err)

	reg.RemoveSession(sessionID)

	assert.Empty(t, reg.Matches(model.ChannelPositions, []string{"book:EQ-01"}))
	assert.Empty(t, reg.Matches(model.ChannelAlerts, []string{"severity:HIGH"}))
	assert.Empty(t, reg.Subscriptions(sessionID, model.ChannelPositions))
}

func TestSubscribeUnknownChannel(t *testing.T) {
	reg := New()
	_, err := reg.Subscribe(uuid.New(), model.Channel("not-a-channel"), Predicate{})
	assert.Error(t, err)
}
