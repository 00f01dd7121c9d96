package session

import (
	"testing"

	"github.com/galatea-ims/event-hub/internal/domain/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenSession(t *testing.T, capacity int) *Session {
	t.Helper()
	s := New(uuid.New(), []string{"Trader"}, map[model.Channel]bool{model.ChannelPositions: true}, capacity)
	s.Open()
	t.Cleanup(s.Close)
	return s
}

func TestEnqueueAdmitsBelowCapacity(t *testing.T) {
	s := newOpenSession(t, 4)

	ok := s.Enqueue([]byte("payload"))
	require.True(t, ok)

	entry := <-s.Outbox()
	assert.Equal(t, uint64(1), entry.Seq)
	assert.Equal(t, []byte("payload"), entry.Data)
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	s := newOpenSession(t, 2)

	require.True(t, s.Enqueue([]byte("a")))
	require.True(t, s.Enqueue([]byte("b")))
	ok := s.Enqueue([]byte("c"))

	assert.False(t, ok)
	assert.Equal(t, uint64(1), s.Stats().Dropped)
}

func TestEnqueueAdvancesSequenceEvenOnDrop(t *testing.T) {
	s := newOpenSession(t, 1)

	require.True(t, s.Enqueue([]byte("a")))
	require.False(t, s.Enqueue([]byte("b")))
	require.False(t, s.Enqueue([]byte("c")))

	entry := <-s.Outbox()
	assert.Equal(t, uint64(1), entry.Seq)

	ok := s.Enqueue([]byte("d"))
	require.True(t, ok)
	next := <-s.Outbox()
	assert.Equal(t, uint64(4), next.Seq)
}

func TestEnqueueRejectsWhenNotOpen(t *testing.T) {
	s := New(uuid.New(), nil, nil, 4)
	defer s.Close()

	ok := s.Enqueue([]byte("x"))
	assert.False(t, ok)
}

func TestCheckSlowConsumerResetsWindow(t *testing.T) {
	s := newOpenSession(t, 4)

	for i := 0; i < 100; i++ {
		s.Enqueue([]byte("x"))
	}
	for i := 0; i < 4; i++ {
		<-s.Outbox()
	}
	for i := 0; i < 300; i++ {
		s.Enqueue([]byte("x"))
	}

	assert.True(t, s.CheckSlowConsumer())
	assert.False(t, s.CheckSlowConsumer(), "window counters must reset after evaluation")
}

func TestAllowedReflectsGrantedChannels(t *testing.T) {
	s := New(uuid.New(), []string{"Trader"}, map[model.Channel]bool{model.ChannelLocates: true}, 4)
	defer s.Close()

	assert.True(t, s.Allowed(model.ChannelLocates))
	assert.False(t, s.Allowed(model.ChannelAdmin))
}
