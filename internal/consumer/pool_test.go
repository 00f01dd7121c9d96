package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/IBM/sarama"
	"github.com/galatea-ims/event-hub/internal/domain/registry"
	"github.com/galatea-ims/event-hub/internal/domain/session"
	"github.com/galatea-ims/event-hub/internal/service/dispatch"
	"github.com/galatea-ims/event-hub/internal/service/router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

type emptyLookup struct{}

func (emptyLookup) Get(uuid.UUID) (*session.Session, bool) { return nil, false }

// fakeGroupSession records MarkMessage/Commit calls so tests can assert the
// manual-commit-after-batch discipline without a broker.
type fakeGroupSession struct {
	ctx     context.Context
	marked  []*sarama.ConsumerMessage
	commits int
}

func (f *fakeGroupSession) Claims() map[string][]int32               { return nil }
func (f *fakeGroupSession) MemberID() string                         { return "member-1" }
func (f *fakeGroupSession) GenerationID() int32                      { return 1 }
func (f *fakeGroupSession) MarkOffset(string, int32, int64, string)  {}
func (f *fakeGroupSession) Commit()                                  { f.commits++ }
func (f *fakeGroupSession) ResetOffset(string, int32, int64, string) {}
func (f *fakeGroupSession) Context() context.Context                 { return f.ctx }

func (f *fakeGroupSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	f.marked = append(f.marked, msg)
}

type fakeClaim struct {
	topic     string
	partition int32
	messages  chan *sarama.ConsumerMessage
}

func (f *fakeClaim) Topic() string                            { return f.topic }
func (f *fakeClaim) Partition() int32                         { return f.partition }
func (f *fakeClaim) InitialOffset() int64                     { return 0 }
func (f *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (f *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return f.messages }

func newTestPool(sink QuarantineSink) *Pool {
	reg := registry.New()
	rt := router.New(dispatch.New(reg, emptyLookup{}, testLogger(), nil))
	return &Pool{
		router: rt,
		sink:   sink,
		logger: testLogger(),
	}
}

func alertRecord(offset int64) *sarama.ConsumerMessage {
	value := fmt.Sprintf(`{
		"eventId": "evt-%d",
		"eventType": "ALERT_NOTICE",
		"eventTime": 1700000000000,
		"payload": {"severity": "HIGH", "category": "RISK", "message": "m"}
	}`, offset)
	return &sarama.ConsumerMessage{
		Topic:     "alert-events",
		Partition: 0,
		Offset:    offset,
		Value:     []byte(value),
	}
}

func TestConsumeClaimRoutesAndCommitsTail(t *testing.T) {
	sink := &recordingSink{}
	handler := &groupHandler{pool: newTestPool(sink)}

	claim := &fakeClaim{topic: "alert-events", messages: make(chan *sarama.ConsumerMessage, 3)}
	for i := int64(1); i <= 3; i++ {
		claim.messages <- alertRecord(i)
	}
	close(claim.messages)

	sess := &fakeGroupSession{ctx: context.Background()}
	require.NoError(t, handler.ConsumeClaim(sess, claim))

	assert.Equal(t, 0, sink.calls)
	assert.Equal(t, 1, sess.commits, "a partial batch commits once at claim end")
	require.Len(t, sess.marked, 1)
	assert.Equal(t, int64(3), sess.marked[0].Offset, "the last record of the batch is marked")
}

func TestConsumeClaimQuarantinesUndecodableRecord(t *testing.T) {
	sink := &recordingSink{}
	handler := &groupHandler{pool: newTestPool(sink)}

	claim := &fakeClaim{topic: "alert-events", messages: make(chan *sarama.ConsumerMessage, 2)}
	claim.messages <- &sarama.ConsumerMessage{Topic: "alert-events", Offset: 1, Value: []byte("not json")}
	claim.messages <- alertRecord(2)
	close(claim.messages)

	sess := &fakeGroupSession{ctx: context.Background()}
	require.NoError(t, handler.ConsumeClaim(sess, claim))

	assert.Equal(t, 1, sink.calls, "the undecodable record is quarantined")
	assert.Equal(t, 1, sess.commits, "the offset still advances past the quarantined record")
}

func TestConsumeClaimQuarantinesMismatchedTopic(t *testing.T) {
	sink := &recordingSink{}
	handler := &groupHandler{pool: newTestPool(sink)}

	// A locate decision arriving on the alert topic violates the dispatch
	// table and is quarantined rather than routed.
	claim := &fakeClaim{topic: "alert-events", messages: make(chan *sarama.ConsumerMessage, 1)}
	claim.messages <- &sarama.ConsumerMessage{
		Topic:  "alert-events",
		Offset: 1,
		Value: []byte(`{
			"eventId": "evt-x",
			"eventType": "LOCATE_DECISION",
			"eventTime": 1700000000000,
			"payload": {"locateId": "LOC-1", "securityId": "SEC-1", "status": "APPROVED"}
		}`),
	}
	close(claim.messages)

	sess := &fakeGroupSession{ctx: context.Background()}
	require.NoError(t, handler.ConsumeClaim(sess, claim))

	assert.Equal(t, 1, sink.calls)
}

func TestConsumeClaimCommitsFullBatchesEagerly(t *testing.T) {
	sink := &recordingSink{}
	handler := &groupHandler{pool: newTestPool(sink)}

	claim := &fakeClaim{topic: "alert-events", messages: make(chan *sarama.ConsumerMessage, maxBatch)}
	for i := int64(1); i <= int64(maxBatch); i++ {
		claim.messages <- alertRecord(i)
	}
	close(claim.messages)

	sess := &fakeGroupSession{ctx: context.Background()}
	require.NoError(t, handler.ConsumeClaim(sess, claim))

	assert.Equal(t, 1, sess.commits, "exactly one commit for exactly one full batch")
	require.Len(t, sess.marked, 1)
	assert.Equal(t, int64(maxBatch), sess.marked[0].Offset)
}
