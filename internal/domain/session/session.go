// Package session implements the per-connection session unit: handshake
// state, subscription-permitted channels, the bounded outbox, and
// backpressure admission.
//
// A Session here is one pooled, channel-owning object per wire connection
// rather than a two-layer actor hierarchy fanning out to several devices
// per user — each connection gets exactly one Session. The sync.Pool reuse
// keeps allocation churn down under frequent connect/disconnect cycles.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/galatea-ims/event-hub/internal/domain/model"
	"github.com/google/uuid"
)

// OutboxEntry is a serialized message plus its per-session sequence number.
// Sequence numbers are assigned at enqueue time and drops still advance
// them. The sequence is not written to the wire: the egress writer sends
// Data alone, so a client cannot see a gap left by a drop, and entries from
// concurrent enqueuers may reach the outbox out of Seq order.
type OutboxEntry struct {
	Seq  uint64
	Data []byte
}

// Stats are the per-session delivery counters.
type Stats struct {
	Sent               uint64
	Dropped            uint64
	DroppedSinceLast   uint64
	DeliveredSinceLast uint64
	SlowClientEvents   uint64
}

var sessionPool = sync.Pool{New: func() any { return &Session{} }}

// Session owns its outbox and is the sole writer of its own sequence
// counter; the subscription registry only ever stores its ID, never a
// pointer back to the Session itself.
type Session struct {
	id       uuid.UUID
	userID   uuid.UUID
	roles    []string
	channels map[model.Channel]bool

	state int32 // atomic State

	outbox    chan OutboxEntry
	capacity  int
	highWater int

	seq uint64 // atomic

	sent               uint64 // atomic
	dropped            uint64 // atomic
	droppedSinceLast   uint64 // atomic
	deliveredSinceLast uint64 // atomic
	slowClientEvents   uint64 // atomic

	lastActivityUnixNano int64 // atomic

	closeOnce   sync.Once
	closeCh     chan struct{}
	closeReason CloseReason // written once before closeCh closes
}

// New acquires a Session from the pool and initializes it for a fresh
// connection. outboxCapacity is the configured outbox capacity (default
// 1024).
func New(userID uuid.UUID, roles []string, channels map[model.Channel]bool, outboxCapacity int) *Session {
	s := sessionPool.Get().(*Session)
	s.id = uuid.New()
	s.userID = userID
	s.roles = roles
	s.channels = channels
	s.capacity = outboxCapacity
	s.highWater = int(float64(outboxCapacity) * 0.8)
	s.outbox = make(chan OutboxEntry, outboxCapacity)
	s.closeCh = make(chan struct{})
	s.closeOnce = sync.Once{}
	atomic.StoreInt32(&s.state, int32(Handshaking))
	atomic.StoreUint64(&s.seq, 0)
	atomic.StoreUint64(&s.sent, 0)
	atomic.StoreUint64(&s.dropped, 0)
	atomic.StoreUint64(&s.droppedSinceLast, 0)
	atomic.StoreUint64(&s.deliveredSinceLast, 0)
	atomic.StoreUint64(&s.slowClientEvents, 0)
	s.Touch()
	return s
}

func (s *Session) ID() uuid.UUID     { return s.id }
func (s *Session) UserID() uuid.UUID { return s.userID }
func (s *Session) Roles() []string   { return s.roles }

// Allowed reports whether this session's token roles authorized channel at
// handshake.
func (s *Session) Allowed(channel model.Channel) bool {
	return s.channels[channel]
}

func (s *Session) State() State {
	return State(atomic.LoadInt32(&s.state))
}

func (s *Session) setState(st State) {
	atomic.StoreInt32(&s.state, int32(st))
}

// Open transitions Handshaking -> Open after a successful handshake.
func (s *Session) Open() {
	s.setState(Open)
}

// Touch records client activity for the liveness clock.
func (s *Session) Touch() {
	atomic.StoreInt64(&s.lastActivityUnixNano, time.Now().UnixNano())
}

// IdleFor reports how long it has been since the last observed activity.
func (s *Session) IdleFor() time.Duration {
	last := atomic.LoadInt64(&s.lastActivityUnixNano)
	return time.Since(time.Unix(0, last))
}

// Enqueue admits a serialized message onto the outbox without blocking:
// dispatcher workers must not stall on one slow session. Returns false if
// the session isn't Open or the outbox was full (message dropped).
func (s *Session) Enqueue(data []byte) bool {
	if s.State() != Open {
		return false
	}

	seq := atomic.AddUint64(&s.seq, 1)
	entry := OutboxEntry{Seq: seq, Data: data}

	load := len(s.outbox)
	if load >= s.capacity {
		atomic.AddUint64(&s.dropped, 1)
		atomic.AddUint64(&s.droppedSinceLast, 1)
		return false
	}

	select {
	case s.outbox <- entry:
		atomic.AddUint64(&s.sent, 1)
		atomic.AddUint64(&s.deliveredSinceLast, 1)
		if load+1 > s.highWater {
			atomic.AddUint64(&s.slowClientEvents, 1)
		}
		return true
	default:
		// Raced with a concurrent enqueuer that filled the buffer between
		// the length check and the send.
		atomic.AddUint64(&s.dropped, 1)
		atomic.AddUint64(&s.droppedSinceLast, 1)
		return false
	}
}

// Outbox exposes the receive side for the egress writer.
func (s *Session) Outbox() <-chan OutboxEntry {
	return s.outbox
}

// Done is closed when the session begins teardown, signaling any reader
// (e.g. the egress writer) to stop.
func (s *Session) Done() <-chan struct{} {
	return s.closeCh
}

// Stats returns a snapshot of the session's delivery counters.
func (s *Session) Stats() Stats {
	return Stats{
		Sent:               atomic.LoadUint64(&s.sent),
		Dropped:            atomic.LoadUint64(&s.dropped),
		DroppedSinceLast:   atomic.LoadUint64(&s.droppedSinceLast),
		DeliveredSinceLast: atomic.LoadUint64(&s.deliveredSinceLast),
		SlowClientEvents:   atomic.LoadUint64(&s.slowClientEvents),
	}
}

// slowConsumerThreshold is the fraction of delivered-plus-dropped traffic
// in one window past which a session is deemed a slow consumer.
const slowConsumerThreshold = 0.01

// CheckSlowConsumer evaluates the drop ratio accumulated since the last
// call and resets the window. Called once per liveness-scan tick.
func (s *Session) CheckSlowConsumer() bool {
	dropped := atomic.SwapUint64(&s.droppedSinceLast, 0)
	delivered := atomic.SwapUint64(&s.deliveredSinceLast, 0)
	if dropped == 0 {
		return false
	}
	total := dropped + delivered
	if total == 0 {
		return false
	}
	return float64(dropped)/float64(total) > slowConsumerThreshold
}

// BeginDraining stops new admissions (Enqueue will observe State()!=Open)
// while letting the egress writer flush what remains. A session that is
// already Closed stays Closed.
func (s *Session) BeginDraining() {
	for {
		cur := atomic.LoadInt32(&s.state)
		if State(cur) == Closed {
			return
		}
		if atomic.CompareAndSwapInt32(&s.state, cur, int32(Draining)) {
			return
		}
	}
}

// Close transitions to Closed and signals Done(). Safe to call more than
// once. The Session is not recycled here: the egress writer may still be
// draining the outbox — Release returns it to the pool once every goroutine
// has let go.
func (s *Session) Close() {
	s.CloseWithReason(ReasonClientClose)
}

// CloseWithReason is Close with the teardown cause recorded, so the egress
// writer can pick the matching wire close code after it drains.
func (s *Session) CloseWithReason(reason CloseReason) {
	s.closeOnce.Do(func() {
		s.closeReason = reason
		s.setState(Closed)
		close(s.closeCh)
	})
}

// CloseReason reports why the session closed. Only meaningful once Done()
// has fired.
func (s *Session) CloseReason() CloseReason {
	select {
	case <-s.closeCh:
		return s.closeReason
	default:
		return ""
	}
}

// Release recycles a Closed Session back to the pool. The caller must
// guarantee no goroutine still touches the session — in practice the wire
// handler calls it after its egress writer has exited.
func (s *Session) Release() {
	if s.State() != Closed {
		return
	}
	sessionPool.Put(s)
}
