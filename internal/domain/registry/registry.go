// Package registry implements the Subscription Registry: the
// central, read-dominated index mapping routing keys to candidate session
// ids per channel.
//
// The registry holds weak references only (sessionId values, never Session
// pointers) and keeps two maps per channel:
//
//	keyIndex:   routingKey -> set<sessionId>
//	perSession: sessionId  -> list<Subscription>
//
// guarded by one RWMutex per channel. Reads (the event-matching hot path)
// vastly outnumber writes (subscribe/unsubscribe/teardown), so the registry
// favors readers via RWMutex rather than a copy-on-write snapshot: at
// subscribe/unsubscribe rates in the thousands/sec range reader lock
// overhead is negligible, and RWMutex keeps removeSession trivially
// consistent with concurrent matches.
package registry

import (
	"sync"

	"github.com/galatea-ims/event-hub/internal/domain/model"
	"github.com/google/uuid"
)

type channelIndex struct {
	mu         sync.RWMutex
	keyIndex   map[string]map[uuid.UUID]struct{}
	perSession map[uuid.UUID][]*Subscription
}

func newChannelIndex() *channelIndex {
	return &channelIndex{
		keyIndex:   make(map[string]map[uuid.UUID]struct{}),
		perSession: make(map[uuid.UUID][]*Subscription),
	}
}

// Registry is the subscription registry. It holds only sessionId
// values — it never extends a Session's lifetime.
type Registry struct {
	channels map[model.Channel]*channelIndex
}

// New builds a Registry with one index per known channel.
func New() *Registry {
	r := &Registry{channels: make(map[model.Channel]*channelIndex, len(channelDimensions))}
	for ch := range channelDimensions {
		r.channels[ch] = newChannelIndex()
	}
	return r
}

func (r *Registry) indexFor(channel model.Channel) *channelIndex {
	return r.channels[channel]
}

// Subscribe computes the canonical key set for pred and inserts sessionID
// into every key's candidate set. It is idempotent
// in (sessionID, pred): re-subscribing with an identical predicate has no
// additional effect on matching.
func (r *Registry) Subscribe(sessionID uuid.UUID, channel model.Channel, pred Predicate) (*Subscription, error) {
	idx := r.indexFor(channel)
	if idx == nil {
		return nil, errUnknownChannel(channel)
	}

	keys, err := canonicalKeys(channel, pred)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{SessionID: sessionID, Channel: channel, Predicate: pred, Keys: sortedKeys(keys)}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, existing := range idx.perSession[sessionID] {
		if existing.Predicate.Equal(pred) {
			// Already subscribed to this exact predicate: no-op, same
			// object returned so callers can reply SUBSCRIPTION_CONFIRMED
			// unconditionally.
			return existing, nil
		}
	}

	for _, k := range keys {
		set, ok := idx.keyIndex[k]
		if !ok {
			set = make(map[uuid.UUID]struct{})
			idx.keyIndex[k] = set
		}
		set[sessionID] = struct{}{}
	}
	idx.perSession[sessionID] = append(idx.perSession[sessionID], sub)

	return sub, nil
}

// Unsubscribe removes the subscription matching pred by structural equality.
// Keys with no remaining sessions are deleted
// from keyIndex entirely. Returns false if no matching subscription existed.
func (r *Registry) Unsubscribe(sessionID uuid.UUID, channel model.Channel, pred Predicate) bool {
	idx := r.indexFor(channel)
	if idx == nil {
		return false
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	subs := idx.perSession[sessionID]
	pos := -1
	for i, s := range subs {
		if s.Predicate.Equal(pred) {
			pos = i
			break
		}
	}
	if pos == -1 {
		return false
	}

	removed := subs[pos]
	idx.perSession[sessionID] = append(subs[:pos], subs[pos+1:]...)
	if len(idx.perSession[sessionID]) == 0 {
		delete(idx.perSession, sessionID)
	}

	for _, k := range removed.Keys {
		set, ok := idx.keyIndex[k]
		if !ok {
			continue
		}
		delete(set, sessionID)
		if len(set) == 0 {
			delete(idx.keyIndex, k)
		}
	}

	return true
}

// Matches returns the union of keyIndex[k] for every k in routingKeys
//: the candidate delivery set for one event. The
// caller (Dispatcher) is responsible for re-checking each candidate
// session's live state — Matches itself never inspects session liveness.
func (r *Registry) Matches(channel model.Channel, routingKeys []string) []uuid.UUID {
	idx := r.indexFor(channel)
	if idx == nil {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[uuid.UUID]struct{})
	for _, k := range routingKeys {
		for sid := range idx.keyIndex[k] {
			seen[sid] = struct{}{}
		}
	}

	out := make([]uuid.UUID, 0, len(seen))
	for sid := range seen {
		out = append(out, sid)
	}
	return out
}

// RemoveSession drops sessionID from every channel's keyIndex and
// perSession map. After it returns, keyIndex
// contains no reference to sessionID in any channel.
func (r *Registry) RemoveSession(sessionID uuid.UUID) {
	for _, idx := range r.channels {
		idx.mu.Lock()
		subs := idx.perSession[sessionID]
		delete(idx.perSession, sessionID)
		for _, sub := range subs {
			for _, k := range sub.Keys {
				set, ok := idx.keyIndex[k]
				if !ok {
					continue
				}
				delete(set, sessionID)
				if len(set) == 0 {
					delete(idx.keyIndex, k)
				}
			}
		}
		idx.mu.Unlock()
	}
}

// Subscriptions returns a snapshot of sessionID's subscriptions on channel,
// used by teardown and diagnostics. The returned slice is a copy.
func (r *Registry) Subscriptions(sessionID uuid.UUID, channel model.Channel) []*Subscription {
	idx := r.indexFor(channel)
	if idx == nil {
		return nil
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]*Subscription, len(idx.perSession[sessionID]))
	copy(out, idx.perSession[sessionID])
	return out
}

type unknownChannelError struct{ channel model.Channel }

func (e unknownChannelError) Error() string {
	return "registry: unknown channel " + string(e.channel)
}

func errUnknownChannel(channel model.Channel) error {
	return unknownChannelError{channel: channel}
}
