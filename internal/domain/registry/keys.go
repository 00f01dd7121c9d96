package registry

import (
	"fmt"

	"github.com/galatea-ims/event-hub/internal/domain/model"
)

// dimension is one filter axis a channel recognizes: the canonical name
// used in routing keys, plus the client-facing field names that populate it
// (SUBSCRIBE payloads carry e.g. "bookId" where the routing key says "book").
type dimension struct {
	key     string
	aliases []string
}

// dimensionSet declares a channel's filter axes and whether it requires
// powerset combinations (Position, Inventory) or single-field-only matches
// (Locate, Alert).
type dimensionSet struct {
	dims    []dimension
	combine bool
}

var channelDimensions = map[model.Channel]dimensionSet{
	model.ChannelPositions: {combine: true, dims: []dimension{
		{key: "book", aliases: []string{"bookId"}},
		{key: "security", aliases: []string{"securityId"}},
		{key: "date", aliases: []string{"businessDate"}},
	}},
	model.ChannelInventory: {combine: true, dims: []dimension{
		{key: "security", aliases: []string{"securityId"}},
		{key: "type", aliases: []string{"calculationType"}},
		{key: "date", aliases: []string{"businessDate"}},
	}},
	model.ChannelLocates: {combine: false, dims: []dimension{
		{key: "securityId"},
		{key: "clientId"},
		{key: "status"},
	}},
	model.ChannelAlerts: {combine: false, dims: []dimension{
		{key: "severity"},
		{key: "category"},
	}},
}

// value resolves d's value from a predicate, trying the canonical key name
// first and then each client-facing alias. Empty means wildcard.
func (d dimension) value(pred Predicate) string {
	if v := pred[d.key]; v != "" {
		return v
	}
	for _, a := range d.aliases {
		if v := pred[a]; v != "" {
			return v
		}
	}
	return ""
}

// canonicalKeys computes the exact key strings a predicate is indexed
// under. Every key here appears in the routing-key enumeration of any
// conforming event the predicate matches, and in no other event's — the
// event side enumerates all its slices, the subscription side names only
// its own.
func canonicalKeys(channel model.Channel, pred Predicate) ([]string, error) {
	ds, ok := channelDimensions[channel]
	if !ok {
		return nil, fmt.Errorf("registry: unknown channel %q", channel)
	}

	kvs := make([]model.KV, 0, len(ds.dims))
	for _, d := range ds.dims {
		kvs = append(kvs, model.KV{Name: d.key, Value: d.value(pred)})
	}

	return model.PredicateKeys(ds.combine, kvs...), nil
}
