package dispatch

import (
	"github.com/galatea-ims/event-hub/internal/domain/session"
	"go.uber.org/fx"
)

// Module wires the Dispatcher as a singleton, adapting *session.Manager
// (which already implements SessionLookup) into that interface for fx.
var Module = fx.Module("dispatch",
	fx.Provide(
		func(m *session.Manager) SessionLookup { return m },
		New,
	),
)
