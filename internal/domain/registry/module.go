package registry

import "go.uber.org/fx"

// Module wires the Subscription Registry as a singleton shared by the
// Fan-out Dispatcher and the Session Manager.
var Module = fx.Module("registry",
	fx.Provide(New),
)
