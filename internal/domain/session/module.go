package session

import (
	"context"

	"go.uber.org/fx"
)

// Module wires the Session Manager as a singleton (its Authenticator is
// provided by the config module), registering lifecycle hooks for the
// liveness scanner's shutdown.
var Module = fx.Module("session",
	fx.Provide(NewManager),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, m *Manager) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			m.Shutdown(ctx)
			return nil
		},
	})
}
