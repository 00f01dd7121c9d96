package config

import (
	"time"

	"github.com/galatea-ims/event-hub/internal/domain/session"
	"go.uber.org/fx"
)

// Module exposes the values derived from the loaded Config that other
// packages' fx.Provide constructors need (session.ManagerConfig, the
// Authenticator). The Config itself is provided by the caller.
var Module = fx.Module("config",
	fx.Provide(
		ProvideSessionManagerConfig,
		ProvideAuthenticator,
	),
)

// ProvideSessionManagerConfig adapts the session.* block of Config into the
// session package's own config type.
func ProvideSessionManagerConfig(cfg *Config) session.ManagerConfig {
	return session.ManagerConfig{
		OutboxCapacity: cfg.Session.OutboxCapacity,
		LivenessTick:   defaultLivenessTick,
		IdleTimeout:    cfg.Session.LivenessTimeout,
		ShutdownGrace:  cfg.Session.ShutdownGrace,
	}
}

// defaultLivenessTick is the liveness scan cadence; it is not itself an
// exposed configuration option.
const defaultLivenessTick = 30 * time.Second

// ProvideAuthenticator builds the JWT authenticator used at handshake,
// caching up to 4096 distinct tokens' claims.
func ProvideAuthenticator(cfg *Config) (session.Authenticator, error) {
	return session.NewJWTAuthenticator([]byte(cfg.Auth.Secret), cfg.Auth.IssuerURI, cfg.Auth.Audience, 4096)
}
