package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/galatea-ims/event-hub/internal/domain/model"
	"github.com/galatea-ims/event-hub/internal/domain/registry"
	"github.com/google/uuid"
)

// ManagerConfig holds the session lifecycle tunables.
type ManagerConfig struct {
	OutboxCapacity int
	LivenessTick   time.Duration
	IdleTimeout    time.Duration
	ShutdownGrace  time.Duration
}

// DefaultManagerConfig returns the out-of-the-box session tunables.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		OutboxCapacity: 1024,
		LivenessTick:   30 * time.Second,
		IdleTimeout:    90 * time.Second,
		ShutdownGrace:  5 * time.Second,
	}
}

// Manager is the session manager: the concurrent session table, the
// handshake/auth entry point, and the liveness scanner that enforces idle
// timeout and slow-consumer teardown.
//
// The session table is a plain sync.Map keyed by uuid.UUID. Each Session
// maps to exactly one wire connection, so there is only one level of
// lookup to maintain.
type Manager struct {
	cfg      ManagerConfig
	auth     Authenticator
	registry *registry.Registry
	logger   *slog.Logger

	table sync.Map // uuid.UUID -> *Session

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// NewManager constructs a Manager and starts its liveness scanner.
func NewManager(auth Authenticator, reg *registry.Registry, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:      cfg,
		auth:     auth,
		registry: reg,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go m.runLivenessScan()
	return m
}

// Handshake validates rawToken, resolves the session's permitted channels
// from its roles, and registers a new Open Session in the table. On
// failure, the caller must close the underlying connection with code 1008.
func (m *Manager) Handshake(rawToken string) (*Session, error) {
	claims, err := m.auth.Authenticate(rawToken)
	if err != nil {
		return nil, fmt.Errorf("session: handshake rejected: %w", err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("session: handshake rejected: invalid subject claim: %w", err)
	}

	channels := AllowedChannels(claims.Roles)
	s := New(userID, claims.Roles, channels, m.cfg.OutboxCapacity)
	s.Open()
	m.table.Store(s.ID(), s)

	m.logger.Info("session opened", "session_id", s.ID(), "user_id", userID, "roles", claims.Roles)
	return s, nil
}

// Get looks up a live Session by id.
func (m *Manager) Get(id uuid.UUID) (*Session, bool) {
	v, ok := m.table.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Subscribe validates channel authorization and delegates to the registry.
// Returns ErrChannelNotAuthorized if the session's roles never granted
// channel at handshake time.
func (m *Manager) Subscribe(s *Session, channel model.Channel, pred registry.Predicate) (*registry.Subscription, error) {
	if !s.Allowed(channel) {
		return nil, ErrChannelNotAuthorized
	}
	return m.registry.Subscribe(s.ID(), channel, pred)
}

// Unsubscribe mirrors Subscribe for the UNSUBSCRIBE_<CHANNEL> message.
func (m *Manager) Unsubscribe(s *Session, channel model.Channel, pred registry.Predicate) bool {
	return m.registry.Unsubscribe(s.ID(), channel, pred)
}

// Ping records client liveness, resetting the idle clock without altering
// delivery state.
func (m *Manager) Ping(s *Session) {
	s.Touch()
}

// Teardown removes a session from the table and registry and closes it.
// Idempotent.
func (m *Manager) Teardown(s *Session, reason CloseReason) {
	m.table.Delete(s.ID())
	m.registry.RemoveSession(s.ID())
	s.BeginDraining()
	s.CloseWithReason(reason)
	m.logger.Info("session closed", "session_id", s.ID(), "reason", reason, "close_code", reason.CloseCode())
}

// runLivenessScan enforces the idle-timeout and slow-consumer teardown
// policy every LivenessTick (default 30s).
func (m *Manager) runLivenessScan() {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.cfg.LivenessTick)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.scanOnce()
		}
	}
}

func (m *Manager) scanOnce() {
	m.table.Range(func(key, value any) bool {
		s := value.(*Session)

		if s.IdleFor() > m.cfg.IdleTimeout {
			m.Teardown(s, ReasonLivenessTimeout)
			return true
		}
		if s.CheckSlowConsumer() {
			m.Teardown(s, ReasonSlowConsumer)
			return true
		}
		return true
	})
}

// Shutdown stops the liveness scanner and tears down every open session
// with ReasonAdminShutdown. It waits at most ShutdownGrace for that pass;
// past it, Shutdown logs a warning and returns while the pass continues.
func (m *Manager) Shutdown(ctx context.Context) {
	m.once.Do(func() { close(m.stopCh) })

	select {
	case <-m.doneCh:
	case <-ctx.Done():
	}

	deadline := time.NewTimer(m.cfg.ShutdownGrace)
	defer deadline.Stop()

	drained := make(chan struct{})
	go func() {
		m.table.Range(func(key, value any) bool {
			m.Teardown(value.(*Session), ReasonAdminShutdown)
			return true
		})
		close(drained)
	}()

	select {
	case <-drained:
	case <-deadline.C:
		m.logger.Warn("shutdown grace period elapsed with sessions still open")
	}
}

// errAuthorization is a sentinel distinguishing policy violations from
// transport errors so the websocket handler can pick the right close code.
type errAuthorization string

func (e errAuthorization) Error() string { return string(e) }

// ErrChannelNotAuthorized is returned by Subscribe when a session's roles
// never granted the requested channel.
const ErrChannelNotAuthorized = errAuthorization("session: channel not authorized for this session's roles")
