// Package http wires the chi mux serving the four client-facing websocket
// endpoints plus an operational health/metrics surface.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/galatea-ims/event-hub/internal/config"
	"github.com/galatea-ims/event-hub/internal/domain/model"
	"github.com/galatea-ims/event-hub/internal/domain/session"
	wshandler "github.com/galatea-ims/event-hub/internal/handler/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

// Server owns the net/http.Server and the chi router mounting every
// client-facing websocket endpoint plus the operational surface.
type Server struct {
	addr   string
	srv    *http.Server
	logger *slog.Logger
}

// New builds the router: one Handler per client channel, mounted at its
// fixed endpoint, plus /healthz and /metrics.
func New(cfg *config.Config, manager *session.Manager, registerer prometheus.Registerer, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/ws/positions", wshandler.New(model.ChannelPositions, manager, cfg.Wire, logger).ServeHTTP)
	r.Get("/ws/inventory", wshandler.New(model.ChannelInventory, manager, cfg.Wire, logger).ServeHTTP)
	r.Get("/ws/locates", wshandler.New(model.ChannelLocates, manager, cfg.Wire, logger).ServeHTTP)
	r.Get("/ws/alerts", wshandler.New(model.ChannelAlerts, manager, cfg.Wire, logger).ServeHTTP)

	// Admin channels are Admin-role only; mounted under a dedicated prefix
	// rather than alongside the four client-facing endpoints, since no
	// payload family routes events there today — it exists purely as a
	// handshake/authorization boundary for operational tooling.
	r.Get("/ws/admin/rules", wshandler.New(model.ChannelAdmin, manager, cfg.Wire, logger).ServeHTTP)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if gatherer, ok := registerer.(prometheus.Gatherer); ok {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	return &Server{
		addr:   addr,
		logger: logger,
		srv: &http.Server{
			Addr:    addr,
			Handler: r,
		},
	}
}

// Start begins serving in a background goroutine. Refusing new
// connections is step one of the staged shutdown this lifecycle hook
// participates in.
func (s *Server) Start(context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("http: listen %s: %w", s.addr, err)
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server exited", "error", err)
		}
	}()
	s.logger.Info("http server listening", "addr", s.addr)
	return nil
}

// Stop gracefully shuts the listener down, refusing new connections
// immediately while in-flight requests finish per ctx's deadline. Upgraded
// websocket connections are hijacked, so Shutdown neither waits for nor
// closes them.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Module provides the Server and registers its Start/Stop with fx.Lifecycle.
var Module = fx.Module("http",
	fx.Provide(func(cfg *config.Config, manager *session.Manager, registerer prometheus.Registerer, logger *slog.Logger) *Server {
		return New(cfg, manager, registerer, logger, ":8080")
	}),
	fx.Invoke(func(lc fx.Lifecycle, s *Server) {
		lc.Append(fx.Hook{OnStart: s.Start, OnStop: s.Stop})
	}),
)
