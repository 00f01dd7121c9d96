package cmd

import (
	"log/slog"
	"os"

	httpserver "github.com/galatea-ims/event-hub/infra/server/http"
	"github.com/galatea-ims/event-hub/internal/config"
	"github.com/galatea-ims/event-hub/internal/consumer"
	"github.com/galatea-ims/event-hub/internal/domain/registry"
	"github.com/galatea-ims/event-hub/internal/domain/session"
	"github.com/galatea-ims/event-hub/internal/metrics"
	"github.com/galatea-ims/event-hub/internal/publisher"
	"github.com/galatea-ims/event-hub/internal/service/dispatch"
	"github.com/galatea-ims/event-hub/internal/service/router"
	"go.uber.org/fx"
)

// NewApp composes every component module into one fx.App, in the bottom-up
// order: registry -> session -> dispatch -> router ->
// consumer, with the publisher and HTTP server as independent leaves.
func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
		),
		metrics.Module,
		config.Module,
		registry.Module,
		session.Module,
		dispatch.Module,
		router.Module,
		consumer.Module,
		publisher.Module,
		httpserver.Module,
	)
}

// ProvideLogger builds the process-wide structured logger, using log/slog
// throughout rather than a separate logging library.
func ProvideLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
