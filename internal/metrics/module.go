// Package metrics provides the process-wide prometheus.Registerer every
// component's counters attach to.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Module exposes the default prometheus registry for injection.
var Module = fx.Module("metrics",
	fx.Provide(func() prometheus.Registerer { return prometheus.DefaultRegisterer }),
)
