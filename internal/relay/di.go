package relay

import (
	"github.com/foxseedlab/koewake/internal/config"
	"github.com/foxseedlab/koewake/internal/logging"
	"github.com/foxseedlab/koewake/internal/observability"
	"github.com/foxseedlab/koewake/internal/recognizer"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Handler, error) {
		return NewHandler(
			do.MustInvoke[recognizer.Recognizer](i),
			do.MustInvoke[*config.RelayConfig](i),
			observability.DefaultMetrics,
			logging.WithComponent("relay"),
		), nil
	})
}
