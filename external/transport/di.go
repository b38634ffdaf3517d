package transport

import (
	"github.com/foxseedlab/koewake/internal/config"
	"github.com/foxseedlab/koewake/internal/logging"
	"github.com/foxseedlab/koewake/internal/transport"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (transport.Dialer, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewWebSocketDialer(c.BackendURL, logging.WithComponent("transport")), nil
	})
}
