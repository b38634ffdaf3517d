package session

import (
	"github.com/foxseedlab/koewake/internal/audio"
	"github.com/foxseedlab/koewake/internal/config"
	"github.com/foxseedlab/koewake/internal/discord"
	"github.com/foxseedlab/koewake/internal/observability"
	"github.com/foxseedlab/koewake/internal/publisher"
	"github.com/foxseedlab/koewake/internal/repository"
	"github.com/foxseedlab/koewake/internal/transport"
	"github.com/foxseedlab/koewake/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.Repository](i)
		dialer := do.MustInvoke[transport.Dialer](i)
		newSource := do.MustInvoke[audio.SourceFactory](i)
		pub := do.MustInvoke[publisher.Publisher](i)
		dc := do.MustInvoke[discord.Client](i)
		wh := do.MustInvoke[webhook.Sender](i)
		return NewManager(cfg, repo, dialer, newSource, pub, dc, wh, observability.DefaultMetrics), nil
	})
}
