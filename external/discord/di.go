package discord

import (
	"github.com/foxseedlab/koewake/internal/config"
	discordpkg "github.com/foxseedlab/koewake/internal/discord"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (discordpkg.Client, error) {
		c := do.MustInvoke[*config.Config](i)
		if c.DiscordToken == "" {
			return NewDisabledClient(), nil
		}
		return NewClient(c.DiscordToken), nil
	})
}
