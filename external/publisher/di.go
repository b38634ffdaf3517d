package publisher

import (
	"github.com/foxseedlab/koewake/internal/config"
	"github.com/foxseedlab/koewake/internal/logging"
	"github.com/foxseedlab/koewake/internal/publisher"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (publisher.Publisher, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewKafkaPublisher(Config{
			Brokers: c.KafkaBrokers,
			Topic:   c.KafkaTopic,
		}, logging.WithComponent("publisher")), nil
	})
}
