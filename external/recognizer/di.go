package recognizer

import (
	"github.com/foxseedlab/koewake/internal/config"
	"github.com/foxseedlab/koewake/internal/logging"
	"github.com/foxseedlab/koewake/internal/recognizer"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (recognizer.Recognizer, error) {
		c := do.MustInvoke[*config.RelayConfig](i)
		return NewCloudSpeechRecognizer(CloudSpeechConfig{
			CredentialsJSON: c.GoogleCloudCredentialsJSON,
			Language:        c.SpeechLanguage,
			Model:           c.SpeechModel,
		}, logging.WithComponent("recognizer")), nil
	})
}
