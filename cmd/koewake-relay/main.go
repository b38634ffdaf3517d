package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	configloader "github.com/foxseedlab/koewake/external/config"
	recognizerimpl "github.com/foxseedlab/koewake/external/recognizer"
	"github.com/foxseedlab/koewake/internal/config"
	"github.com/foxseedlab/koewake/internal/logging"
	"github.com/foxseedlab/koewake/internal/observability"
	"github.com/foxseedlab/koewake/internal/relay"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := mustLoadConfig()
	logCloser := initLogger(cfg)
	defer logCloser.Close()
	log.Info().
		Str("env", cfg.Env).
		Str("addr", cfg.RelayAddr).
		Str("language", cfg.SpeechLanguage).
		Bool("vad", cfg.VADEnabled).
		Msg("startup: configuration loaded")

	injector := setupDI(cfg)
	handler, err := do.Invoke[*relay.Handler](injector)
	if err != nil {
		log.Error().Err(err).Msg("failed to build relay handler")
		os.Exit(1)
	}

	srv := observability.NewServer(cfg.RelayAddr, relay.NewRouter(handler, prometheus.DefaultGatherer))
	srv.Start()
	log.Info().Str("addr", cfg.RelayAddr).Msg("relay listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("relay shutdown failed")
	}
}

func mustLoadConfig() *config.RelayConfig {
	cfg, err := configloader.LoadRelay()
	if err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.RelayConfig) io.Closer {
	level := cfg.LogLevel
	if cfg.IsDevelopment() {
		level = "debug"
	}
	closer, err := logging.Init(logging.Config{
		Level:  level,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize logger")
		os.Exit(1)
	}
	return closer
}

func setupDI(cfg *config.RelayConfig) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	recognizerimpl.RegisterDI(injector)
	relay.RegisterDI(injector)

	return injector
}
