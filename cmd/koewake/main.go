package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	audioimpl "github.com/foxseedlab/koewake/external/audio"
	configloader "github.com/foxseedlab/koewake/external/config"
	"github.com/foxseedlab/koewake/external/discord"
	publisherimpl "github.com/foxseedlab/koewake/external/publisher"
	repositoryimpl "github.com/foxseedlab/koewake/external/repository"
	transportimpl "github.com/foxseedlab/koewake/external/transport"
	webhookimpl "github.com/foxseedlab/koewake/external/webhook"
	"github.com/foxseedlab/koewake/internal/config"
	discordpkg "github.com/foxseedlab/koewake/internal/discord"
	"github.com/foxseedlab/koewake/internal/logging"
	"github.com/foxseedlab/koewake/internal/observability"
	"github.com/foxseedlab/koewake/internal/publisher"
	"github.com/foxseedlab/koewake/internal/repository"
	"github.com/foxseedlab/koewake/internal/session"
	"github.com/foxseedlab/koewake/internal/ui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"

	tea "github.com/charmbracelet/bubbletea"
)

const (
	discordConnectTimeout = 20 * time.Second
	recoverTimeout        = 10 * time.Second
	shutdownTimeout       = 45 * time.Second
)

func main() {
	cfg := mustLoadConfig()
	logCloser := initLogger(cfg)
	log.Info().Str("env", cfg.Env).Str("backendUrl", cfg.BackendURL).Msg("startup: configuration loaded")

	log.Info().Msg("startup: building dependency graph")
	injector := setupDI(cfg)

	err := run(cfg, injector)
	if err != nil {
		log.Error().Err(err).Msg("koewake exited with error")
		fmt.Fprintln(os.Stderr, "koewake:", err)
	}
	_ = logCloser.Close()
	if err != nil {
		os.Exit(1)
	}
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(1)
	}
	return cfg
}

// initLogger keeps logs off the terminal the UI draws on unless LOG_FILE is
// explicitly emptied.
func initLogger(cfg *config.Config) io.Closer {
	level := cfg.LogLevel
	if cfg.IsDevelopment() {
		level = "debug"
	}
	closer, err := logging.Init(logging.Config{
		Level:  level,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Stderr: true,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize logger")
		os.Exit(1)
	}
	return closer
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	audioimpl.RegisterDI(injector)
	transportimpl.RegisterDI(injector)
	publisherimpl.RegisterDI(injector)
	discord.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	session.RegisterDI(injector)

	return injector
}

func run(cfg *config.Config, injector do.Injector) error {
	repo, err := do.Invoke[repository.Repository](injector)
	if err != nil {
		return fmt.Errorf("resolve repository: %w", err)
	}
	defer closeQuietly("repository", repo)

	pub, err := do.Invoke[publisher.Publisher](injector)
	if err != nil {
		return fmt.Errorf("resolve publisher: %w", err)
	}
	defer closeQuietly("publisher", pub)

	dc, err := do.Invoke[discordpkg.Client](injector)
	if err != nil {
		return fmt.Errorf("resolve discord client: %w", err)
	}
	manager, err := do.Invoke[*session.Manager](injector)
	if err != nil {
		return fmt.Errorf("resolve session manager: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), discordConnectTimeout)
	err = dc.Connect(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	defer closeQuietly("discord", dc)

	ctx, cancel = context.WithTimeout(context.Background(), recoverTimeout)
	err = manager.RecoverOrphans(ctx)
	cancel()
	if err != nil {
		log.Warn().Err(err).Msg("failed to close recordings left by a previous run")
	}

	if cfg.MetricsAddr != "" {
		srv := observability.NewServer(cfg.MetricsAddr, observability.NewRouter(prometheus.DefaultGatherer))
		srv.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Warn().Err(err).Msg("metrics server shutdown failed")
			}
		}()
	}

	program := tea.NewProgram(ui.New(manager, cfg.BackendURL), tea.WithAltScreen())
	manager.SetListener(ui.NewProgramListener(program))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; ok {
			log.Info().Msg("received SIGTERM; quitting")
			program.Quit()
		}
	}()

	log.Info().Msg("startup: entering terminal ui")
	_, runErr := program.Run()
	manager.SetListener(nil)

	ctx, cancel = context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Info().Msg("shutting down; delivering transcript")
	if err := manager.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("transcript delivery did not finish")
	}
	if runErr != nil {
		return fmt.Errorf("terminal ui: %w", runErr)
	}
	return nil
}

func closeQuietly(name string, c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		log.Error().Err(err).Str("resource", name).Msg("close failed")
	}
}
