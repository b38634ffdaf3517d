// Command koewake-mcp serves stored recordings to MCP clients over stdio.
package main

import (
	"context"
	"os"

	configloader "github.com/foxseedlab/koewake/external/config"
	repositoryimpl "github.com/foxseedlab/koewake/external/repository"
	"github.com/foxseedlab/koewake/internal/logging"
	"github.com/foxseedlab/koewake/internal/mcptools"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := configloader.Load()
	if err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(1)
	}

	// stdout carries the protocol, so logs go to the log file or stderr.
	logCloser, err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Stderr: true,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize logger")
		os.Exit(1)
	}
	defer logCloser.Close()

	repo, err := repositoryimpl.Open(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Error().Err(err).Msg("failed to open repository")
		os.Exit(1)
	}
	defer repo.Close()

	tools := mcptools.New(repo, logging.WithComponent("mcp"))
	log.Info().Msg("serving mcp over stdio")
	if err := server.ServeStdio(tools.NewServer()); err != nil {
		log.Error().Err(err).Msg("mcp server stopped with error")
	}
}
