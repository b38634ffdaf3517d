package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/foxseedlab/koewake/internal/config"
	"github.com/foxseedlab/koewake/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/do/v2"
)

const databaseInitTimeout = 15 * time.Second

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (repository.Repository, error) {
		cfg := do.MustInvoke[*config.Config](i)
		ctx, cancel := context.WithTimeout(context.Background(), databaseInitTimeout)
		defer cancel()
		return Open(ctx, cfg.DatabaseURL)
	})
}

// Open connects to the store named by databaseURL: postgres:// and
// postgresql:// URLs use pgx, sqlite://<path> uses an embedded SQLite file.
func Open(ctx context.Context, databaseURL string) (repository.Repository, error) {
	driver, dsn, err := parseDatabaseURL(databaseURL)
	if err != nil {
		return nil, err
	}
	if driver == driverSQLite {
		return OpenSQLite(ctx, dsn)
	}

	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := RunPostgresMigration(ctx, p); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to run migration: %w", err)
	}
	return NewPostgresRepository(p), nil
}

func parseDatabaseURL(databaseURL string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return driverPostgres, databaseURL, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("DATABASE_URL %q has no sqlite path", databaseURL)
		}
		return driverSQLite, path, nil
	default:
		return "", "", fmt.Errorf("DATABASE_URL %q: unsupported scheme (want postgres:// or sqlite://)", databaseURL)
	}
}
