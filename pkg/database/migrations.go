package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// MigrationManager applies the embedded schema migrations.
type MigrationManager struct {
	provider *goose.Provider
}

// NewMigrationManager creates a goose provider over the embedded SQL files.
func NewMigrationManager(db *sql.DB) (*MigrationManager, error) {
	fsys, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}

	return &MigrationManager{provider: provider}, nil
}

// ApplyMigrations applies all pending migrations.
func (m *MigrationManager) ApplyMigrations(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	for _, r := range results {
		slog.InfoContext(ctx, "migration applied",
			"version", r.Source.Version,
			"path", r.Source.Path,
			"duration", r.Duration)
	}
	return nil
}

// Version returns the current schema version.
func (m *MigrationManager) Version(ctx context.Context) (int64, error) {
	return m.provider.GetDBVersion(ctx)
}

// HasPending reports whether any migration is not yet applied.
func (m *MigrationManager) HasPending(ctx context.Context) (bool, error) {
	return m.provider.HasPending(ctx)
}
