package database

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations brings the schema up to date, applying any pending
// up-migrations from migrationsPath.
func RunMigrations(dsn, migrationsPath string) error {
	m, err := migrate.New("file://"+migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	err = m.Up()
	switch {
	case err == nil:
		ver, _, _ := m.Version()
		slog.Info("schema migrated", "version", ver)
	case errors.Is(err, migrate.ErrNoChange):
		ver, _, _ := m.Version()
		slog.Info("schema up to date", "version", ver)
	default:
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}
