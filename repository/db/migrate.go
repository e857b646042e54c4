package db

import (
	stderrors "errors"
	"fmt"

	"todoapi/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migration applies every pending up migration found in migratePath.
func Migration(dbDSN, migratePath string) error {
	if dbDSN == "" {
		return fmt.Errorf("migration: empty database connection string")
	}
	if migratePath == "" {
		return fmt.Errorf("migration: empty migrations path")
	}

	m, err := migrate.New("file://"+migratePath, dbDSN)
	if err != nil {
		return fmt.Errorf("migration: init: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn("failed to close migrator", "source_error", srcErr, "database_error", dbErr)
		}
	}()

	if err := m.Up(); err != nil {
		if stderrors.Is(err, migrate.ErrNoChange) {
			logger.Info("database schema is up to date")
			return nil
		}
		return fmt.Errorf("migration: up: %w", err)
	}
	logger.Info("migrations applied")
	return nil
}
