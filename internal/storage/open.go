package storage

import (
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"linkshelf/internal/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Open builds the Repository selected by cfg. The on-device store is always
// opened: it is the whole store in local mode and the snapshot cache otherwise.
func Open(cfg config.Config, logger logrus.FieldLogger) (Repository, error) {
	local, err := NewBadgerRepository(cfg.BadgerDBPath, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Backend() == config.BackendLocal {
		logger.WithField("backend", config.BackendLocal).Info("Using on-device link store")
		return local, nil
	}

	db, err := Connect(cfg.DatabaseURL)
	if err != nil {
		_ = local.Close()
		return nil, err
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		_ = local.Close()
		return nil, err
	}

	feed, err := NewPQChangeFeed(cfg.DatabaseURL, logger)
	if err != nil {
		// Without notifications subscribers still get their initial set.
		logger.WithError(err).Warn("Change notifications unavailable")
		return NewPostgresRepository(db, nil, local, logger), nil
	}

	logger.WithField("backend", config.BackendRemote).Info("Using remote link store")
	return NewPostgresRepository(db, feed, local, logger), nil
}

// Connect opens and pings a PostgreSQL connection pool.
func Connect(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded schema migrations with goose.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
