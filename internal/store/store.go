// Package store opens the local sqlite database, applies the embedded goose
// migrations and hands out the repository bundle the engine works with.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/outletpos/syncengine/internal/repositories/cache"
	"github.com/outletpos/syncengine/internal/repositories/metadata"
	"github.com/outletpos/syncengine/internal/repositories/queue"
	"github.com/outletpos/syncengine/internal/repositories/settings"
	"github.com/outletpos/syncengine/internal/store/migrations"
)

// Store bundles the database handle with the repositories built on it.
type Store struct {
	DB       *sql.DB
	Queue    queue.Repository
	Cache    cache.Repository
	Metadata metadata.Repository
	Settings settings.Repository
}

// RunMigrations applies the embedded migrations to db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Open opens (creating if necessary) the sqlite database at dsn, runs
// migrations and returns the repository bundle. The caller owns Close.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY between the drain loop and concurrent readers.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{
		DB:       db,
		Queue:    queue.NewSQLiteRepository(db),
		Cache:    cache.NewSQLiteRepository(db),
		Metadata: metadata.NewSQLiteRepository(db),
		Settings: settings.NewSQLiteRepository(db),
	}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.DB.Close()
}
