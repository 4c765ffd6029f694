package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/outletpos/syncengine/internal/dbx"
	"github.com/outletpos/syncengine/internal/models"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, kind models.EntityKind) (*models.SyncMetadata, error) {
	var (
		lastSyncMs int64
		inProgress int
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT last_sync_at, sync_in_progress FROM sync_metadata WHERE entity_type = ?`,
		string(kind)).Scan(&lastSyncMs, &inProgress)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.SyncMetadata{EntityType: kind}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync metadata[%s]: %w", kind, err)
	}

	m := &models.SyncMetadata{EntityType: kind, SyncInProgress: inProgress == 1}
	if lastSyncMs != 0 {
		m.LastSyncAt = time.UnixMilli(lastSyncMs)
	}
	return m, nil
}

func (r *SQLiteRepository) AdvanceCursor(ctx context.Context, kind models.EntityKind, t time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_metadata (entity_type, last_sync_at) VALUES (?, ?)
		ON CONFLICT(entity_type) DO UPDATE SET
			last_sync_at = MAX(sync_metadata.last_sync_at, excluded.last_sync_at)
	`, string(kind), t.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to advance cursor[%s]: %w", kind, err)
	}
	return nil
}

func (r *SQLiteRepository) SetInProgress(ctx context.Context, kind models.EntityKind, inProgress bool) error {
	flag := 0
	if inProgress {
		flag = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_metadata (entity_type, sync_in_progress) VALUES (?, ?)
		ON CONFLICT(entity_type) DO UPDATE SET sync_in_progress = excluded.sync_in_progress
	`, string(kind), flag)
	if err != nil {
		return fmt.Errorf("failed to set sync_in_progress[%s]: %w", kind, err)
	}
	return nil
}
