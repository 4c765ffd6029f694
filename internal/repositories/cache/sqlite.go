package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/outletpos/syncengine/internal/dbx"
	"github.com/outletpos/syncengine/internal/models"
)

// ErrNotFound is returned when an entity is absent or soft-deleted.
var ErrNotFound = errors.New("cached entity not found")

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) SaveLocal(ctx context.Context, kind models.EntityKind, id string, data json.RawMessage) error {
	query := `INSERT INTO entities
		(entity_type, id, data, outlet_id, local_updated_at, is_dirty, is_deleted, version)
		VALUES (?, ?, ?, ?, ?, 1, 0, 1)
		ON CONFLICT(entity_type, id) DO UPDATE SET
			data = excluded.data,
			outlet_id = excluded.outlet_id,
			local_updated_at = excluded.local_updated_at,
			is_dirty = 1,
			is_deleted = 0,
			version = entities.version + 1`
	_, err := r.db.ExecContext(ctx, query,
		string(kind), id, string(data), models.OutletID(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save entity locally: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ApplyServer(ctx context.Context, kind models.EntityKind, id string, data json.RawMessage, syncedAt time.Time) error {
	query := `INSERT INTO entities
		(entity_type, id, data, outlet_id, synced_at, is_dirty, is_deleted, version)
		VALUES (?, ?, ?, ?, ?, 0, 0, 1)
		ON CONFLICT(entity_type, id) DO UPDATE SET
			data = excluded.data,
			outlet_id = excluded.outlet_id,
			synced_at = excluded.synced_at,
			is_dirty = 0,
			is_deleted = 0,
			version = entities.version + 1`
	_, err := r.db.ExecContext(ctx, query,
		string(kind), id, string(data), models.OutletID(data), syncedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to apply server copy: %w", err)
	}
	return nil
}

const entityColumns = `entity_type, id, data, outlet_id, synced_at, local_updated_at, is_dirty, is_deleted, version`

func (r *SQLiteRepository) Get(ctx context.Context, kind models.EntityKind, id string) (*models.CachedEntity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities
		 WHERE entity_type = ? AND id = ? AND is_deleted = 0`,
		string(kind), id)
	e, err := scanEntity(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached entity: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context, kind models.EntityKind, outletID string) ([]models.CachedEntity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities
		 WHERE entity_type = ? AND is_deleted = 0`
	args := []any{string(kind)}
	if outletID != "" {
		query += ` AND outlet_id = ?`
		args = append(args, outletID)
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select cached entities: %w", err)
	}
	defer rows.Close()

	var result []models.CachedEntity
	for rows.Next() {
		e, err := scanEntity(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) MarkDeleted(ctx context.Context, kind models.EntityKind, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE entities
		 SET is_deleted = 1, is_dirty = 1, local_updated_at = ?, version = version + 1
		 WHERE entity_type = ? AND id = ? AND is_deleted = 0`,
		time.Now().UnixMilli(), string(kind), id)
	if err != nil {
		return fmt.Errorf("failed to mark entity deleted: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return fmt.Errorf("mark deleted %s/%s: %w", kind, id, ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, kind models.EntityKind, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM entities WHERE entity_type = ? AND id = ?`,
		string(kind), id)
	if err != nil {
		return fmt.Errorf("failed to remove entity: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SetDirty(ctx context.Context, kind models.EntityKind, id string, dirty bool) error {
	flag := 0
	if dirty {
		flag = 1
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE entities SET is_dirty = ? WHERE entity_type = ? AND id = ?`,
		flag, string(kind), id)
	if err != nil {
		return fmt.Errorf("failed to set dirty flag: %w", err)
	}
	return nil
}

func scanEntity(scan func(dest ...any) error) (*models.CachedEntity, error) {
	var (
		e                      models.CachedEntity
		kind, data             string
		syncedAtMs, localUpdMs int64
		dirty, deleted         int
	)
	err := scan(&kind, &e.ID, &data, &e.OutletID, &syncedAtMs, &localUpdMs, &dirty, &deleted, &e.Version)
	if err != nil {
		return nil, err
	}
	e.Kind = models.EntityKind(kind)
	e.Data = json.RawMessage(data)
	if syncedAtMs != 0 {
		e.SyncedAt = time.UnixMilli(syncedAtMs)
	}
	if localUpdMs != 0 {
		e.LocalUpdatedAt = time.UnixMilli(localUpdMs)
	}
	e.IsDirty = dirty == 1
	e.IsDeleted = deleted == 1
	return &e, nil
}
