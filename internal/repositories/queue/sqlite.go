package queue

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

// ErrNotFound is returned when no queue item exists for the given id.
var ErrNotFound = errors.New("queue item not found")

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const itemColumns = `id, entity_type, entity_id, operation, data, status,
	retry_count, max_retries, error, conflict_data, created_at, synced_at`

func (r *SQLiteRepository) Add(ctx context.Context, item *models.SyncQueueItem) error {
	query := `INSERT INTO sync_queue
		(id, entity_type, entity_id, operation, data, status, retry_count, max_retries, error, conflict_data, created_at, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		item.ID, string(item.EntityType), item.EntityID, string(item.Operation),
		nullableJSON(item.Data), string(item.Status), item.RetryCount, item.MaxRetries,
		item.Error, nullableJSON(item.ConflictData),
		item.CreatedAt.UnixMilli(), unixOrZero(item.SyncedAt))
	if err != nil {
		return fmt.Errorf("failed to add queue item: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.SyncQueueItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM sync_queue WHERE id = ?`, id)
	item, err := scanItem(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	return item, nil
}

func (r *SQLiteRepository) GetPending(ctx context.Context) ([]*models.SyncQueueItem, error) {
	return r.getByStatus(ctx, models.StatusPending)
}

func (r *SQLiteRepository) GetFailed(ctx context.Context) ([]*models.SyncQueueItem, error) {
	return r.getByStatus(ctx, models.StatusFailed)
}

func (r *SQLiteRepository) GetConflicts(ctx context.Context) ([]*models.SyncQueueItem, error) {
	return r.getByStatus(ctx, models.StatusConflict)
}

func (r *SQLiteRepository) getByStatus(ctx context.Context, status models.Status) ([]*models.SyncQueueItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM sync_queue WHERE status = ? ORDER BY created_at, id`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to select %s queue items: %w", status, err)
	}
	defer rows.Close()

	var result []*models.SyncQueueItem
	for rows.Next() {
		item, err := scanItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) HasOutstanding(ctx context.Context, kind models.EntityKind, entityID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_queue
		 WHERE entity_type = ? AND entity_id = ? AND status IN ('pending', 'syncing')`,
		string(kind), entityID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count outstanding items: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status models.Status, errMsg string) error {
	var err error
	if status == models.StatusCompleted {
		_, err = r.db.ExecContext(ctx,
			`UPDATE sync_queue SET status = ?, error = ?, synced_at = ? WHERE id = ?`,
			string(status), errMsg, time.Now().UnixMilli(), id)
	} else {
		_, err = r.db.ExecContext(ctx,
			`UPDATE sync_queue SET status = ?, error = ? WHERE id = ?`,
			string(status), errMsg, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update queue item status: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkConflict(ctx context.Context, id string, serverData json.RawMessage) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sync_queue SET status = 'conflict', conflict_data = ?
		 WHERE id = ? AND status IN ('pending', 'syncing')`,
		nullableJSON(serverData), id)
	if err != nil {
		return fmt.Errorf("failed to mark queue item as conflict: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return fmt.Errorf("mark conflict %s: %w", id, ErrNotFound)
	}
	return nil
}

// IncrementRetry never advances the counter past max_retries, keeping the
// retryCount ≤ maxRetries invariant inside the store itself.
func (r *SQLiteRepository) IncrementRetry(ctx context.Context, id string) (int, error) {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_queue SET retry_count = retry_count + 1
		 WHERE id = ? AND retry_count < max_retries`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to increment retry count: %w", err)
	}

	var count int
	err = r.db.QueryRowContext(ctx,
		`SELECT retry_count FROM sync_queue WHERE id = ?`, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read retry count: %w", err)
	}
	return count, nil
}

func (r *SQLiteRepository) ResetRetry(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_queue SET retry_count = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to reset retry count: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Requeue(ctx context.Context, id string, data json.RawMessage) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sync_queue
		 SET data = ?, status = 'pending', retry_count = 0, error = '', conflict_data = NULL
		 WHERE id = ?`,
		nullableJSON(data), id)
	if err != nil {
		return fmt.Errorf("failed to requeue item: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return fmt.Errorf("requeue %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM sync_queue WHERE status = 'completed'`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear completed items: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra, nil
}

func (r *SQLiteRepository) CountByStatus(ctx context.Context) (models.QueueStatus, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM sync_queue GROUP BY status`)
	if err != nil {
		return models.QueueStatus{}, fmt.Errorf("failed to count queue items: %w", err)
	}
	defer rows.Close()

	var qs models.QueueStatus
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return models.QueueStatus{}, err
		}
		switch models.Status(status) {
		case models.StatusPending:
			qs.Pending = n
		case models.StatusSyncing:
			qs.Syncing = n
		case models.StatusCompleted:
			qs.Completed = n
		case models.StatusFailed:
			qs.Failed = n
		case models.StatusConflict:
			qs.Conflicts = n
		}
	}
	if err := rows.Err(); err != nil {
		return models.QueueStatus{}, err
	}
	return qs, nil
}

func scanItem(scan func(dest ...any) error) (*models.SyncQueueItem, error) {
	var (
		item                    models.SyncQueueItem
		entityType, op, status  string
		data, conflictData      sql.NullString
		createdAtMs, syncedAtMs int64
	)
	err := scan(&item.ID, &entityType, &item.EntityID, &op, &data, &status,
		&item.RetryCount, &item.MaxRetries, &item.Error, &conflictData,
		&createdAtMs, &syncedAtMs)
	if err != nil {
		return nil, err
	}
	item.EntityType = models.EntityKind(entityType)
	item.Operation = models.Operation(op)
	item.Status = models.Status(status)
	if data.Valid {
		item.Data = json.RawMessage(data.String)
	}
	if conflictData.Valid {
		item.ConflictData = json.RawMessage(conflictData.String)
	}
	item.CreatedAt = time.UnixMilli(createdAtMs)
	if syncedAtMs != 0 {
		item.SyncedAt = time.UnixMilli(syncedAtMs)
	}
	return &item, nil
}

func nullableJSON(data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
