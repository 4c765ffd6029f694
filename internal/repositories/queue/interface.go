package queue

import (
	"context"
	"encoding/json"

	"github.com/outletpos/syncengine/internal/models"
)

// Repository is the durable ledger of pending mutations. All operations are
// local-store writes; an error here is a storage failure and propagates to
// the caller untouched.
type Repository interface {
	// Add appends a new item to the ledger.
	Add(ctx context.Context, item *models.SyncQueueItem) error

	// GetByID returns one item or ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.SyncQueueItem, error)

	// GetPending returns pending items in creation order.
	GetPending(ctx context.Context) ([]*models.SyncQueueItem, error)

	// GetFailed returns failed items in creation order.
	GetFailed(ctx context.Context) ([]*models.SyncQueueItem, error)

	// GetConflicts returns conflict items in creation order.
	GetConflicts(ctx context.Context) ([]*models.SyncQueueItem, error)

	// HasOutstanding reports whether a non-terminal item references the
	// given entity.
	HasOutstanding(ctx context.Context, kind models.EntityKind, entityID string) (bool, error)

	// UpdateStatus moves an item to the given status and records the error
	// message, if any. Transitioning to completed stamps syncedAt. Idempotent.
	UpdateStatus(ctx context.Context, id string, status models.Status, errMsg string) error

	// MarkConflict transitions a pending or syncing item to conflict and
	// attaches the server snapshot.
	MarkConflict(ctx context.Context, id string, serverData json.RawMessage) error

	// IncrementRetry bumps the retry counter, never past maxRetries, and
	// returns the new count.
	IncrementRetry(ctx context.Context, id string) (int, error)

	// ResetRetry zeroes the retry counter.
	ResetRetry(ctx context.Context, id string) error

	// Requeue replaces an item's payload and re-enters it as pending with a
	// fresh retry counter and no conflict data. Used by manual resolution.
	Requeue(ctx context.Context, id string, data json.RawMessage) error

	// ClearCompleted garbage-collects terminal-success items only and
	// returns how many were removed. Failed and conflict items survive.
	ClearCompleted(ctx context.Context) (int64, error)

	// CountByStatus summarizes the ledger.
	CountByStatus(ctx context.Context) (models.QueueStatus, error)
}
