package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/outletpos/syncengine/internal/models"
)

// Repository stores local projections of remote entities. Optimistic writes
// mark rows dirty; authoritative writes from the server clear the dirty flag
// and stamp the confirmed sync time. Soft-deleted rows are invisible to all
// read methods but kept until the delete confirms on the server.
type Repository interface {
	// SaveLocal upserts an optimistic local write: bumps the version, marks
	// the row dirty and clears any tombstone.
	SaveLocal(ctx context.Context, kind models.EntityKind, id string, data json.RawMessage) error

	// ApplyServer upserts the server's authoritative copy: clears the dirty
	// flag and tombstone, stamps syncedAt.
	ApplyServer(ctx context.Context, kind models.EntityKind, id string, data json.RawMessage, syncedAt time.Time) error

	// Get returns a single entity, or ErrNotFound when absent or tombstoned.
	Get(ctx context.Context, kind models.EntityKind, id string) (*models.CachedEntity, error)

	// GetAll lists entities of a kind, excluding tombstones. A non-empty
	// outletID restricts the result to that outlet.
	GetAll(ctx context.Context, kind models.EntityKind, outletID string) ([]models.CachedEntity, error)

	// MarkDeleted writes a soft-delete tombstone.
	MarkDeleted(ctx context.Context, kind models.EntityKind, id string) error

	// Remove hard-deletes a row once its delete operation completed.
	Remove(ctx context.Context, kind models.EntityKind, id string) error

	// SetDirty flips the dirty flag without touching the payload.
	SetDirty(ctx context.Context, kind models.EntityKind, id string, dirty bool) error
}
