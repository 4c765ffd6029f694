package metadata

import (
	"context"
	"time"

	"github.com/outletpos/syncengine/internal/models"
)

// Repository tracks the incremental-pull cursor per entity kind.
type Repository interface {
	// Get returns the metadata record for kind; a kind never pulled before
	// yields a zero-valued record, not an error.
	Get(ctx context.Context, kind models.EntityKind) (*models.SyncMetadata, error)

	// AdvanceCursor moves lastSyncAt forward to t. Moves backwards are
	// ignored, keeping the cursor monotonically non-decreasing.
	AdvanceCursor(ctx context.Context, kind models.EntityKind, t time.Time) error

	// SetInProgress flips the per-kind pull guard.
	SetInProgress(ctx context.Context, kind models.EntityKind, inProgress bool) error
}
