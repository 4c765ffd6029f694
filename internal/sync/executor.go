package sync

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/outletpos/syncengine/internal/api"
	"github.com/outletpos/syncengine/internal/dbx"
	"github.com/outletpos/syncengine/internal/models"
	"github.com/outletpos/syncengine/internal/repositories/cache"
)

// Executor turns one queue item into the corresponding network call and, on
// success, writes the server's authoritative response back into the cache.
// It never touches queue state; classification of its errors is the engine's
// job.
type Executor struct {
	api   api.Client
	db    *sql.DB
	cache cache.Repository
}

// NewExecutor wires the executor to the transport and the local store.
func NewExecutor(client api.Client, db *sql.DB, cacheRepo cache.Repository) *Executor {
	return &Executor{api: client, db: db, cache: cacheRepo}
}

// Execute performs the item's operation against the server. Any error from
// the transport is returned as-is so the caller can dispatch on its type.
func (e *Executor) Execute(ctx context.Context, item *models.SyncQueueItem) error {
	switch item.Operation {
	case models.OpCreate:
		body, err := e.api.Create(ctx, item.EntityType, item.Data)
		if err != nil {
			return err
		}
		return e.writeback(ctx, item, body)

	case models.OpUpdate:
		body, err := e.api.Update(ctx, item.EntityType, item.EntityID, item.Data, false)
		if err != nil {
			return err
		}
		return e.writeback(ctx, item, body)

	case models.OpDelete:
		if err := e.api.Delete(ctx, item.EntityType, item.EntityID); err != nil {
			return err
		}
		if err := e.cache.Remove(ctx, item.EntityType, item.EntityID); err != nil {
			return fmt.Errorf("failed to drop cached entity after delete: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unknown operation %q", item.Operation)
	}
}

// ForcePush replays the item's payload with the force header set, overriding
// the server's optimistic lock. Used by the client-wins conflict strategy.
func (e *Executor) ForcePush(ctx context.Context, item *models.SyncQueueItem) error {
	body, err := e.api.Update(ctx, item.EntityType, item.EntityID, item.Data, true)
	if err != nil {
		return err
	}
	return e.writeback(ctx, item, body)
}

// AdoptServerSnapshot writes the server's copy over the local one,
// discarding the optimistic write. Used by the server-wins strategy and by
// manual resolution when the operator keeps the server version.
func (e *Executor) AdoptServerSnapshot(ctx context.Context, kind models.EntityKind, id string, serverData []byte) error {
	if err := e.cache.ApplyServer(ctx, kind, id, serverData, time.Now()); err != nil {
		return fmt.Errorf("failed to adopt server snapshot: %w", err)
	}
	return nil
}

// Pull fetches entities of kind updated after since.
func (e *Executor) Pull(ctx context.Context, kind models.EntityKind, since time.Time, outletID string) ([]api.Entity, error) {
	return e.api.Pull(ctx, kind, since, outletID)
}

// HydrateBatch applies a pulled batch to the cache in one transaction, so a
// crash mid-batch never leaves a half-applied pull behind the advanced
// cursor.
func (e *Executor) HydrateBatch(ctx context.Context, kind models.EntityKind, entities []api.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	now := time.Now()
	return dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := cache.NewSQLiteRepository(tx)
		for _, ent := range entities {
			if err := repo.ApplyServer(ctx, kind, ent.ID, ent.Data, now); err != nil {
				return fmt.Errorf("failed to apply pulled entity %s/%s: %w", kind, ent.ID, err)
			}
		}
		return nil
	})
}

// writeback stores the server's response body for a confirmed mutation. An
// empty body (204-style responses) still clears the dirty flag, since the
// mutation is confirmed even without a fresh copy.
func (e *Executor) writeback(ctx context.Context, item *models.SyncQueueItem, body []byte) error {
	if len(body) == 0 {
		if err := e.cache.SetDirty(ctx, item.EntityType, item.EntityID, false); err != nil {
			return fmt.Errorf("failed to clear dirty flag: %w", err)
		}
		return nil
	}
	if err := e.cache.ApplyServer(ctx, item.EntityType, item.EntityID, body, time.Now()); err != nil {
		return fmt.Errorf("failed to store server response: %w", err)
	}
	return nil
}
