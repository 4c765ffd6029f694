// Package sync is the heart of the offline-first client: a durable queue of
// local mutations drained against the remote API whenever connectivity
// allows, with per-item retry budgets, pluggable conflict resolution and
// incremental pulls of remote changes.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/outletpos/syncengine/internal/api"
	"github.com/outletpos/syncengine/internal/connectivity"
	"github.com/outletpos/syncengine/internal/logging"
	"github.com/outletpos/syncengine/internal/models"
	"github.com/outletpos/syncengine/internal/repositories/cache"
	"github.com/outletpos/syncengine/internal/repositories/metadata"
	"github.com/outletpos/syncengine/internal/repositories/queue"
	"github.com/outletpos/syncengine/internal/store"
)

var (
	// ErrSyncInProgress is returned when a pull for the same entity kind is
	// already running.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrNotConflict is returned when conflict resolution is requested for
	// an item that is not in conflict state.
	ErrNotConflict = errors.New("item is not in conflict state")

	// ErrInvalidKind is returned for an entity kind outside the known set.
	ErrInvalidKind = errors.New("invalid entity kind")

	// ErrEngineClosed is returned by mutating calls after Close.
	ErrEngineClosed = errors.New("sync engine is closed")
)

// Options configures an Engine. Zero values fall back to the defaults noted
// per field.
type Options struct {
	// OutletID scopes pulls; empty pulls everything.
	OutletID string

	// SyncInterval is the periodic drain cadence while online. Default 30s.
	SyncInterval time.Duration

	// RequestTimeout bounds one health probe. Default 10s.
	RequestTimeout time.Duration

	// MaxRetries is stamped onto each new queue item. Default 3.
	MaxRetries int

	// Strategy picks the conflict resolution policy. Default server-wins.
	Strategy Strategy

	// Retry overrides the backoff policy. Zero value means DefaultRetryPolicy.
	Retry RetryPolicy

	Logger logging.Logger
}

// Engine orchestrates the sync lifecycle: it owns the queue drain loop,
// reacts to connectivity changes, pulls remote changes and exposes the
// local-first read/write API the application uses.
type Engine struct {
	queue    queue.Repository
	cache    cache.Repository
	metadata metadata.Repository

	executor *Executor
	resolver *Resolver
	policy   RetryPolicy
	provider connectivity.Provider
	client   api.Client
	log      logging.Logger
	bus      *eventBus

	outletID       string
	syncInterval   time.Duration
	requestTimeout time.Duration
	maxRetries     int

	// drainMu serializes queue drains; overlapping triggers (timer, online
	// transition, explicit call) collapse into one pass.
	drainMu stdsync.Mutex

	// pullMu guards one pull per entity kind.
	pullMu   stdsync.Mutex
	pulling  map[models.EntityKind]bool
	unsub    func()
	stopOnce stdsync.Once
	stop     chan struct{}
	done     chan struct{}
	wg       stdsync.WaitGroup
}

// NewEngine wires an engine from its dependencies. Start must be called
// before the periodic drain and connectivity reactions take effect;
// the local read/write API works immediately.
func NewEngine(st *store.Store, client api.Client, provider connectivity.Provider, opts Options) *Engine {
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = 30 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyServerWins
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewDiscardLogger()
	}

	executor := NewExecutor(client, st.DB, st.Cache)

	return &Engine{
		queue:          st.Queue,
		cache:          st.Cache,
		metadata:       st.Metadata,
		executor:       executor,
		resolver:       NewResolver(opts.Strategy, executor, opts.Logger),
		policy:         opts.Retry,
		provider:       provider,
		client:         client,
		log:            opts.Logger,
		bus:            newEventBus(),
		outletID:       opts.OutletID,
		syncInterval:   opts.SyncInterval,
		requestTimeout: opts.RequestTimeout,
		maxRetries:     opts.MaxRetries,
		pulling:        make(map[models.EntityKind]bool),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start launches the periodic drain loop and subscribes to connectivity
// changes. Coming online triggers an immediate drain; the timer only drains
// while online.
func (e *Engine) Start(ctx context.Context) {
	e.unsub = e.provider.Subscribe(func(online bool) {
		if online {
			e.bus.emit(Event{Type: EventOnline})
			e.asyncDrain(ctx)
		} else {
			e.bus.emit(Event{Type: EventOffline})
		}
	})

	go func() {
		defer close(e.done)

		ticker := time.NewTicker(e.syncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if e.provider.Online() {
					if _, err := e.ProcessQueue(ctx); err != nil {
						e.log.Error(ctx, "periodic drain failed", "error", err)
					}
				}
			case <-e.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close stops the drain loop and waits for in-flight work to finish.
func (e *Engine) Close() {
	e.stopOnce.Do(func() {
		if e.unsub != nil {
			e.unsub()
		}
		close(e.stop)
	})
	<-e.done
	e.wg.Wait()
}

// Subscribe registers a handler for one event type (or EventWildcard for
// all). The returned func unsubscribes.
func (e *Engine) Subscribe(t EventType, h Handler) func() {
	return e.bus.subscribe(t, h)
}

// SaveLocal writes an entity optimistically and queues the matching mutation:
// a create when the entity has never been confirmed by the server, an update
// otherwise. The write is visible in local reads immediately, before any
// network activity.
func (e *Engine) SaveLocal(ctx context.Context, kind models.EntityKind, id string, data json.RawMessage) (*models.SyncQueueItem, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	op := models.OpUpdate
	existing, err := e.cache.Get(ctx, kind, id)
	if errors.Is(err, cache.ErrNotFound) {
		op = models.OpCreate
	} else if err != nil {
		return nil, err
	} else if existing.SyncedAt.IsZero() {
		// Written locally but never confirmed; still a create on the wire.
		op = models.OpCreate
	}

	if err := e.cache.SaveLocal(ctx, kind, id, data); err != nil {
		return nil, err
	}

	return e.QueueOperation(ctx, kind, id, op, data)
}

// DeleteLocal tombstones an entity locally and queues the delete. The entity
// disappears from local reads immediately; the row is hard-removed once the
// server confirms.
func (e *Engine) DeleteLocal(ctx context.Context, kind models.EntityKind, id string) (*models.SyncQueueItem, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	if err := e.cache.MarkDeleted(ctx, kind, id); err != nil {
		return nil, err
	}

	return e.QueueOperation(ctx, kind, id, models.OpDelete, nil)
}

// QueueOperation appends a mutation to the durable queue and, when online,
// kicks off a drain in the background.
func (e *Engine) QueueOperation(ctx context.Context, kind models.EntityKind, entityID string, op models.Operation, data json.RawMessage) (*models.SyncQueueItem, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if !op.Valid() {
		return nil, fmt.Errorf("unknown operation %q", op)
	}
	if e.isClosed() {
		return nil, ErrEngineClosed
	}

	now := time.Now()
	item := &models.SyncQueueItem{
		ID:         models.QueueItemID(kind, entityID, now),
		EntityType: kind,
		EntityID:   entityID,
		Operation:  op,
		Data:       data,
		Status:     models.StatusPending,
		MaxRetries: e.maxRetries,
		CreatedAt:  now,
	}

	if err := e.queue.Add(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to queue %s %s/%s: %w", op, kind, entityID, err)
	}

	e.log.Debug(ctx, "operation queued", "item", item.ID, "op", op)
	e.bus.emit(Event{Type: EventQueued, ItemID: item.ID, Kind: kind, EntityID: entityID})

	if e.provider.Online() {
		e.asyncDrain(ctx)
	}

	return item, nil
}

// ProcessQueue drains pending items in creation order. While offline it is a
// no-op. One item failing never aborts the sweep; each item lands in
// completed, pending (retries left), failed or conflict. Returns how many
// items completed.
func (e *Engine) ProcessQueue(ctx context.Context) (int, error) {
	if e.isClosed() {
		return 0, ErrEngineClosed
	}
	if !e.provider.Online() {
		e.log.Debug(ctx, "skipping drain, offline")
		return 0, nil
	}

	e.drainMu.Lock()
	defer e.drainMu.Unlock()

	items, err := e.queue.GetPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending items: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	e.log.Info(ctx, "draining queue", "pending", len(items))

	completed := 0
	for _, item := range items {
		select {
		case <-ctx.Done():
			return completed, ctx.Err()
		case <-e.stop:
			return completed, nil
		default:
		}

		if err := e.processItem(ctx, item); err != nil {
			e.log.Error(ctx, "queue item processing failed",
				"item", item.ID, "error", err)
			continue
		}
		completed++
	}

	e.log.Info(ctx, "queue drained", "completed", completed, "total", len(items))
	return completed, nil
}

// processItem runs one item through execute-with-retry and settles its final
// status. A nil return means the item completed (directly or via conflict
// resolution).
func (e *Engine) processItem(ctx context.Context, item *models.SyncQueueItem) error {
	if err := e.queue.UpdateStatus(ctx, item.ID, models.StatusSyncing, ""); err != nil {
		return err
	}
	e.bus.emit(Event{Type: EventSyncing, ItemID: item.ID, Kind: item.EntityType, EntityID: item.EntityID})

	retries := item.RetryCount
	onRetry := func(ctx context.Context, cause error) (int, error) {
		n, err := e.queue.IncrementRetry(ctx, item.ID)
		if err != nil {
			return 0, err
		}
		retries = n
		e.log.Warn(ctx, "sync attempt failed, will retry",
			"item", item.ID, "attempt", n, "max", item.MaxRetries, "error", cause)
		e.bus.emit(Event{Type: EventRetry, ItemID: item.ID, Kind: item.EntityType, EntityID: item.EntityID, Err: cause, Attempt: n})
		return n, nil
	}

	err := e.policy.ExecuteWithRetry(ctx, item, func(ctx context.Context) error {
		return e.executor.Execute(ctx, item)
	}, onRetry)

	if err == nil {
		if uerr := e.queue.UpdateStatus(ctx, item.ID, models.StatusCompleted, ""); uerr != nil {
			return uerr
		}
		e.bus.emit(Event{Type: EventCompleted, ItemID: item.ID, Kind: item.EntityType, EntityID: item.EntityID})
		return nil
	}

	var conflict *api.ConflictError
	if errors.As(err, &conflict) {
		return e.handleConflict(ctx, item, conflict)
	}

	// A drain interrupted mid-backoff leaves budget on the table; the item
	// goes back to pending for the next drain instead of failing early.
	if e.policy.IsRetryable(err) && retries < item.MaxRetries {
		if uerr := e.queue.UpdateStatus(ctx, item.ID, models.StatusPending, err.Error()); uerr != nil {
			return uerr
		}
		e.bus.emit(Event{Type: EventSyncError, ItemID: item.ID, Kind: item.EntityType, EntityID: item.EntityID, Err: err})
		return err
	}

	if uerr := e.queue.UpdateStatus(ctx, item.ID, models.StatusFailed, err.Error()); uerr != nil {
		return uerr
	}
	e.bus.emit(Event{Type: EventFailed, ItemID: item.ID, Kind: item.EntityType, EntityID: item.EntityID, Err: err})
	return err
}

// handleConflict routes a 409 through the resolver. Automatic strategies
// complete the item; the manual strategy parks it with the server snapshot
// attached.
func (e *Engine) handleConflict(ctx context.Context, item *models.SyncQueueItem, conflict *api.ConflictError) error {
	e.bus.emit(Event{Type: EventConflict, ItemID: item.ID, Kind: item.EntityType, EntityID: item.EntityID})

	resolved, err := e.resolver.Resolve(ctx, item, conflict.ServerData)
	if err != nil {
		// The resolution attempt itself failed (e.g. force push hit the
		// network). That is an ordinary execution failure, not a new
		// conflict: classify it like any other.
		if e.policy.IsRetryable(err) {
			n, ierr := e.queue.IncrementRetry(ctx, item.ID)
			if ierr != nil {
				return ierr
			}
			if n < item.MaxRetries {
				if uerr := e.queue.UpdateStatus(ctx, item.ID, models.StatusPending, err.Error()); uerr != nil {
					return uerr
				}
				e.bus.emit(Event{Type: EventSyncError, ItemID: item.ID, Kind: item.EntityType, EntityID: item.EntityID, Err: err})
				return err
			}
		}
		if uerr := e.queue.UpdateStatus(ctx, item.ID, models.StatusFailed, err.Error()); uerr != nil {
			return uerr
		}
		e.bus.emit(Event{Type: EventFailed, ItemID: item.ID, Kind: item.EntityType, EntityID: item.EntityID, Err: err})
		return err
	}

	if !resolved {
		if err := e.queue.MarkConflict(ctx, item.ID, conflict.ServerData); err != nil {
			return err
		}
		return nil
	}

	if err := e.queue.UpdateStatus(ctx, item.ID, models.StatusCompleted, ""); err != nil {
		return err
	}
	e.bus.emit(Event{Type: EventConflictResolved, ItemID: item.ID, Kind: item.EntityType, EntityID: item.EntityID})
	return nil
}

// ResolveConflict settles one parked conflict. A nil chosen payload adopts
// the server's stored snapshot and completes the item; a non-nil payload
// becomes a fresh optimistic write re-entered into the queue.
func (e *Engine) ResolveConflict(ctx context.Context, itemID string, chosen json.RawMessage) error {
	item, err := e.queue.GetByID(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Status != models.StatusConflict {
		return fmt.Errorf("%w: %s is %s", ErrNotConflict, itemID, item.Status)
	}

	if chosen == nil {
		if err := e.executor.AdoptServerSnapshot(ctx, item.EntityType, item.EntityID, item.ConflictData); err != nil {
			return err
		}
		if err := e.queue.UpdateStatus(ctx, item.ID, models.StatusCompleted, ""); err != nil {
			return err
		}
		e.bus.emit(Event{Type: EventConflictResolved, ItemID: item.ID, Kind: item.EntityType, EntityID: item.EntityID})
		return nil
	}

	if err := e.cache.SaveLocal(ctx, item.EntityType, item.EntityID, chosen); err != nil {
		return err
	}
	if err := e.queue.Requeue(ctx, item.ID, chosen); err != nil {
		return err
	}
	e.bus.emit(Event{Type: EventConflictResolved, ItemID: item.ID, Kind: item.EntityType, EntityID: item.EntityID})

	if e.provider.Online() {
		e.asyncDrain(ctx)
	}
	return nil
}

// PullChanges fetches entities of kind updated since the stored cursor and
// hydrates them into the cache. The cursor is captured before the request
// and only advances after the batch is applied, so changes landing on the
// server mid-pull are re-fetched rather than lost.
func (e *Engine) PullChanges(ctx context.Context, kind models.EntityKind) (int, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	e.pullMu.Lock()
	if e.pulling[kind] {
		e.pullMu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrSyncInProgress, kind)
	}
	e.pulling[kind] = true
	e.pullMu.Unlock()

	defer func() {
		e.pullMu.Lock()
		delete(e.pulling, kind)
		e.pullMu.Unlock()
		_ = e.metadata.SetInProgress(ctx, kind, false)
	}()
	_ = e.metadata.SetInProgress(ctx, kind, true)

	meta, err := e.metadata.Get(ctx, kind)
	if err != nil {
		return 0, err
	}

	cursor := time.Now()
	entities, err := e.executor.Pull(ctx, kind, meta.LastSyncAt, e.outletID)
	if err != nil {
		return 0, fmt.Errorf("failed to pull %s: %w", kind, err)
	}

	if err := e.executor.HydrateBatch(ctx, kind, entities); err != nil {
		return 0, err
	}

	if err := e.metadata.AdvanceCursor(ctx, kind, cursor); err != nil {
		return 0, err
	}

	e.log.Info(ctx, "pulled remote changes", "kind", kind, "count", len(entities))
	e.bus.emit(Event{Type: EventPulled, Kind: kind, Count: len(entities)})
	return len(entities), nil
}

// PullAll pulls every entity kind in sequence. Kinds that fail do not stop
// the rest; the first error is returned after all kinds were attempted.
func (e *Engine) PullAll(ctx context.Context) (int, error) {
	total := 0
	var firstErr error
	for _, kind := range models.Kinds() {
		n, err := e.PullChanges(ctx, kind)
		total += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return total, firstErr
}

// GetCached reads one entity from the local cache.
func (e *Engine) GetCached(ctx context.Context, kind models.EntityKind, id string) (*models.CachedEntity, error) {
	return e.cache.Get(ctx, kind, id)
}

// GetAllCached lists cached entities of a kind, scoped to the engine's
// outlet when one is configured.
func (e *Engine) GetAllCached(ctx context.Context, kind models.EntityKind) ([]models.CachedEntity, error) {
	return e.cache.GetAll(ctx, kind, e.outletID)
}

// GetQueueStatus summarizes the queue by status.
func (e *Engine) GetQueueStatus(ctx context.Context) (models.QueueStatus, error) {
	return e.queue.CountByStatus(ctx)
}

// GetFailedItems lists items that exhausted their retry budget.
func (e *Engine) GetFailedItems(ctx context.Context) ([]*models.SyncQueueItem, error) {
	return e.queue.GetFailed(ctx)
}

// GetConflictItems lists items parked for manual resolution.
func (e *Engine) GetConflictItems(ctx context.Context) ([]*models.SyncQueueItem, error) {
	return e.queue.GetConflicts(ctx)
}

// ClearCompleted garbage-collects completed queue items.
func (e *Engine) ClearCompleted(ctx context.Context) (int64, error) {
	return e.queue.ClearCompleted(ctx)
}

// RetryFailed resets every failed item to pending with a fresh retry budget
// and drains them concurrently. Returns how many items completed.
func (e *Engine) RetryFailed(ctx context.Context) (int, error) {
	// Holding the drain lock keeps the periodic drain from racing over the
	// same items once they flip back to pending.
	e.drainMu.Lock()
	defer e.drainMu.Unlock()

	failed, err := e.queue.GetFailed(ctx)
	if err != nil {
		return 0, err
	}
	if len(failed) == 0 {
		return 0, nil
	}

	for _, item := range failed {
		if err := e.queue.ResetRetry(ctx, item.ID); err != nil {
			return 0, err
		}
		if err := e.queue.UpdateStatus(ctx, item.ID, models.StatusPending, ""); err != nil {
			return 0, err
		}
		item.RetryCount = 0
		item.Status = models.StatusPending
	}

	e.log.Info(ctx, "retrying failed items", "count", len(failed))

	results := e.policy.BatchRetry(ctx, failed, func(ctx context.Context, item *models.SyncQueueItem) error {
		return e.processItem(ctx, item)
	}, nil)

	completed := 0
	for _, res := range results {
		if res.Err == nil {
			completed++
		}
	}
	return completed, nil
}

// CheckServerHealth probes the remote liveness endpoint, bounded by the
// engine's request timeout.
func (e *Engine) CheckServerHealth(ctx context.Context) error {
	return ExecuteWithTimeout(ctx, e.requestTimeout, func(ctx context.Context) error {
		return e.client.Health(ctx)
	})
}

func (e *Engine) isClosed() bool {
	select {
	case <-e.stop:
		return true
	default:
		return false
	}
}

// asyncDrain kicks off a drain on a fresh goroutine; overlapping kicks
// collapse on drainMu.
func (e *Engine) asyncDrain(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if _, err := e.ProcessQueue(ctx); err != nil {
			e.log.Error(ctx, "background drain failed", "error", err)
			e.bus.emit(Event{Type: EventSyncError, Err: err})
		}
	}()
}
