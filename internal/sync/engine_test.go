package sync

import (
	"context"
	"encoding/json"
	stdsync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outletpos/syncengine/internal/api"
	"github.com/outletpos/syncengine/internal/connectivity"
	"github.com/outletpos/syncengine/internal/models"
	"github.com/outletpos/syncengine/internal/store"
)

// fakeClient is an api.Client with pluggable behavior and call counters.
type fakeClient struct {
	mu      stdsync.Mutex
	creates int
	updates int
	deletes int
	forces  int
	pulls   int

	createFn func(kind models.EntityKind, payload json.RawMessage) (json.RawMessage, error)
	updateFn func(kind models.EntityKind, id string, payload json.RawMessage, force bool) (json.RawMessage, error)
	deleteFn func(kind models.EntityKind, id string) error
	pullFn   func(kind models.EntityKind, since time.Time, outletID string) ([]api.Entity, error)
}

func (f *fakeClient) Create(ctx context.Context, kind models.EntityKind, payload json.RawMessage) (json.RawMessage, error) {
	f.mu.Lock()
	f.creates++
	fn := f.createFn
	f.mu.Unlock()
	if fn != nil {
		return fn(kind, payload)
	}
	return payload, nil
}

func (f *fakeClient) Update(ctx context.Context, kind models.EntityKind, id string, payload json.RawMessage, force bool) (json.RawMessage, error) {
	f.mu.Lock()
	f.updates++
	if force {
		f.forces++
	}
	fn := f.updateFn
	f.mu.Unlock()
	if fn != nil {
		return fn(kind, id, payload, force)
	}
	return payload, nil
}

func (f *fakeClient) Delete(ctx context.Context, kind models.EntityKind, id string) error {
	f.mu.Lock()
	f.deletes++
	fn := f.deleteFn
	f.mu.Unlock()
	if fn != nil {
		return fn(kind, id)
	}
	return nil
}

func (f *fakeClient) Pull(ctx context.Context, kind models.EntityKind, since time.Time, outletID string) ([]api.Entity, error) {
	f.mu.Lock()
	f.pulls++
	fn := f.pullFn
	f.mu.Unlock()
	if fn != nil {
		return fn(kind, since, outletID)
	}
	return nil, nil
}

func (f *fakeClient) Health(ctx context.Context) error { return nil }

func (f *fakeClient) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

func newTestEngine(t *testing.T, client api.Client, online bool) (*Engine, *connectivity.Manual, *store.Store) {
	t.Helper()

	ctx := context.Background()
	st, err := store.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	provider := connectivity.NewManual(online)

	eng := NewEngine(st, client, provider, Options{
		SyncInterval: time.Hour, // drains are driven explicitly in tests
		Retry:        fastPolicy(),
	})
	eng.Start(ctx)
	t.Cleanup(eng.Close)

	return eng, provider, st
}

func TestSaveLocal_OfflineQueuesThenOnlineDrainsOnce(t *testing.T) {
	client := &fakeClient{}
	eng, provider, st := newTestEngine(t, client, false)
	ctx := context.Background()

	item, err := eng.SaveLocal(ctx, models.KindProducts, "p1", json.RawMessage(`{"id":"p1","name":"espresso"}`))
	require.NoError(t, err)
	assert.Equal(t, models.OpCreate, item.Operation)

	// The write is visible locally before any network activity.
	cached, err := eng.GetCached(ctx, models.KindProducts, "p1")
	require.NoError(t, err)
	assert.True(t, cached.IsDirty)
	assert.Equal(t, 0, client.createCount())

	provider.SetOnline(true)

	require.Eventually(t, func() bool {
		got, err := st.Queue.GetByID(ctx, item.ID)
		return err == nil && got.Status == models.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, client.createCount(), "exactly one POST for the queued create")

	cached, err = eng.GetCached(ctx, models.KindProducts, "p1")
	require.NoError(t, err)
	assert.False(t, cached.IsDirty)
	assert.False(t, cached.SyncedAt.IsZero())
}

func TestSaveLocal_CreateThenUpdateDecision(t *testing.T) {
	client := &fakeClient{}
	eng, _, st := newTestEngine(t, client, false)
	ctx := context.Background()

	first, err := eng.SaveLocal(ctx, models.KindCustomers, "c1", json.RawMessage(`{"id":"c1"}`))
	require.NoError(t, err)
	assert.Equal(t, models.OpCreate, first.Operation)

	// Still never confirmed by the server: a second save is still a create.
	second, err := eng.SaveLocal(ctx, models.KindCustomers, "c1", json.RawMessage(`{"id":"c1","name":"Ada"}`))
	require.NoError(t, err)
	assert.Equal(t, models.OpCreate, second.Operation)

	// After the server confirms, further saves are updates.
	require.NoError(t, st.Cache.ApplyServer(ctx, models.KindCustomers, "c1", json.RawMessage(`{"id":"c1"}`), time.Now()))

	third, err := eng.SaveLocal(ctx, models.KindCustomers, "c1", json.RawMessage(`{"id":"c1","name":"Ada L"}`))
	require.NoError(t, err)
	assert.Equal(t, models.OpUpdate, third.Operation)
}

func TestProcessQueue_SkipsWhileOffline(t *testing.T) {
	client := &fakeClient{}
	eng, _, _ := newTestEngine(t, client, false)
	ctx := context.Background()

	_, err := eng.SaveLocal(ctx, models.KindProducts, "p1", json.RawMessage(`{"id":"p1"}`))
	require.NoError(t, err)

	n, err := eng.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, client.createCount())
}

func TestProcessQueue_ExhaustsRetriesThenFails(t *testing.T) {
	client := &fakeClient{
		createFn: func(kind models.EntityKind, payload json.RawMessage) (json.RawMessage, error) {
			return nil, &api.StatusError{StatusCode: 500, Status: "500 Internal Server Error"}
		},
	}
	eng, _, st := newTestEngine(t, client, true)
	ctx := context.Background()

	var evMu stdsync.Mutex
	var retryAttempts []int
	eng.Subscribe(EventRetry, func(ev Event) {
		evMu.Lock()
		retryAttempts = append(retryAttempts, ev.Attempt)
		evMu.Unlock()
	})

	var failed bool
	eng.Subscribe(EventFailed, func(ev Event) {
		evMu.Lock()
		failed = true
		evMu.Unlock()
	})

	item, err := eng.QueueOperation(ctx, models.KindOrders, "o1", models.OpCreate, json.RawMessage(`{"id":"o1"}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := st.Queue.GetByID(ctx, item.ID)
		return err == nil && got.Status == models.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	got, err := st.Queue.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.RetryCount)
	assert.Contains(t, got.Error, "500")
	assert.Equal(t, 3, client.createCount(), "no fourth attempt past the budget")

	evMu.Lock()
	defer evMu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, retryAttempts)
	assert.True(t, failed)
}

func TestConflict_ServerWinsAdoptsSnapshotAndCompletes(t *testing.T) {
	serverCopy := json.RawMessage(`{"id":"p1","name":"server","version":7}`)
	client := &fakeClient{
		updateFn: func(kind models.EntityKind, id string, payload json.RawMessage, force bool) (json.RawMessage, error) {
			return nil, &api.ConflictError{ServerData: serverCopy}
		},
	}
	eng, provider, st := newTestEngine(t, client, false)
	ctx := context.Background()

	require.NoError(t, st.Cache.ApplyServer(ctx, models.KindProducts, "p1", json.RawMessage(`{"id":"p1","name":"old"}`), time.Now()))
	item, err := eng.SaveLocal(ctx, models.KindProducts, "p1", json.RawMessage(`{"id":"p1","name":"local"}`))
	require.NoError(t, err)
	require.Equal(t, models.OpUpdate, item.Operation)

	var resolvedEv atomic.Bool
	eng.Subscribe(EventConflictResolved, func(ev Event) { resolvedEv.Store(true) })

	provider.SetOnline(true)

	require.Eventually(t, func() bool {
		got, err := st.Queue.GetByID(ctx, item.ID)
		return err == nil && got.Status == models.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cached, err := eng.GetCached(ctx, models.KindProducts, "p1")
	require.NoError(t, err)
	assert.JSONEq(t, string(serverCopy), string(cached.Data))
	assert.False(t, cached.IsDirty)
	assert.True(t, resolvedEv.Load())
}

func TestConflict_ClientWinsForcePushes(t *testing.T) {
	client := &fakeClient{}
	client.updateFn = func(kind models.EntityKind, id string, payload json.RawMessage, force bool) (json.RawMessage, error) {
		if !force {
			return nil, &api.ConflictError{ServerData: json.RawMessage(`{"id":"p1","name":"server"}`)}
		}
		return payload, nil
	}

	ctx := context.Background()
	st, err := store.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	eng := NewEngine(st, client, connectivity.NewManual(true), Options{
		SyncInterval: time.Hour,
		Strategy:     StrategyClientWins,
		Retry:        fastPolicy(),
	})
	eng.Start(ctx)
	t.Cleanup(eng.Close)

	require.NoError(t, st.Cache.ApplyServer(ctx, models.KindProducts, "p1", json.RawMessage(`{"id":"p1","name":"old"}`), time.Now()))
	local := json.RawMessage(`{"id":"p1","name":"local"}`)
	item, err := eng.SaveLocal(ctx, models.KindProducts, "p1", local)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := st.Queue.GetByID(ctx, item.ID)
		return err == nil && got.Status == models.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	client.mu.Lock()
	forces := client.forces
	client.mu.Unlock()
	assert.Equal(t, 1, forces)

	cached, err := eng.GetCached(ctx, models.KindProducts, "p1")
	require.NoError(t, err)
	assert.JSONEq(t, string(local), string(cached.Data))
	assert.False(t, cached.IsDirty)
}

func TestConflict_ClientWinsPushFailureStaysRetryable(t *testing.T) {
	client := &fakeClient{}
	client.updateFn = func(kind models.EntityKind, id string, payload json.RawMessage, force bool) (json.RawMessage, error) {
		if !force {
			return nil, &api.ConflictError{ServerData: json.RawMessage(`{"id":"p1","name":"server"}`)}
		}
		return nil, &api.StatusError{StatusCode: 503, Status: "503 Service Unavailable"}
	}

	ctx := context.Background()
	st, err := store.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	eng := NewEngine(st, client, connectivity.NewManual(true), Options{
		SyncInterval: time.Hour,
		Strategy:     StrategyClientWins,
		Retry:        fastPolicy(),
	})
	eng.Start(ctx)
	t.Cleanup(eng.Close)

	require.NoError(t, st.Cache.ApplyServer(ctx, models.KindProducts, "p1", json.RawMessage(`{"id":"p1","name":"old"}`), time.Now()))
	item, err := eng.SaveLocal(ctx, models.KindProducts, "p1", json.RawMessage(`{"id":"p1","name":"local"}`))
	require.NoError(t, err)

	// The force push failing is an ordinary retryable failure: the item
	// returns to pending with its counter bumped, it is not parked.
	require.Eventually(t, func() bool {
		got, err := st.Queue.GetByID(ctx, item.ID)
		return err == nil && got.Status == models.StatusPending && got.RetryCount > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConflict_ManualParksItemAndKeepsLocalCopy(t *testing.T) {
	serverCopy := json.RawMessage(`{"id":"p1","name":"server"}`)
	client := &fakeClient{
		updateFn: func(kind models.EntityKind, id string, payload json.RawMessage, force bool) (json.RawMessage, error) {
			return nil, &api.ConflictError{ServerData: serverCopy}
		},
	}

	ctx := context.Background()
	st, err := store.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	eng := NewEngine(st, client, connectivity.NewManual(true), Options{
		SyncInterval: time.Hour,
		Strategy:     StrategyManual,
		Retry:        fastPolicy(),
	})
	eng.Start(ctx)
	t.Cleanup(eng.Close)

	require.NoError(t, st.Cache.ApplyServer(ctx, models.KindProducts, "p1", json.RawMessage(`{"id":"p1","name":"old"}`), time.Now()))
	local := json.RawMessage(`{"id":"p1","name":"local"}`)
	item, err := eng.SaveLocal(ctx, models.KindProducts, "p1", local)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := st.Queue.GetByID(ctx, item.ID)
		return err == nil && got.Status == models.StatusConflict
	}, 2*time.Second, 10*time.Millisecond)

	got, err := st.Queue.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(serverCopy), string(got.ConflictData))

	// The local copy stays untouched while the conflict is parked.
	cached, err := eng.GetCached(ctx, models.KindProducts, "p1")
	require.NoError(t, err)
	assert.JSONEq(t, string(local), string(cached.Data))
	assert.True(t, cached.IsDirty)

	conflicts, err := eng.GetConflictItems(ctx)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
}

func TestResolveConflict_AdoptServer(t *testing.T) {
	serverCopy := json.RawMessage(`{"id":"p1","name":"server"}`)
	client := &fakeClient{
		updateFn: func(kind models.EntityKind, id string, payload json.RawMessage, force bool) (json.RawMessage, error) {
			return nil, &api.ConflictError{ServerData: serverCopy}
		},
	}

	ctx := context.Background()
	st, err := store.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	eng := NewEngine(st, client, connectivity.NewManual(true), Options{
		SyncInterval: time.Hour,
		Strategy:     StrategyManual,
		Retry:        fastPolicy(),
	})
	eng.Start(ctx)
	t.Cleanup(eng.Close)

	require.NoError(t, st.Cache.ApplyServer(ctx, models.KindProducts, "p1", json.RawMessage(`{"id":"p1","name":"old"}`), time.Now()))
	item, err := eng.SaveLocal(ctx, models.KindProducts, "p1", json.RawMessage(`{"id":"p1","name":"local"}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := st.Queue.GetByID(ctx, item.ID)
		return err == nil && got.Status == models.StatusConflict
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, eng.ResolveConflict(ctx, item.ID, nil))

	got, err := st.Queue.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)

	cached, err := eng.GetCached(ctx, models.KindProducts, "p1")
	require.NoError(t, err)
	assert.JSONEq(t, string(serverCopy), string(cached.Data))
	assert.False(t, cached.IsDirty)
}

func TestResolveConflict_ChosenPayloadRequeues(t *testing.T) {
	var conflicted atomic.Bool
	conflicted.Store(true)
	client := &fakeClient{}
	client.updateFn = func(kind models.EntityKind, id string, payload json.RawMessage, force bool) (json.RawMessage, error) {
		if conflicted.Load() {
			return nil, &api.ConflictError{ServerData: json.RawMessage(`{"id":"p1","name":"server"}`)}
		}
		return payload, nil
	}

	ctx := context.Background()
	st, err := store.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	eng := NewEngine(st, client, connectivity.NewManual(true), Options{
		SyncInterval: time.Hour,
		Strategy:     StrategyManual,
		Retry:        fastPolicy(),
	})
	eng.Start(ctx)
	t.Cleanup(eng.Close)

	require.NoError(t, st.Cache.ApplyServer(ctx, models.KindProducts, "p1", json.RawMessage(`{"id":"p1","name":"old"}`), time.Now()))
	item, err := eng.SaveLocal(ctx, models.KindProducts, "p1", json.RawMessage(`{"id":"p1","name":"local"}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := st.Queue.GetByID(ctx, item.ID)
		return err == nil && got.Status == models.StatusConflict
	}, 2*time.Second, 10*time.Millisecond)

	conflicted.Store(false)
	merged := json.RawMessage(`{"id":"p1","name":"merged"}`)
	require.NoError(t, eng.ResolveConflict(ctx, item.ID, merged))

	require.Eventually(t, func() bool {
		got, err := st.Queue.GetByID(ctx, item.ID)
		return err == nil && got.Status == models.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	got, err := st.Queue.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ConflictData)

	cached, err := eng.GetCached(ctx, models.KindProducts, "p1")
	require.NoError(t, err)
	assert.JSONEq(t, string(merged), string(cached.Data))
}

func TestResolveConflict_RejectsNonConflictItem(t *testing.T) {
	client := &fakeClient{}
	eng, _, _ := newTestEngine(t, client, false)
	ctx := context.Background()

	item, err := eng.SaveLocal(ctx, models.KindProducts, "p1", json.RawMessage(`{"id":"p1"}`))
	require.NoError(t, err)

	err = eng.ResolveConflict(ctx, item.ID, nil)
	assert.ErrorIs(t, err, ErrNotConflict)
}

func TestDeleteLocal_TombstoneThenHardRemove(t *testing.T) {
	client := &fakeClient{}
	eng, provider, st := newTestEngine(t, client, false)
	ctx := context.Background()

	require.NoError(t, st.Cache.ApplyServer(ctx, models.KindProducts, "p1", json.RawMessage(`{"id":"p1"}`), time.Now()))

	item, err := eng.DeleteLocal(ctx, models.KindProducts, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.OpDelete, item.Operation)

	// Tombstoned: invisible to reads even before the server confirms.
	_, err = eng.GetCached(ctx, models.KindProducts, "p1")
	assert.Error(t, err)

	provider.SetOnline(true)

	require.Eventually(t, func() bool {
		got, err := st.Queue.GetByID(ctx, item.ID)
		return err == nil && got.Status == models.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	client.mu.Lock()
	deletes := client.deletes
	client.mu.Unlock()
	assert.Equal(t, 1, deletes)
}

func TestPullChanges_HydratesAndAdvancesCursor(t *testing.T) {
	client := &fakeClient{
		pullFn: func(kind models.EntityKind, since time.Time, outletID string) ([]api.Entity, error) {
			return []api.Entity{
				{ID: "p1", Data: json.RawMessage(`{"id":"p1","name":"one"}`)},
				{ID: "p2", Data: json.RawMessage(`{"id":"p2","name":"two"}`)},
			}, nil
		},
	}
	eng, _, st := newTestEngine(t, client, true)
	ctx := context.Background()

	before, err := st.Metadata.Get(ctx, models.KindProducts)
	require.NoError(t, err)
	require.True(t, before.LastSyncAt.IsZero())

	n, err := eng.PullChanges(ctx, models.KindProducts)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := eng.GetAllCached(ctx, models.KindProducts)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	for _, ent := range all {
		assert.False(t, ent.IsDirty)
	}

	after, err := st.Metadata.Get(ctx, models.KindProducts)
	require.NoError(t, err)
	assert.True(t, after.LastSyncAt.After(before.LastSyncAt))

	// A second pull moves the cursor strictly forward again.
	_, err = eng.PullChanges(ctx, models.KindProducts)
	require.NoError(t, err)

	again, err := st.Metadata.Get(ctx, models.KindProducts)
	require.NoError(t, err)
	assert.True(t, again.LastSyncAt.After(after.LastSyncAt) || again.LastSyncAt.Equal(after.LastSyncAt))
}

func TestPullChanges_CursorCapturedBeforeRequest(t *testing.T) {
	var sinceSeen time.Time
	client := &fakeClient{
		pullFn: func(kind models.EntityKind, since time.Time, outletID string) ([]api.Entity, error) {
			sinceSeen = since
			return nil, nil
		},
	}
	eng, _, st := newTestEngine(t, client, true)
	ctx := context.Background()

	seed := time.Now().Add(-time.Hour)
	require.NoError(t, st.Metadata.AdvanceCursor(ctx, models.KindOrders, seed))

	_, err := eng.PullChanges(ctx, models.KindOrders)
	require.NoError(t, err)

	assert.WithinDuration(t, seed, sinceSeen, time.Second, "pull must use the stored cursor, not now")
}

func TestPullChanges_RejectsUnknownKind(t *testing.T) {
	eng, _, _ := newTestEngine(t, &fakeClient{}, true)

	_, err := eng.PullChanges(context.Background(), models.EntityKind("gadgets"))
	assert.ErrorIs(t, err, ErrInvalidKind)
}

func TestRetryFailed_ResetsBudgetAndDrains(t *testing.T) {
	healthy := false
	client := &fakeClient{}
	client.createFn = func(kind models.EntityKind, payload json.RawMessage) (json.RawMessage, error) {
		client.mu.Lock()
		ok := healthy
		client.mu.Unlock()
		if !ok {
			return nil, &api.StatusError{StatusCode: 503, Status: "503 Service Unavailable"}
		}
		return payload, nil
	}
	eng, _, st := newTestEngine(t, client, true)
	ctx := context.Background()

	item, err := eng.QueueOperation(ctx, models.KindProducts, "p1", models.OpCreate, json.RawMessage(`{"id":"p1"}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := st.Queue.GetByID(ctx, item.ID)
		return err == nil && got.Status == models.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	client.mu.Lock()
	healthy = true
	client.mu.Unlock()

	n, err := eng.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := st.Queue.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestQueueStatusAndClearCompleted(t *testing.T) {
	client := &fakeClient{}
	eng, provider, _ := newTestEngine(t, client, false)
	ctx := context.Background()

	_, err := eng.SaveLocal(ctx, models.KindProducts, "p1", json.RawMessage(`{"id":"p1"}`))
	require.NoError(t, err)
	_, err = eng.SaveLocal(ctx, models.KindProducts, "p2", json.RawMessage(`{"id":"p2"}`))
	require.NoError(t, err)

	status, err := eng.GetQueueStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Pending)

	provider.SetOnline(true)
	require.Eventually(t, func() bool {
		s, err := eng.GetQueueStatus(ctx)
		return err == nil && s.Completed == 2
	}, 2*time.Second, 10*time.Millisecond)

	removed, err := eng.ClearCompleted(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	status, err = eng.GetQueueStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.Total())
}

func TestQueueOperation_AfterClose(t *testing.T) {
	client := &fakeClient{}

	ctx := context.Background()
	st, err := store.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	eng := NewEngine(st, client, connectivity.NewManual(false), Options{
		SyncInterval: time.Hour,
		Retry:        fastPolicy(),
	})
	eng.Start(ctx)
	eng.Close()

	_, err = eng.QueueOperation(ctx, models.KindProducts, "p1", models.OpCreate, json.RawMessage(`{"id":"p1"}`))
	assert.ErrorIs(t, err, ErrEngineClosed)

	_, err = eng.ProcessQueue(ctx)
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestQueueOperation_RejectsInvalidInput(t *testing.T) {
	eng, _, _ := newTestEngine(t, &fakeClient{}, false)
	ctx := context.Background()

	_, err := eng.QueueOperation(ctx, models.EntityKind("widgets"), "x", models.OpCreate, nil)
	assert.ErrorIs(t, err, ErrInvalidKind)

	_, err = eng.QueueOperation(ctx, models.KindProducts, "x", models.Operation("upsert"), nil)
	assert.Error(t, err)
}
