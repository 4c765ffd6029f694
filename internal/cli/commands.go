package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/outletpos/syncengine/internal/models"
	"github.com/outletpos/syncengine/internal/sync"
)

var errUsage = errors.New("usage: save <kind> <id> <json> | delete <kind> <id> | list <kind> | pull [kind] | resolve <item-id> [json]")

// Status prints the queue summary and connectivity.
func (a *App) Status(ctx context.Context) error {
	status, err := a.engine.GetQueueStatus(ctx)
	if err != nil {
		return err
	}

	printlnFn(fmt.Sprintf("connectivity: %s", a.statusLine()))
	printlnFn(fmt.Sprintf("queue: %d total (pending %d, syncing %d, completed %d, failed %d, conflicts %d)",
		status.Total(), status.Pending, status.Syncing, status.Completed, status.Failed, status.Conflicts))
	return nil
}

// Pending lists queue items awaiting sync.
func (a *App) Pending(ctx context.Context) error {
	status, err := a.engine.GetQueueStatus(ctx)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("%d pending item(s)", status.Pending))
	return nil
}

// Failed lists items that exhausted their retries.
func (a *App) Failed(ctx context.Context) error {
	items, err := a.engine.GetFailedItems(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		printlnFn("no failed items")
		return nil
	}
	for _, item := range items {
		printlnFn(fmt.Sprintf("%s  %s %s/%s  retries=%d  error=%s",
			item.ID, item.Operation, item.EntityType, item.EntityID, item.RetryCount, item.Error))
	}
	return nil
}

// Conflicts lists items parked for manual resolution.
func (a *App) Conflicts(ctx context.Context) error {
	items, err := a.engine.GetConflictItems(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		printlnFn("no conflicts")
		return nil
	}
	for _, item := range items {
		printlnFn(fmt.Sprintf("%s  %s %s/%s", item.ID, item.Operation, item.EntityType, item.EntityID))
		printlnFn(fmt.Sprintf("  local:  %s", item.Data))
		printlnFn(fmt.Sprintf("  server: %s", item.ConflictData))
	}
	return nil
}

// Save writes an entity locally and queues the mutation.
func (a *App) Save(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return errUsage
	}
	kind, err := models.ParseEntityKind(args[0])
	if err != nil {
		return err
	}
	payload := strings.Join(args[2:], " ")
	if !json.Valid([]byte(payload)) {
		return fmt.Errorf("payload is not valid JSON")
	}

	item, err := a.engine.SaveLocal(ctx, kind, args[1], json.RawMessage(payload))
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("queued %s as %s", item.Operation, item.ID))
	return nil
}

// Delete tombstones an entity locally and queues the delete.
func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	kind, err := models.ParseEntityKind(args[0])
	if err != nil {
		return err
	}

	item, err := a.engine.DeleteLocal(ctx, kind, args[1])
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("queued delete as %s", item.ID))
	return nil
}

// List prints cached entities of one kind.
func (a *App) List(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	kind, err := models.ParseEntityKind(args[0])
	if err != nil {
		return err
	}

	entities, err := a.engine.GetAllCached(ctx, kind)
	if err != nil {
		return err
	}
	if len(entities) == 0 {
		printlnFn("no cached entities")
		return nil
	}
	for _, ent := range entities {
		flag := " "
		if ent.IsDirty {
			flag = "*"
		}
		printlnFn(fmt.Sprintf("%s %s  %s", flag, ent.ID, ent.Data))
	}
	printlnFn(fmt.Sprintf("%d entities (* = not yet synced)", len(entities)))
	return nil
}

// Pull fetches remote changes for one kind, or all kinds without an argument.
func (a *App) Pull(ctx context.Context, args []string) error {
	if len(args) == 0 {
		n, err := a.engine.PullAll(ctx)
		printlnFn(fmt.Sprintf("pulled %d entities", n))
		return err
	}

	kind, err := models.ParseEntityKind(args[0])
	if err != nil {
		return err
	}
	n, err := a.engine.PullChanges(ctx, kind)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("pulled %d %s", n, kind))
	return nil
}

// Retry re-runs every failed item with a fresh retry budget.
func (a *App) Retry(ctx context.Context) error {
	n, err := a.engine.RetryFailed(ctx)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("%d item(s) completed on retry", n))
	return nil
}

// Resolve settles one conflict: without a payload the server copy is
// adopted; with one, the payload is requeued as the local truth.
func (a *App) Resolve(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage
	}

	var chosen json.RawMessage
	if len(args) > 1 {
		payload := strings.Join(args[1:], " ")
		if !json.Valid([]byte(payload)) {
			return fmt.Errorf("payload is not valid JSON")
		}
		chosen = json.RawMessage(payload)
	}

	if err := a.engine.ResolveConflict(ctx, args[0], chosen); err != nil {
		return err
	}
	if chosen == nil {
		printlnFn("resolved: server copy adopted")
	} else {
		printlnFn("resolved: payload requeued")
	}
	return nil
}

// Clear garbage-collects completed queue items.
func (a *App) Clear(ctx context.Context) error {
	n, err := a.engine.ClearCompleted(ctx)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("removed %d completed item(s)", n))
	return nil
}

// SetSetting stores a device-local key/value setting.
func (a *App) SetSetting(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: set <key> <value>")
	}
	return a.store.Settings.Set(ctx, args[0], []byte(strings.Join(args[1:], " ")))
}

// GetSetting prints one device-local setting.
func (a *App) GetSetting(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: get <key>")
	}
	v, err := a.store.Settings.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if v == nil {
		printlnFn("(not set)")
		return nil
	}
	printlnFn(string(v))
	return nil
}

// Settings lists every device-local setting.
func (a *App) Settings(ctx context.Context) error {
	all, err := a.store.Settings.List(ctx)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		printlnFn("no settings")
		return nil
	}
	for k, v := range all {
		printlnFn(fmt.Sprintf("%s = %s", k, v))
	}
	return nil
}

// watchDuration bounds one watch session.
const watchDuration = 30 * time.Second

// Watch streams engine events to the terminal for a short window.
func (a *App) Watch(ctx context.Context) error {
	printlnFn(fmt.Sprintf("watching events for %s...", watchDuration))

	unsub := a.engine.Subscribe(sync.EventWildcard, func(ev sync.Event) {
		line := string(ev.Type)
		if ev.ItemID != "" {
			line += "  " + ev.ItemID
		}
		if ev.Count > 0 {
			line += fmt.Sprintf("  count=%d", ev.Count)
		}
		if ev.Attempt > 0 {
			line += fmt.Sprintf("  attempt=%d", ev.Attempt)
		}
		if ev.Err != nil {
			line += "  error=" + ev.Err.Error()
		}
		printlnFn(line)
	})
	defer unsub()

	select {
	case <-time.After(watchDuration):
	case <-ctx.Done():
	}
	return nil
}
