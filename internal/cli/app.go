// Package cli is the interactive front end for the sync engine: a small REPL
// over the engine's local-first API, plus the wiring that assembles the
// store, transport, connectivity monitor and engine from configuration.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/outletpos/syncengine/internal/api"
	"github.com/outletpos/syncengine/internal/config"
	"github.com/outletpos/syncengine/internal/connectivity"
	"github.com/outletpos/syncengine/internal/logging"
	"github.com/outletpos/syncengine/internal/store"
	"github.com/outletpos/syncengine/internal/sync"
)

// App owns the assembled engine and its supporting pieces for the lifetime
// of the process.
type App struct {
	config  *config.Config
	store   *store.Store
	engine  *sync.Engine
	monitor *connectivity.Monitor
	log     logging.Logger
}

// NewApp wires the full stack from configuration: local store with
// migrations applied, HTTP transport, health-probe connectivity monitor and
// the engine on top.
func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	client := api.NewHTTPClient(cfg.ServerBaseURL, nil, cfg.RequestTimeout)
	monitor := connectivity.NewMonitor(client.Health, cfg.ProbeInterval, cfg.RequestTimeout, log)

	strategy, err := sync.ParseStrategy(cfg.ConflictStrategy)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	deviceID, err := ensureDeviceID(ctx, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	log = log.With("device", deviceID)

	engine := sync.NewEngine(st, client, monitor, sync.Options{
		OutletID:       cfg.OutletID,
		SyncInterval:   cfg.SyncInterval,
		RequestTimeout: cfg.RequestTimeout,
		MaxRetries:     cfg.MaxRetries,
		Strategy:       strategy,
		Retry: sync.RetryPolicy{
			InitialDelay:  cfg.InitialRetryDelay,
			BackoffFactor: cfg.BackoffFactor,
			MaxBackoff:    cfg.MaxBackoff,
			MaxConcurrent: 3,
		},
		Logger: log,
	})

	return &App{config: cfg, store: st, engine: engine, monitor: monitor, log: log}, nil
}

// Run starts the background loops and hands control to the REPL until the
// user exits or stdin closes.
func (a *App) Run(ctx context.Context) {
	a.engine.Start(ctx)
	a.monitor.Start(ctx)

	defer func() {
		a.monitor.Close()
		a.engine.Close()
		_ = a.store.Close()
	}()

	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.statusLine, scanner)
}

func (a *App) statusLine() string {
	if a.monitor.Online() {
		return "online"
	}
	return "offline"
}

// ensureDeviceID reads the per-install device identity from the settings
// partition, minting one on first run.
func ensureDeviceID(ctx context.Context, st *store.Store) (string, error) {
	const key = "device_id"

	v, err := st.Settings.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to read device id: %w", err)
	}
	if v != nil {
		return string(v), nil
	}

	id := uuid.NewString()
	if err := st.Settings.Set(ctx, key, []byte(id)); err != nil {
		return "", fmt.Errorf("failed to store device id: %w", err)
	}
	return id, nil
}
