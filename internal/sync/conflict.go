package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/outletpos/syncengine/internal/logging"
	"github.com/outletpos/syncengine/internal/models"
)

// Strategy selects how a 409 conflict is settled.
type Strategy string

const (
	// StrategyServerWins discards the local mutation and adopts the
	// server's snapshot.
	StrategyServerWins Strategy = "server-wins"

	// StrategyClientWins force-pushes the local payload, overriding the
	// server's optimistic lock.
	StrategyClientWins Strategy = "client-wins"

	// StrategyManual parks the item in conflict state until an operator
	// resolves it.
	StrategyManual Strategy = "manual"
)

// ParseStrategy validates a strategy string from configuration.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyServerWins, StrategyClientWins, StrategyManual:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown conflict strategy %q", s)
}

// Resolver applies the configured strategy when a mutation hits a conflict.
type Resolver struct {
	strategy Strategy
	executor *Executor
	log      logging.Logger
}

// NewResolver builds a resolver for the given strategy.
func NewResolver(strategy Strategy, executor *Executor, log logging.Logger) *Resolver {
	return &Resolver{strategy: strategy, executor: executor, log: log}
}

// Strategy returns the configured strategy.
func (r *Resolver) Strategy() Strategy {
	return r.strategy
}

// Resolve settles the conflict between item and the server's snapshot.
//
// resolved=true means the item's mutation has been settled and the item can
// complete. resolved=false with a nil error means the item must be parked as
// a conflict for manual resolution; resolved=false with an error means the
// resolution attempt itself failed and should run through the normal failure
// path.
func (r *Resolver) Resolve(ctx context.Context, item *models.SyncQueueItem, serverData json.RawMessage) (resolved bool, err error) {
	switch r.strategy {
	case StrategyServerWins:
		r.log.Info(ctx, "conflict resolved in favor of server",
			"item", item.ID, "entity", item.EntityID)
		if err := r.executor.AdoptServerSnapshot(ctx, item.EntityType, item.EntityID, serverData); err != nil {
			return false, err
		}
		return true, nil

	case StrategyClientWins:
		r.log.Info(ctx, "conflict resolved in favor of client, force-pushing",
			"item", item.ID, "entity", item.EntityID)
		if err := r.executor.ForcePush(ctx, item); err != nil {
			return false, fmt.Errorf("force push failed: %w", err)
		}
		return true, nil

	case StrategyManual:
		r.log.Warn(ctx, "conflict requires manual resolution",
			"item", item.ID, "entity", item.EntityID)
		return false, nil

	default:
		return false, fmt.Errorf("unknown conflict strategy %q", r.strategy)
	}
}
