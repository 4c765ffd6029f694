// Package api is the engine's only road to the network: a thin JSON/REST
// client for the remote authority. It translates HTTP status codes into the
// error types the retry policy and conflict resolver dispatch on, and does
// nothing else — no caching, no retries, no persistence.
package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/outletpos/syncengine/internal/models"
)

// Entity is one record from an incremental pull: the raw server payload plus
// the id extracted from it.
type Entity struct {
	ID   string
	Data json.RawMessage
}

// Client is the narrow transport interface the executor calls through.
type Client interface {
	// Create POSTs a new entity; the response body is the authoritative copy.
	Create(ctx context.Context, kind models.EntityKind, payload json.RawMessage) (json.RawMessage, error)

	// Update PUTs an entity. force=true sets X-Force-Update to bypass the
	// server's optimistic-lock rejection (client-wins override).
	Update(ctx context.Context, kind models.EntityKind, id string, payload json.RawMessage, force bool) (json.RawMessage, error)

	// Delete removes an entity; a 204 without body is acceptable.
	Delete(ctx context.Context, kind models.EntityKind, id string) error

	// Pull fetches entities updated after since, optionally scoped to one outlet.
	Pull(ctx context.Context, kind models.EntityKind, since time.Time, outletID string) ([]Entity, error)

	// Health probes the server's liveness endpoint.
	Health(ctx context.Context) error
}
