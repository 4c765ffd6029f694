package models

import (
	"encoding/json"
	"time"
)

// CachedEntity is the local projection of a remote entity.
//
// IsDirty holds while at least one non-terminal queue item references the
// entity. IsDeleted marks a soft-delete tombstone that is kept until the
// delete operation's queue item completes; tombstones are excluded from all
// read APIs.
type CachedEntity struct {
	Kind           EntityKind
	ID             string
	Data           json.RawMessage
	OutletID       string    // extracted from the payload for scoped reads, may be empty
	SyncedAt       time.Time // last confirmed server timestamp, zero if never synced
	LocalUpdatedAt time.Time
	IsDirty        bool
	IsDeleted      bool
	Version        int64 // monotonic local stamp, not a server clock
}

// SyncMetadata is the per-kind pull cursor. LastSyncAt is monotonically
// non-decreasing and only advances after a successful pull.
type SyncMetadata struct {
	EntityType     EntityKind
	LastSyncAt     time.Time
	SyncInProgress bool
}

// OutletID extracts the "outletId" field from an entity payload, returning
// an empty string when absent or malformed. Used to maintain the outlet
// scoping index without interpreting the rest of the payload.
func OutletID(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var probe struct {
		OutletID string `json:"outletId"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	return probe.OutletID
}
