package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Operation is the kind of mutation a queue item carries.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Status is the lifecycle state of a queue item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSyncing   Status = "syncing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusConflict  Status = "conflict"
)

// Terminal reports whether the status needs no further automatic processing.
// Failed and conflict items are terminal until an operator intervenes.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusConflict
}

// SyncQueueItem is one durable record of a pending local mutation.
//
// Invariants: RetryCount never exceeds MaxRetries; a completed item has
// SyncedAt set; a conflict item has ConflictData set and its retry counter
// frozen until the conflict is resolved.
type SyncQueueItem struct {
	ID           string
	EntityType   EntityKind
	EntityID     string
	Operation    Operation
	Data         json.RawMessage // payload for create/update, nil for delete
	Status       Status
	RetryCount   int
	MaxRetries   int
	Error        string
	ConflictData json.RawMessage
	CreatedAt    time.Time
	SyncedAt     time.Time // zero until completed
}

// QueueItemID derives the durable item id from the entity identity and the
// moment the mutation was queued.
func QueueItemID(kind EntityKind, entityID string, createdAt time.Time) string {
	return fmt.Sprintf("%s-%s-%d", kind, entityID, createdAt.UnixNano())
}

// QueueStatus summarizes the queue by item status.
type QueueStatus struct {
	Pending   int
	Syncing   int
	Completed int
	Failed    int
	Conflicts int
}

// Total is the number of items the queue currently tracks.
func (q QueueStatus) Total() int {
	return q.Pending + q.Syncing + q.Completed + q.Failed + q.Conflicts
}
