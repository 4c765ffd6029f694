package sync

import (
	stdsync "sync"

	"github.com/outletpos/syncengine/internal/models"
)

// EventType names one observable engine event.
type EventType string

const (
	EventQueued           EventType = "queued"
	EventSyncing          EventType = "syncing"
	EventCompleted        EventType = "completed"
	EventFailed           EventType = "failed"
	EventConflict         EventType = "conflict"
	EventConflictResolved EventType = "conflict_resolved"
	EventRetry            EventType = "retry"
	EventPulled           EventType = "pulled"
	EventOnline           EventType = "online"
	EventOffline          EventType = "offline"
	EventSyncError        EventType = "sync_error"

	// EventWildcard subscribes to every event.
	EventWildcard EventType = "*"
)

// Event is delivered to subscribers. Fields beyond Type are filled when they
// apply: ItemID/Kind/EntityID for queue-item events, Err for failures,
// Count for pulls, Attempt for retries.
type Event struct {
	Type     EventType
	ItemID   string
	Kind     models.EntityKind
	EntityID string
	Err      error
	Count    int
	Attempt  int
}

// Handler receives events. Handlers run synchronously on the emitting
// goroutine, so events for a given queue item arrive in causal order.
type Handler func(Event)

type eventBus struct {
	mu   stdsync.Mutex
	seq  int
	subs map[EventType]map[int]Handler
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[EventType]map[int]Handler)}
}

func (b *eventBus) subscribe(t EventType, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[t] == nil {
		b.subs[t] = make(map[int]Handler)
	}
	id := b.seq
	b.seq++
	b.subs[t][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[t], id)
	}
}

func (b *eventBus) emit(e Event) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[e.Type])+len(b.subs[EventWildcard]))
	for _, h := range b.subs[e.Type] {
		handlers = append(handlers, h)
	}
	for _, h := range b.subs[EventWildcard] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(e)
	}
}
