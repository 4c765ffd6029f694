// Package connectivity abstracts "are we online" behind a small Provider
// interface so the engine can be driven by a real health-probing monitor in
// production and by a hand-cranked provider in tests.
package connectivity

import "sync"

// Provider reports connectivity and notifies subscribers when it changes.
type Provider interface {
	// Online returns the current connectivity status.
	Online() bool

	// Subscribe registers fn to be called on every status change. The
	// returned func unsubscribes.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Manual is a Provider flipped by hand. Zero value starts offline.
type Manual struct {
	mu     sync.Mutex
	online bool
	seq    int
	subs   map[int]func(online bool)
}

// NewManual returns a Manual provider with the given initial status.
func NewManual(online bool) *Manual {
	return &Manual{online: online, subs: make(map[int]func(bool))}
}

func (m *Manual) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *Manual) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs == nil {
		m.subs = make(map[int]func(bool))
	}
	id := m.seq
	m.seq++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// SetOnline flips the status and notifies subscribers on change.
func (m *Manual) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}
