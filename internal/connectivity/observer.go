// Package connectivity abstracts online/offline detection behind an
// injectable observer. The sync engine depends only on the Observer
// interface; concrete adapters exist per target environment.
package connectivity

import "sync"

// Observer reports connectivity and notifies subscribers on transitions.
type Observer interface {
	// Online reports the last known connectivity state.
	Online() bool

	// Subscribe registers fn for state transitions and returns an
	// unsubscribe function. fn is invoked once per transition, never for
	// repeated reports of the same state.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// notifier implements subscriber bookkeeping shared by the adapters.
type notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(online bool)
	online bool
}

func newNotifier(initial bool) *notifier {
	return &notifier{subs: make(map[int]func(online bool)), online: initial}
}

func (n *notifier) Online() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

func (n *notifier) Subscribe(fn func(online bool)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// set updates the state and fans out on a transition.
func (n *notifier) set(online bool) {
	n.mu.Lock()
	if n.online == online {
		n.mu.Unlock()
		return
	}
	n.online = online
	fns := make([]func(bool), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

// Manual is a programmatically driven observer, used by tests and by a
// user-facing "work offline" toggle.
type Manual struct {
	*notifier
}

// NewManual creates a Manual observer in the given initial state.
func NewManual(online bool) *Manual {
	return &Manual{notifier: newNotifier(online)}
}

// SetOnline flips the reported state, notifying subscribers on change.
func (m *Manual) SetOnline(online bool) {
	m.set(online)
}
