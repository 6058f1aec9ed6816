package session

import (
	"context"
	"sync"

	"github.com/dorolabs/novelverse/backend/internal/novels"
)

// IdentityState carries the current viewer identity. A zero Viewer means
// the session is anonymous; anonymity is a known state, not an error.
type IdentityState struct {
	Viewer novels.Viewer
}

// IdentityProvider yields the current viewer identity immediately on
// subscription and again on every sign-in or sign-out.
type IdentityProvider interface {
	Subscribe(ctx context.Context) (<-chan IdentityState, func())
}

// FixedIdentity is an IdentityProvider whose identity never changes. Used
// for connections authenticated once at establishment time.
type FixedIdentity struct {
	viewer novels.Viewer
}

// NewFixedIdentity constructs a provider pinned to the given viewer.
func NewFixedIdentity(viewer novels.Viewer) *FixedIdentity {
	return &FixedIdentity{viewer: viewer}
}

// Subscribe emits the pinned identity once.
func (f *FixedIdentity) Subscribe(_ context.Context) (<-chan IdentityState, func()) {
	stream := make(chan IdentityState, 1)
	stream <- IdentityState{Viewer: f.viewer}
	return stream, func() {}
}

// ManualIdentity is an IdentityProvider driven by explicit Set calls,
// covering sign-in and sign-out transitions within one session.
type ManualIdentity struct {
	mu          sync.Mutex
	current     IdentityState
	subscribers map[int]chan IdentityState
	nextID      int
}

// NewManualIdentity constructs a provider starting from the given viewer.
func NewManualIdentity(viewer novels.Viewer) *ManualIdentity {
	return &ManualIdentity{
		current:     IdentityState{Viewer: viewer},
		subscribers: make(map[int]chan IdentityState),
	}
}

// Subscribe emits the current identity immediately, then every change.
func (m *ManualIdentity) Subscribe(ctx context.Context) (<-chan IdentityState, func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	stream := make(chan IdentityState, 4)
	stream <- m.current
	m.subscribers[id] = stream
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return stream, cancel
}

// Set publishes a new identity to every subscriber.
func (m *ManualIdentity) Set(viewer novels.Viewer) {
	m.mu.Lock()
	m.current = IdentityState{Viewer: viewer}
	streams := make([]chan IdentityState, 0, len(m.subscribers))
	for _, stream := range m.subscribers {
		streams = append(streams, stream)
	}
	state := m.current
	m.mu.Unlock()

	for _, stream := range streams {
		select {
		case stream <- state:
		default:
		}
	}
}
