package chat

import (
	"sync"

	"github.com/rs/zerolog"

	"loom-cli/internal/conv"
)

// Identity is the explicit user signal passed into subscription calls.
// The zero value means "no user". Passing it explicitly (instead of reading
// ambient login state) keeps the manager testable without a live identity
// provider.
type Identity struct {
	User string
}

func (id Identity) Present() bool {
	return id.User != ""
}

// SubscriptionManager owns the single live feed for the active conversation.
//
// Structural invariant: at most one handle is live at any time. Switching
// conversations disposes the previous handle before subscribing to the new
// one, and a generation counter fences out late emissions from a feed that
// has already been replaced.
type SubscriptionManager struct {
	mu    sync.Mutex
	store Store
	log   zerolog.Logger

	activeID string
	handle   Handle
	gen      uint64

	turns   []conv.Turn
	loading bool

	onChange func([]conv.Turn)
}

func NewSubscriptionManager(store Store, log zerolog.Logger) *SubscriptionManager {
	return &SubscriptionManager{store: store, log: log}
}

// OnChange registers a callback invoked after every accepted snapshot.
// Intended for UI refresh; called without the manager lock held.
func (m *SubscriptionManager) OnChange(fn func([]conv.Turn)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// SetActive switches the live feed to the given conversation.
//
// Same id as the current subscription: no-op, to avoid feed churn.
// Absent identity: dispose any handle and reset to an empty idle state.
// Otherwise: dispose the previous handle, clear the snapshot, mark loading,
// and subscribe. Every emission replaces the snapshot wholesale and clears
// the loading flag.
func (m *SubscriptionManager) SetActive(conversationID string, id Identity) error {
	m.mu.Lock()

	if !id.Present() {
		m.resetLocked("")
		m.mu.Unlock()
		return nil
	}

	if conversationID == m.activeID && m.handle != nil {
		m.mu.Unlock()
		return nil
	}

	m.resetLocked(conversationID)
	m.loading = true
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	m.log.Debug().Str("conversation", conversationID).Str("user", id.User).Msg("subscribing to conversation feed")

	handle, err := m.store.Subscribe(conversationID, func(turns []conv.Turn) {
		m.applySnapshot(gen, turns)
	})
	if err != nil {
		m.mu.Lock()
		if m.gen == gen {
			m.loading = false
		}
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	if m.gen != gen {
		// Another switch happened while subscribing; this feed lost the race.
		m.mu.Unlock()
		handle.Dispose()
		return nil
	}
	m.handle = handle
	m.mu.Unlock()
	return nil
}

// resetLocked disposes any live handle and clears local state.
// Caller holds m.mu.
func (m *SubscriptionManager) resetLocked(newActiveID string) {
	if m.handle != nil {
		m.handle.Dispose()
		m.handle = nil
	}
	m.activeID = newActiveID
	m.turns = nil
	m.loading = false
	m.gen++
}

func (m *SubscriptionManager) applySnapshot(gen uint64, turns []conv.Turn) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.log.Debug().Msg("dropping stale feed emission")
		return
	}
	m.turns = conv.CloneTurns(turns)
	m.loading = false
	fn := m.onChange
	snapshot := conv.CloneTurns(m.turns)
	m.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
}

// ActiveID returns the conversation the manager is currently bound to
// ("" when idle).
func (m *SubscriptionManager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// Turns returns a copy of the current conversation snapshot.
func (m *SubscriptionManager) Turns() []conv.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return conv.CloneTurns(m.turns)
}

// Loading reports whether the first snapshot for the active conversation is
// still pending.
func (m *SubscriptionManager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// Close disposes the live handle, if any.
func (m *SubscriptionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked("")
}
