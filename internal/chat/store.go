package chat

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"loom-cli/internal/conv"
)

// Store is the persistence surface the chat core depends on. The transport
// behind it (HTTP backend, in-memory) is an external concern; the core only
// needs append semantics and a live snapshot feed per conversation.
type Store interface {
	// Append commits a turn to the end of a conversation.
	Append(ctx context.Context, conversationID string, sender conv.Sender, text string) error

	// Subscribe opens a live feed for a conversation. The callback receives
	// the full turn sequence on every change (wholesale snapshots, never
	// deltas) and once with the current state on subscribe. Dispose the
	// returned handle to stop emissions.
	Subscribe(conversationID string, onSnapshot func([]conv.Turn)) (Handle, error)
}

// Handle owns the lifetime of one feed connection.
// Dispose is idempotent; after it returns no further emissions occur.
type Handle interface {
	Dispose()
}

// Generator produces a streamed response for a prompt context. Chunks are
// arbitrary-length fragments with no alignment guarantees.
type Generator interface {
	Stream(ctx context.Context, prompt string, onChunk func(chunk string)) error
}

// ─── In-memory store ────────────────────────────────────────────────────────

// MemoryStore is a mutex-guarded reference Store. It backs tests and the
// local snapshot path when no server is configured.
type MemoryStore struct {
	mu      sync.Mutex
	turns   map[string][]conv.Turn
	subs    map[string]map[int]func([]conv.Turn)
	nextSub int
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		turns: map[string][]conv.Turn{},
		subs:  map[string]map[int]func([]conv.Turn){},
	}
}

func (s *MemoryStore) Append(_ context.Context, conversationID string, sender conv.Sender, text string) error {
	if conversationID == "" {
		return errors.New("memory store: conversation id is empty")
	}

	s.mu.Lock()
	s.turns[conversationID] = append(s.turns[conversationID], conv.Turn{
		ID:     uuid.NewString(),
		Sender: sender,
		Text:   text,
	})
	snapshot := conv.CloneTurns(s.turns[conversationID])
	var fns []func([]conv.Turn)
	for _, fn := range s.subs[conversationID] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	// Notify outside the lock so a callback can re-enter the store.
	for _, fn := range fns {
		fn(conv.CloneTurns(snapshot))
	}
	return nil
}

func (s *MemoryStore) Subscribe(conversationID string, onSnapshot func([]conv.Turn)) (Handle, error) {
	if conversationID == "" {
		return nil, errors.New("memory store: conversation id is empty")
	}
	if onSnapshot == nil {
		return nil, errors.New("memory store: snapshot callback is nil")
	}

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.subs[conversationID] == nil {
		s.subs[conversationID] = map[int]func([]conv.Turn){}
	}
	s.subs[conversationID][id] = onSnapshot
	snapshot := conv.CloneTurns(s.turns[conversationID])
	s.mu.Unlock()

	// Initial emission mirrors backend watch semantics: the feed always
	// starts with the current state.
	onSnapshot(snapshot)

	return &memoryHandle{store: s, conversationID: conversationID, id: id}, nil
}

// Turns returns a copy of the current turn sequence.
func (s *MemoryStore) Turns(conversationID string) []conv.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conv.CloneTurns(s.turns[conversationID])
}

type memoryHandle struct {
	store          *MemoryStore
	conversationID string
	id             int
	once           sync.Once
}

func (h *memoryHandle) Dispose() {
	h.once.Do(func() {
		h.store.mu.Lock()
		defer h.store.mu.Unlock()
		delete(h.store.subs[h.conversationID], h.id)
	})
}
