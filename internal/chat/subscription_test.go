package chat

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"loom-cli/internal/conv"
)

// ─── Fakes ──────────────────────────────────────────────────────────────────

// recordingStore counts subscriptions and lets tests emit snapshots on a
// feed after it has been replaced, simulating a late network delivery.
type recordingStore struct {
	appends    []appendCall
	subscribed []string
	feeds      map[string]func([]conv.Turn)
	disposed   map[string]bool
}

type appendCall struct {
	conversationID string
	sender         conv.Sender
	text           string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		feeds:    map[string]func([]conv.Turn){},
		disposed: map[string]bool{},
	}
}

func (s *recordingStore) Append(_ context.Context, conversationID string, sender conv.Sender, text string) error {
	s.appends = append(s.appends, appendCall{conversationID, sender, text})
	return nil
}

func (s *recordingStore) Subscribe(conversationID string, onSnapshot func([]conv.Turn)) (Handle, error) {
	s.subscribed = append(s.subscribed, conversationID)
	s.feeds[conversationID] = onSnapshot
	return &funcHandle{fn: func() { s.disposed[conversationID] = true }}, nil
}

// emit delivers a snapshot on a feed regardless of handle state, the way a
// late message from a torn-down connection would arrive.
func (s *recordingStore) emit(conversationID string, turns []conv.Turn) {
	if fn, ok := s.feeds[conversationID]; ok {
		fn(turns)
	}
}

type funcHandle struct {
	fn       func()
	disposed bool
}

func (h *funcHandle) Dispose() {
	if !h.disposed {
		h.disposed = true
		h.fn()
	}
}

func userID(name string) Identity { return Identity{User: name} }

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestSetActiveSubscribesAndAppliesSnapshots(t *testing.T) {
	store := newRecordingStore()
	m := NewSubscriptionManager(store, zerolog.Nop())

	require.NoError(t, m.SetActive("A", userID("ana")))
	require.Equal(t, "A", m.ActiveID())
	require.True(t, m.Loading(), "loading until the first snapshot arrives")

	store.emit("A", []conv.Turn{{Sender: conv.SenderUser, Text: "hi"}})
	require.False(t, m.Loading())
	turns := m.Turns()
	require.Len(t, turns, 1)
	require.Equal(t, "hi", turns[0].Text)
}

func TestSetActiveSameIDIsNoOp(t *testing.T) {
	store := newRecordingStore()
	m := NewSubscriptionManager(store, zerolog.Nop())

	require.NoError(t, m.SetActive("A", userID("ana")))
	require.NoError(t, m.SetActive("A", userID("ana")))

	require.Equal(t, []string{"A"}, store.subscribed, "resubscribing to the same conversation must not churn the feed")
}

func TestSetActiveDisposesPreviousHandleFirst(t *testing.T) {
	store := newRecordingStore()
	m := NewSubscriptionManager(store, zerolog.Nop())

	require.NoError(t, m.SetActive("A", userID("ana")))
	require.NoError(t, m.SetActive("B", userID("ana")))

	require.True(t, store.disposed["A"])
	require.Equal(t, []string{"A", "B"}, store.subscribed)
	require.Equal(t, "B", m.ActiveID())
}

func TestLateEmissionFromReplacedFeedIsIgnored(t *testing.T) {
	store := newRecordingStore()
	m := NewSubscriptionManager(store, zerolog.Nop())

	require.NoError(t, m.SetActive("A", userID("ana")))
	require.NoError(t, m.SetActive("B", userID("ana")))

	store.emit("B", []conv.Turn{{Sender: conv.SenderUser, Text: "for B"}})
	// A's feed was torn down, but the message was already in flight.
	store.emit("A", []conv.Turn{{Sender: conv.SenderUser, Text: "for A"}})

	turns := m.Turns()
	require.Len(t, turns, 1)
	require.Equal(t, "for B", turns[0].Text)
}

func TestAbsentIdentityResetsToIdle(t *testing.T) {
	store := newRecordingStore()
	m := NewSubscriptionManager(store, zerolog.Nop())

	require.NoError(t, m.SetActive("A", userID("ana")))
	store.emit("A", []conv.Turn{{Sender: conv.SenderUser, Text: "hi"}})

	require.NoError(t, m.SetActive("A", Identity{}))

	require.True(t, store.disposed["A"])
	require.Empty(t, m.ActiveID())
	require.Empty(t, m.Turns())
	require.False(t, m.Loading())
	require.Equal(t, []string{"A"}, store.subscribed, "no new feed without a user")
}

func TestSwitchingClearsSnapshotUntilNewFeedEmits(t *testing.T) {
	store := newRecordingStore()
	m := NewSubscriptionManager(store, zerolog.Nop())

	require.NoError(t, m.SetActive("A", userID("ana")))
	store.emit("A", []conv.Turn{{Sender: conv.SenderUser, Text: "old"}})

	require.NoError(t, m.SetActive("B", userID("ana")))
	require.Empty(t, m.Turns(), "stale snapshot must not survive the switch")
	require.True(t, m.Loading())
}

func TestOnChangeFiresForAcceptedSnapshots(t *testing.T) {
	store := newRecordingStore()
	m := NewSubscriptionManager(store, zerolog.Nop())

	var notified [][]conv.Turn
	m.OnChange(func(turns []conv.Turn) { notified = append(notified, turns) })

	require.NoError(t, m.SetActive("A", userID("ana")))
	store.emit("A", []conv.Turn{{Sender: conv.SenderUser, Text: "hi"}})

	require.NoError(t, m.SetActive("B", userID("ana")))
	store.emit("A", []conv.Turn{{Sender: conv.SenderUser, Text: "stale"}})

	require.Len(t, notified, 1)
	require.Equal(t, "hi", notified[0][0].Text)
}

func TestCloseDisposesHandle(t *testing.T) {
	store := newRecordingStore()
	m := NewSubscriptionManager(store, zerolog.Nop())

	require.NoError(t, m.SetActive("A", userID("ana")))
	m.Close()

	require.True(t, store.disposed["A"])
	require.Empty(t, m.ActiveID())
}

func TestManagerWithMemoryStoreEndToEnd(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "A", conv.SenderUser, "first"))

	m := NewSubscriptionManager(store, zerolog.Nop())
	require.NoError(t, m.SetActive("A", userID("ana")))

	// Initial snapshot arrives synchronously from the memory store.
	require.False(t, m.Loading())
	require.Len(t, m.Turns(), 1)

	require.NoError(t, store.Append(ctx, "A", conv.SenderAI, "second"))
	require.Len(t, m.Turns(), 2)

	require.NoError(t, m.SetActive("B", userID("ana")))
	require.NoError(t, store.Append(ctx, "A", conv.SenderUser, "third"))
	require.Empty(t, m.Turns(), "emissions for A must not reach the B snapshot")
}
