package chat

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"loom-cli/internal/conv"
)

// scriptedGenerator replays chunks, or fails, and records the prompt it was
// given. onStream runs mid-stream so tests can interleave state changes.
type scriptedGenerator struct {
	chunks   []string
	err      error
	prompts  []string
	onStream func()
}

func (g *scriptedGenerator) Stream(_ context.Context, prompt string, onChunk func(string)) error {
	g.prompts = append(g.prompts, prompt)
	if g.onStream != nil {
		g.onStream()
	}
	if g.err != nil {
		return g.err
	}
	for _, c := range g.chunks {
		onChunk(c)
	}
	return nil
}

func newTestSession(gen Generator) (*Session, *MemoryStore, *SubscriptionManager) {
	store := NewMemoryStore()
	subs := NewSubscriptionManager(store, zerolog.Nop())
	sess := NewSession(gen, store, subs, zerolog.Nop())
	return sess, store, subs
}

func TestSubmitWhitespaceOnlyIsNoOp(t *testing.T) {
	gen := &scriptedGenerator{chunks: []string{"never"}}
	sess, store, subs := newTestSession(gen)
	require.NoError(t, subs.SetActive("A", Identity{User: "ana"}))

	require.NoError(t, sess.Submit(context.Background(), "   \n\t ", nil))

	require.Empty(t, store.Turns("A"), "no turn for a blank submission")
	require.Empty(t, gen.prompts, "no network for a blank submission")
	require.False(t, sess.Loading())
}

func TestSubmitCommitsFilteredResponse(t *testing.T) {
	gen := &scriptedGenerator{chunks: []string{"<thi", "nk>weighing options</think>", "The answer ", "is 42."}}
	sess, store, subs := newTestSession(gen)
	require.NoError(t, subs.SetActive("A", Identity{User: "ana"}))

	var progress []string
	require.NoError(t, sess.Submit(context.Background(), "what is the answer?", func(v string) {
		progress = append(progress, v)
	}))

	turns := store.Turns("A")
	require.Len(t, turns, 2)
	require.Equal(t, conv.SenderUser, turns[0].Sender)
	require.Equal(t, "what is the answer?", turns[0].Text)
	require.Equal(t, conv.SenderAI, turns[1].Sender)
	require.Equal(t, "The answer is 42.", turns[1].Text)

	require.NotEmpty(t, progress)
	for _, v := range progress {
		require.NotContains(t, v, "<think>")
		require.NotContains(t, v, "weighing options")
	}
	require.Equal(t, "The answer is 42.", progress[len(progress)-1])
	require.False(t, sess.Loading())
}

func TestSubmitBuildsContextFromPriorTurns(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedGenerator{chunks: []string{"fine"}}
	sess, store, subs := newTestSession(gen)
	require.NoError(t, store.Append(ctx, "A", conv.SenderUser, "hi"))
	require.NoError(t, store.Append(ctx, "A", conv.SenderAI, "hello"))
	require.NoError(t, subs.SetActive("A", Identity{User: "ana"}))

	require.NoError(t, sess.Submit(ctx, "how are you?", nil))

	require.Len(t, gen.prompts, 1)
	require.Equal(t, "User: hi\nAI: hello\nUser: how are you?\nAI:", gen.prompts[0])
}

func TestSubmitStreamFailureCommitsSingleFallbackTurn(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("connection reset")}
	sess, store, subs := newTestSession(gen)
	require.NoError(t, subs.SetActive("A", Identity{User: "ana"}))

	err := sess.Submit(context.Background(), "hello?", nil)
	require.Error(t, err)

	turns := store.Turns("A")
	require.Len(t, turns, 2)
	require.Equal(t, conv.SenderUser, turns[0].Sender)
	require.Equal(t, conv.SenderAI, turns[1].Sender)
	require.Equal(t, FallbackResponse, turns[1].Text)
	require.False(t, sess.Loading(), "loading must clear on the failure path")
}

func TestSubmitRejectsConcurrentSubmissions(t *testing.T) {
	gen := &scriptedGenerator{chunks: []string{"ok"}}
	sess, _, subs := newTestSession(gen)
	require.NoError(t, subs.SetActive("A", Identity{User: "ana"}))

	var nested error
	gen.onStream = func() {
		nested = sess.Submit(context.Background(), "second", nil)
	}

	require.NoError(t, sess.Submit(context.Background(), "first", nil))
	require.ErrorIs(t, nested, ErrBusy)
}

func TestSubmitRequiresActiveConversation(t *testing.T) {
	gen := &scriptedGenerator{chunks: []string{"ok"}}
	sess, store, _ := newTestSession(gen)

	err := sess.Submit(context.Background(), "hello", nil)
	require.Error(t, err)
	require.Empty(t, store.Turns(""))
	require.False(t, sess.Loading())
}

func TestSubmitDropsResponseWhenConversationSwitches(t *testing.T) {
	gen := &scriptedGenerator{chunks: []string{"late answer"}}
	sess, store, subs := newTestSession(gen)
	require.NoError(t, subs.SetActive("A", Identity{User: "ana"}))

	gen.onStream = func() {
		require.NoError(t, subs.SetActive("B", Identity{User: "ana"}))
	}

	require.NoError(t, sess.Submit(context.Background(), "hello", nil))

	turns := store.Turns("A")
	require.Len(t, turns, 1, "only the user turn; the response was dropped")
	require.Equal(t, conv.SenderUser, turns[0].Sender)
	require.Empty(t, store.Turns("B"), "the response must not leak into the new conversation")
	require.False(t, sess.Loading())
}

func TestSubmitUnterminatedReasoningNeverSurfaces(t *testing.T) {
	gen := &scriptedGenerator{chunks: []string{"partial<think>never closed"}}
	sess, store, subs := newTestSession(gen)
	require.NoError(t, subs.SetActive("A", Identity{User: "ana"}))

	require.NoError(t, sess.Submit(context.Background(), "go", nil))

	turns := store.Turns("A")
	require.Len(t, turns, 2)
	require.Equal(t, "partial", turns[1].Text)
}
