package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"loom-cli/internal/conv"
	"loom-cli/internal/filter"
)

// FallbackResponse is committed as the AI turn when generation fails.
const FallbackResponse = "Sorry, something went wrong while generating a response. Please try again."

// ErrBusy is returned when a submission is already in flight. Submissions
// are serialized: the caller retries after the current one completes.
var ErrBusy = errors.New("chat: a submission is already in progress")

// Session orchestrates one conversation: it appends the optimistic user
// turn, builds the prompt context, drives the generation stream through the
// reasoning filter, and commits the final AI turn.
type Session struct {
	mu   sync.Mutex
	busy bool

	gen   Generator
	store Store
	subs  *SubscriptionManager
	log   zerolog.Logger

	loading bool
}

func NewSession(gen Generator, store Store, subs *SubscriptionManager, log zerolog.Logger) *Session {
	return &Session{gen: gen, store: store, subs: subs, log: log}
}

// Loading reports whether a submission is in flight.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Submit runs one submission cycle against the active conversation.
//
// Empty or whitespace-only input is a silent no-op: no turn, no network.
// Otherwise the user turn is committed immediately (optimistically, before
// the response exists), the prompt context is built from the prior turns,
// and the streamed response is filtered chunk by chunk; onProgress receives
// the growing visible projection. On success the filtered text is committed
// as an AI turn; on stream failure a single fixed fallback AI turn is
// committed instead. The loading flag clears on every exit path.
//
// If the active conversation changes while streaming, the completed response
// is dropped rather than appended to the wrong conversation. The server-side
// request itself is not cancelled.
func (s *Session) Submit(ctx context.Context, prompt string, onProgress func(visible string)) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	s.busy = true
	s.loading = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.loading = false
		s.mu.Unlock()
	}()

	conversationID := s.subs.ActiveID()
	if conversationID == "" {
		return errors.New("chat: no active conversation")
	}

	prior := s.subs.Turns()

	s.log.Debug().Str("conversation", conversationID).Int("prior_turns", len(prior)).Msg("submitting prompt")

	if err := s.store.Append(ctx, conversationID, conv.SenderUser, prompt); err != nil {
		// The optimistic turn stays visible locally; surface the failure the
		// same way a generation failure is surfaced.
		s.commitFallback(ctx, conversationID)
		return errors.Wrap(err, "persisting user turn")
	}

	contextString := conv.BuildPrompt(prior, prompt)

	f := filter.New()
	err := s.gen.Stream(ctx, contextString, func(chunk string) {
		visible := f.Ingest(chunk)
		if onProgress != nil {
			onProgress(visible)
		}
	})
	if err != nil {
		s.log.Warn().Err(err).Str("conversation", conversationID).Msg("generation stream failed")
		s.commitFallback(ctx, conversationID)
		return errors.Wrap(err, "generation stream")
	}

	final := f.Finalize()

	if current := s.subs.ActiveID(); current != conversationID {
		s.log.Warn().
			Str("submitted", conversationID).
			Str("active", current).
			Msg("conversation changed mid-stream; dropping response")
		return nil
	}

	if err := s.store.Append(ctx, conversationID, conv.SenderAI, final); err != nil {
		return errors.Wrap(err, "persisting response turn")
	}
	return nil
}

// commitFallback appends the fixed failure turn. Best effort: a persistence
// failure here must not take the controller down with it.
func (s *Session) commitFallback(ctx context.Context, conversationID string) {
	if err := s.store.Append(ctx, conversationID, conv.SenderAI, FallbackResponse); err != nil {
		s.log.Error().Err(err).Str("conversation", conversationID).Msg("persisting fallback turn failed")
	}
}
