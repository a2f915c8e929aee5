package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"loom-cli/internal/chat"
)

// ─── Messages sent from the stream goroutine to Bubble Tea ──────────────────

// streamVisibleMsg carries the visible projection of the response so far.
// The projection is cumulative and monotonic: each message extends the
// previous one, never rewrites it.
type streamVisibleMsg struct {
	visible string
}

type streamDoneMsg struct{}

type streamErrMsg struct {
	err error
}

// chatReadyMsg reports that a freshly created conversation is attached and
// the queued prompt can start streaming. Emitted by cmdAsk's attach command;
// handled in Update so the pump is only ever touched on the UI goroutine.
type chatReadyMsg struct {
	prompt string
}

// convChangedMsg signals that the active conversation feed delivered a new
// snapshot.
type convChangedMsg struct{}

// ─── Stream pump ────────────────────────────────────────────────────────────
//
// The submission runs in a goroutine and reports through a channel. Each
// waitForStream call reads one message; Update dispatches another
// waitForStream after each one until the stream ends.

// streamPump carries one submission's messages to the UI. stop abandons the
// pump: further sends fall through to the done channel instead of blocking
// on a reader that will never come, so the submission keeps draining and the
// session frees itself even though nobody is watching anymore.
type streamPump struct {
	ch   chan tea.Msg
	done chan struct{}
	once sync.Once
}

func (p *streamPump) stop() {
	p.once.Do(func() { close(p.done) })
}

func (p *streamPump) send(msg tea.Msg) {
	select {
	case p.ch <- msg:
	case <-p.done:
	}
}

// beginChat starts a submission and returns its pump plus the first read
// command. The server request is not cancelled by stop; the response still
// commits in the background.
func beginChat(sess *chat.Session, prompt string) (*streamPump, tea.Cmd) {
	p := &streamPump{
		ch:   make(chan tea.Msg, 64),
		done: make(chan struct{}),
	}

	go func() {
		defer close(p.ch)

		err := sess.Submit(context.Background(), prompt, func(visible string) {
			p.send(streamVisibleMsg{visible: visible})
		})
		if err != nil {
			p.send(streamErrMsg{err: err})
			return
		}
		p.send(streamDoneMsg{})
	}()

	return p, waitForStream(p.ch)
}

// waitForStream reads the next message from the channel.
func waitForStream(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return streamDoneMsg{}
		}
		return msg
	}
}

// waitForConvChange blocks until the subscription feed notifies, then emits
// a convChangedMsg. Re-armed after every delivery.
func waitForConvChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return convChangedMsg{}
	}
}
