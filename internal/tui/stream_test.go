package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"loom-cli/internal/chat"
)

// drainStream pumps waitForStream until a terminal message arrives, mirroring
// what Update does after every chunk.
func drainStream(t *testing.T, pump *streamPump, first tea.Cmd) []tea.Msg {
	t.Helper()

	var msgs []tea.Msg
	cmd := first
	deadline := time.After(5 * time.Second)

	for {
		select {
		case <-deadline:
			t.Fatal("stream did not terminate")
		default:
		}

		msg := cmd()
		msgs = append(msgs, msg)
		switch msg.(type) {
		case streamDoneMsg, streamErrMsg:
			return msgs
		}
		cmd = waitForStream(pump.ch)
	}
}

func newStreamSession(t *testing.T, relay *mockRelay) *chat.Session {
	t.Helper()
	subs := chat.NewSubscriptionManager(relay, zerolog.Nop())
	if err := subs.SetActive("conv-1", chat.Identity{User: "user@test.com"}); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	return chat.NewSession(relay, relay, subs, zerolog.Nop())
}

func TestBeginChatDeliversVisibleProjection(t *testing.T) {
	relay := &mockRelay{chunks: []string{"Hel", "lo <thi", "nk>secret</think>world"}}
	sess := newStreamSession(t, relay)

	pump, first := beginChat(sess, "hi")
	msgs := drainStream(t, pump, first)

	if _, ok := msgs[len(msgs)-1].(streamDoneMsg); !ok {
		t.Fatalf("last message = %T, want streamDoneMsg", msgs[len(msgs)-1])
	}

	prev := ""
	for _, msg := range msgs {
		v, ok := msg.(streamVisibleMsg)
		if !ok {
			continue
		}
		if strings.Contains(v.visible, "secret") || strings.Contains(v.visible, "<think>") {
			t.Errorf("reasoning leaked into visible projection: %q", v.visible)
		}
		if !strings.HasPrefix(v.visible, prev) {
			t.Errorf("projection not monotonic: %q does not extend %q", v.visible, prev)
		}
		prev = v.visible
	}
	if prev != "Hello world" {
		t.Errorf("final visible projection = %q, want %q", prev, "Hello world")
	}
}

func TestBeginChatReportsStreamError(t *testing.T) {
	relay := &mockRelay{}
	sess := newStreamSession(t, relay)
	relay.err = errStream

	pump, first := beginChat(sess, "hi")
	msgs := drainStream(t, pump, first)

	last, ok := msgs[len(msgs)-1].(streamErrMsg)
	if !ok {
		t.Fatalf("last message = %T, want streamErrMsg", msgs[len(msgs)-1])
	}
	if last.err == nil {
		t.Error("streamErrMsg carries no error")
	}
}

// An abandoned pump must not wedge the session: the generator keeps emitting
// far past the channel buffer, nobody reads, and stop() has to let the
// submission drain so a later Submit can run.
func TestStopMidStreamFreesSession(t *testing.T) {
	chunks := make([]string, 200)
	for i := range chunks {
		chunks[i] = "chunk "
	}
	relay := &mockRelay{chunks: chunks}
	sess := newStreamSession(t, relay)

	pump, _ := beginChat(sess, "hi")
	pump.stop()

	deadline := time.Now().Add(5 * time.Second)
	for sess.Loading() {
		if time.Now().After(deadline) {
			t.Fatal("session still busy after the pump was stopped")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := sess.Submit(context.Background(), "again", nil); err != nil {
		t.Fatalf("Submit after stop: %v", err)
	}
}

func TestPumpStopIsIdempotent(t *testing.T) {
	relay := &mockRelay{chunks: []string{"hi"}}
	sess := newStreamSession(t, relay)

	pump, _ := beginChat(sess, "hi")
	pump.stop()
	pump.stop()
}

var errStream = &streamTestError{}

type streamTestError struct{}

func (*streamTestError) Error() string { return "connection reset" }

func TestWaitForStreamClosedChannel(t *testing.T) {
	ch := make(chan tea.Msg)
	close(ch)
	msg := waitForStream(ch)()
	if _, ok := msg.(streamDoneMsg); !ok {
		t.Errorf("message on closed channel = %T, want streamDoneMsg", msg)
	}
}

func TestWaitForConvChange(t *testing.T) {
	ch := make(chan struct{}, 1)
	ch <- struct{}{}
	msg := waitForConvChange(ch)()
	if _, ok := msg.(convChangedMsg); !ok {
		t.Errorf("message = %T, want convChangedMsg", msg)
	}
}
