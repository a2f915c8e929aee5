package conv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildPrompt(t *testing.T) {
	tests := []struct {
		name  string
		turns []Turn
		next  string
		want  string
	}{
		{
			name: "empty conversation",
			next: "hello",
			want: "User: hello\nAI:",
		},
		{
			name: "alternating turns in insertion order",
			turns: []Turn{
				{Sender: SenderUser, Text: "hi"},
				{Sender: SenderAI, Text: "hello there"},
			},
			next: "how are you?",
			want: "User: hi\nAI: hello there\nUser: how are you?\nAI:",
		},
		{
			name: "non user/ai senders excluded",
			turns: []Turn{
				{Sender: SenderUser, Text: "hi"},
				{Sender: Sender("system"), Text: "internal note"},
				{Sender: SenderAI, Text: "hello"},
			},
			next: "ok",
			want: "User: hi\nAI: hello\nUser: ok\nAI:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, BuildPrompt(tt.turns, tt.next))
		})
	}
}

func TestCloneTurnsIsIndependent(t *testing.T) {
	orig := []Turn{{Sender: SenderUser, Text: "a"}}
	clone := CloneTurns(orig)
	clone[0].Text = "mutated"
	require.Equal(t, "a", orig[0].Text)

	require.Nil(t, CloneTurns(nil))
}

func TestSenderLabel(t *testing.T) {
	require.Equal(t, "User", SenderUser.Label())
	require.Equal(t, "AI", SenderAI.Label())
	require.Equal(t, "system", Sender("system").Label())
}
