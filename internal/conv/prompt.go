package conv

import "strings"

// BuildPrompt serializes a conversation into the context string handed to the
// generation backend. Each prior turn becomes a "<Label>: <text>" line in
// insertion order, followed by the new user prompt and an open "AI:" marker
// inviting the model to continue. Turns from senders other than user/ai are
// excluded.
func BuildPrompt(turns []Turn, nextPrompt string) string {
	var b strings.Builder
	for _, t := range turns {
		if t.Sender != SenderUser && t.Sender != SenderAI {
			continue
		}
		b.WriteString(t.Sender.Label())
		b.WriteString(": ")
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	b.WriteString(SenderUser.Label())
	b.WriteString(": ")
	b.WriteString(nextPrompt)
	b.WriteString("\n")
	b.WriteString(SenderAI.Label())
	b.WriteString(":")
	return b.String()
}
