package conv

// Sender identifies who produced a turn.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Label returns the role label used when serializing a turn into a prompt.
func (s Sender) Label() string {
	switch s {
	case SenderUser:
		return "User"
	case SenderAI:
		return "AI"
	default:
		return string(s)
	}
}

// Turn is one message unit in a conversation. Immutable once committed:
// conversations only ever append turns, never reorder them.
type Turn struct {
	ID     string `json:"id,omitempty"`
	Sender Sender `json:"sender"`
	Text   string `json:"text"`
}

// CloneTurns returns a defensive copy of a turn slice. Snapshots handed to
// subscribers must not alias the store's backing array.
func CloneTurns(turns []Turn) []Turn {
	if len(turns) == 0 {
		return nil
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
