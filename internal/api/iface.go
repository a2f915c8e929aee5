package api

import (
	"context"

	"loom-cli/internal/chat"
	"loom-cli/internal/conv"
)

// RelayAPI defines the interface for the Loom backend client.
// *Client satisfies this interface. TUI and tests can use mock implementations.
type RelayAPI interface {
	Login(username, password string) (*LoginResponse, error)
	ListConversations() (*ConversationListResponse, error)

	// Stream satisfies chat.Generator.
	Stream(ctx context.Context, prompt string, onChunk func(chunk string)) error

	// Append and Subscribe satisfy chat.Store.
	Append(ctx context.Context, conversationID string, sender conv.Sender, text string) error
	Subscribe(conversationID string, onSnapshot func([]conv.Turn)) (chat.Handle, error)
}
