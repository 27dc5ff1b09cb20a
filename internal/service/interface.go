package service

import (
	"context"

	"github.com/converse-im/converse/internal/hub"
)

// ChatService handles the messaging core's WebSocket operations. Every
// handler replies on the originating connection; fan-out to other
// members goes through the hub.
type ChatService interface {
	HandleAuth(ctx context.Context, c *hub.Client, token string) error
	HandleHeartbeat(ctx context.Context, c *hub.Client) error
	HandleJoin(ctx context.Context, c *hub.Client, conversationID string) error
	HandleLeave(ctx context.Context, c *hub.Client, conversationID string) error
	HandleMessage(ctx context.Context, c *hub.Client, conversationID, text string, replyToID *string) error
	HandleReaction(ctx context.Context, c *hub.Client, messageID, emoji string) error
	HandleReceipts(ctx context.Context, c *hub.Client, messageIDs []string, status string) error
	HandleDisconnect(ctx context.Context, c *hub.Client)
}
