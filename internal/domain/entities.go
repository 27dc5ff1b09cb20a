package domain

import "time"

// User is a chat participant. Only the fields the messaging core needs
// are modelled here; profile data lives elsewhere.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is immutable once created; edits and deletes are handled
// outside the messaging core.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Username       string    `json:"username,omitempty"`
	Text           string    `json:"text"`
	ReplyToID      *string   `json:"reply_to_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessageReceipt tracks per-recipient delivery state. Unique per
// (MessageID, UserID); Status never regresses.
type MessageReceipt struct {
	ID        string        `json:"id"`
	MessageID string        `json:"message_id"`
	UserID    string        `json:"user_id"`
	Status    ReceiptStatus `json:"status"`
	SeenAt    *time.Time    `json:"seen_at,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Reaction is unique per (MessageID, UserID, Emoji); the row's
// existence is the toggle state.
type Reaction struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// Mention records that a message mentioned a user. Unique per
// (MessageID, UserID) regardless of how many tokens resolved to them.
type Mention struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Presence is a user's current liveness, derived from heartbeats and
// connection events.
type Presence struct {
	UserID     string         `json:"user_id"`
	Status     PresenceStatus `json:"status"`
	LastSeenAt time.Time      `json:"last_seen_at"`
}

// ReceiptStats are aggregate delivery counts for a message, derived
// from receipt rows at query time rather than stored redundantly.
type ReceiptStats struct {
	MessageID       string `json:"message_id"`
	TotalRecipients int    `json:"total_recipients"`
	DeliveredCount  int    `json:"delivered_count"`
	ReadCount       int    `json:"read_count"`
}

// ReactionGroup is one emoji's aggregate on a message, for display.
type ReactionGroup struct {
	Emoji   string   `json:"emoji"`
	Count   int      `json:"count"`
	Reacted bool     `json:"reacted"`
	UserIDs []string `json:"user_ids"`
}
