package domain

import "time"

// WebSocket event types from client.
const (
	EventAuth             = "auth"
	EventHeartbeat        = "heartbeat"
	EventJoin             = "conversation.join"
	EventLeave            = "conversation.leave"
	EventMessageSend      = "message.send"
	EventReactionToggle   = "reaction.toggle"
	EventReceiptDelivered = "receipt.delivered"
	EventReceiptRead      = "receipt.read"
)

// WebSocket event types to client.
const (
	EventAuthResult      = "auth.result"
	EventJoined          = "conversation.joined"
	EventMessageNew      = "message.new"
	EventMentionNew      = "mention.new"
	EventReactionChanged = "reaction.changed"
	EventReceiptUpdated  = "receipt.updated"
	EventPresenceChanged = "presence.changed"
	EventError           = "error"
)

// Error codes
const (
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeNotInRoom     = "NOT_IN_ROOM"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// BaseMessage is the base structure for all WebSocket events.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server events

type AuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type HeartbeatMessage struct {
	Type string `json:"type"`
}

type JoinMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
}

type LeaveMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
}

type SendMessage struct {
	Type           string  `json:"type"`
	ConversationID string  `json:"conversation_id"`
	Text           string  `json:"text"`
	ReplyToID      *string `json:"reply_to_id,omitempty"`
}

type ReactionToggleMessage struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type ReceiptMarkMessage struct {
	Type       string   `json:"type"`
	MessageIDs []string `json:"message_ids"`
}

// Server -> Client events

type AuthResultMessage struct {
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Message  string `json:"message,omitempty"`
}

type JoinAckMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	Success        bool   `json:"success"`
}

type MessageNewOut struct {
	Type    string   `json:"type"`
	Message *Message `json:"message"`
}

// Notification is the payload fanned out to a mentioned user's
// personal room.
type Notification struct {
	NotifType      string `json:"type"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

type MentionNewOut struct {
	Type         string       `json:"type"`
	Message      *Message     `json:"message"`
	Notification Notification `json:"notification"`
}

type ReactionChangedOut struct {
	Type      string       `json:"type"`
	MessageID string       `json:"message_id"`
	Emoji     string       `json:"emoji"`
	Action    ToggleAction `json:"action"`
	UserID    string       `json:"user_id"`
}

type ReceiptUpdatedOut struct {
	Type      string        `json:"type"`
	MessageID string        `json:"message_id"`
	UserID    string        `json:"user_id"`
	Status    ReceiptStatus `json:"status"`
	SeenAt    *time.Time    `json:"seen_at,omitempty"`
}

type PresenceChangedOut struct {
	Type       string         `json:"type"`
	UserID     string         `json:"user_id"`
	Status     PresenceStatus `json:"status"`
	LastSeenAt time.Time      `json:"last_seen_at"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    EventError,
		Code:    code,
		Message: message,
	}
}
