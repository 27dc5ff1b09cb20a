package events

import (
	"context"
	"encoding/json"
	"time"
)

// Envelope is the record written to the mirror topic for each room
// event. Downstream consumers (history persisters, cross-node
// dispatchers) key on the conversation id.
type Envelope struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id"`
	Payload        json.RawMessage `json:"payload"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Mirror copies room-bound events to an external stream. Publishing is
// best-effort: the in-process hub remains the delivery authority and a
// mirror failure never fails the originating operation.
type Mirror interface {
	Publish(ctx context.Context, eventType, conversationID string, payload interface{}) error
	Close() error
}

// NoopMirror is used when the event mirror is disabled.
type NoopMirror struct{}

func NewNoop() *NoopMirror { return &NoopMirror{} }

func (NoopMirror) Publish(ctx context.Context, eventType, conversationID string, payload interface{}) error {
	return nil
}

func (NoopMirror) Close() error { return nil }
