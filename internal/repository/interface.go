package repository

import (
	"context"
	"errors"
	"time"

	"github.com/converse-im/converse/internal/domain"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrMessageNotFound = errors.New("message not found")

	// Duplicate-create errors signal "already in desired state" and are
	// absorbed by callers rather than surfaced.
	ErrDuplicateReaction = errors.New("reaction already exists")
	ErrDuplicateMention  = errors.New("mention already exists")
)

// UserRepository looks up chat participants.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByName resolves a user by exact name; returns ErrUserNotFound
	// when no user matches.
	GetByName(ctx context.Context, name string) (*domain.User, error)
}

// MessageRepository persists immutable messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Message, error)
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
}

// ReceiptRepository maintains per-recipient delivery state. Upserts are
// monotonic: a row is created at the requested status when absent and
// advanced only when the requested status outranks the stored one.
type ReceiptRepository interface {
	Upsert(ctx context.Context, messageID, userID string, status domain.ReceiptStatus, at time.Time) (*domain.MessageReceipt, bool, error)
	// UpsertBatch applies Upsert to each message id inside one
	// transaction and returns only the receipts that changed.
	UpsertBatch(ctx context.Context, messageIDs []string, userID string, status domain.ReceiptStatus, at time.Time) ([]domain.MessageReceipt, error)
	Stats(ctx context.Context, messageID string) (*domain.ReceiptStats, error)
	ListByMessage(ctx context.Context, messageID string) ([]domain.MessageReceipt, error)
}

// ReactionRepository persists reaction rows; row existence is the
// toggle state.
type ReactionRepository interface {
	// Create inserts a reaction; returns ErrDuplicateReaction when the
	// (message, user, emoji) row already exists.
	Create(ctx context.Context, reaction *domain.Reaction) error
	// Delete removes a reaction row, reporting whether one existed.
	Delete(ctx context.Context, messageID, userID, emoji string) (bool, error)
	// ListByMessage returns reactions in original (first-reacted) order.
	ListByMessage(ctx context.Context, messageID string) ([]domain.Reaction, error)
}

// MentionRepository records mentions exactly once per (message, user).
type MentionRepository interface {
	// Create inserts a mention; returns ErrDuplicateMention when the
	// (message, user) row already exists.
	Create(ctx context.Context, mention *domain.Mention) error
	ListByMessage(ctx context.Context, messageID string) ([]domain.Mention, error)
}
