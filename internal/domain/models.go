package domain

import "time"

// UserModel is the GORM model for the users table.
type UserModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	Name      string    `gorm:"type:varchar(50);uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (UserModel) TableName() string { return "users" }

func (m *UserModel) ToDomain() *User {
	return &User{ID: m.ID, Name: m.Name, CreatedAt: m.CreatedAt}
}

func UserToModel(u *User) *UserModel {
	return &UserModel{ID: u.ID, Name: u.Name, CreatedAt: u.CreatedAt}
}

// MessageModel is the GORM model for the messages table.
type MessageModel struct {
	ID             string    `gorm:"type:varchar(36);primaryKey"`
	ConversationID string    `gorm:"type:varchar(36);index;not null"`
	UserID         string    `gorm:"type:varchar(36);index;not null"`
	Username       string    `gorm:"type:varchar(50)"`
	Text           string    `gorm:"type:text;not null"`
	ReplyToID      *string   `gorm:"type:varchar(36)"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index"`
}

func (MessageModel) TableName() string { return "messages" }

func (m *MessageModel) ToDomain() *Message {
	return &Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		Username:       m.Username,
		Text:           m.Text,
		ReplyToID:      m.ReplyToID,
		CreatedAt:      m.CreatedAt,
	}
}

func MessageToModel(msg *Message) *MessageModel {
	return &MessageModel{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		UserID:         msg.UserID,
		Username:       msg.Username,
		Text:           msg.Text,
		ReplyToID:      msg.ReplyToID,
		CreatedAt:      msg.CreatedAt,
	}
}

// ReceiptModel is the GORM model for the message_receipts table.
// The composite unique index is the upsert key.
type ReceiptModel struct {
	ID        string     `gorm:"type:varchar(36);primaryKey"`
	MessageID string     `gorm:"type:varchar(36);uniqueIndex:idx_receipt_message_user;not null"`
	UserID    string     `gorm:"type:varchar(36);uniqueIndex:idx_receipt_message_user;not null"`
	Status    string     `gorm:"type:varchar(16);not null"`
	SeenAt    *time.Time ``
	CreatedAt time.Time  `gorm:"autoCreateTime"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
}

func (ReceiptModel) TableName() string { return "message_receipts" }

func (m *ReceiptModel) ToDomain() *MessageReceipt {
	return &MessageReceipt{
		ID:        m.ID,
		MessageID: m.MessageID,
		UserID:    m.UserID,
		Status:    ReceiptStatus(m.Status),
		SeenAt:    m.SeenAt,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// ReactionModel is the GORM model for the reactions table. The
// composite unique index doubles as the toggle mechanism: a duplicate
// insert means the reaction already exists.
type ReactionModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	MessageID string    `gorm:"type:varchar(36);uniqueIndex:idx_reaction_message_user_emoji;not null"`
	UserID    string    `gorm:"type:varchar(36);uniqueIndex:idx_reaction_message_user_emoji;not null"`
	Emoji     string    `gorm:"type:varchar(32);uniqueIndex:idx_reaction_message_user_emoji;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (ReactionModel) TableName() string { return "reactions" }

func (m *ReactionModel) ToDomain() *Reaction {
	return &Reaction{
		ID:        m.ID,
		MessageID: m.MessageID,
		UserID:    m.UserID,
		Emoji:     m.Emoji,
		CreatedAt: m.CreatedAt,
	}
}

func ReactionToModel(r *Reaction) *ReactionModel {
	return &ReactionModel{
		ID:        r.ID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     r.Emoji,
		CreatedAt: r.CreatedAt,
	}
}

// MentionModel is the GORM model for the mentions table. The unique
// index is the deduplication authority for mention processing.
type MentionModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	MessageID string    `gorm:"type:varchar(36);uniqueIndex:idx_mention_message_user;not null"`
	UserID    string    `gorm:"type:varchar(36);uniqueIndex:idx_mention_message_user;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (MentionModel) TableName() string { return "mentions" }

func (m *MentionModel) ToDomain() *Mention {
	return &Mention{
		ID:        m.ID,
		MessageID: m.MessageID,
		UserID:    m.UserID,
		CreatedAt: m.CreatedAt,
	}
}

func MentionToModel(m *Mention) *MentionModel {
	return &MentionModel{
		ID:        m.ID,
		MessageID: m.MessageID,
		UserID:    m.UserID,
		CreatedAt: m.CreatedAt,
	}
}
