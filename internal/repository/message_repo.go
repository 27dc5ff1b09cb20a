package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/converse-im/converse/internal/domain"
	"github.com/converse-im/converse/pkg/log"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	model := domain.MessageToModel(msg)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to create message")
		return err
	}
	msg.CreatedAt = model.CreatedAt
	log.Ctx(ctx).Debug().Str(log.FieldMessageID, msg.ID).Str(log.FieldConversationID, msg.ConversationID).Msg("message created")
	return nil
}

func (r *GormMessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var model domain.MessageModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		log.Ctx(ctx).Error().Err(result.Error).Str(log.FieldMessageID, id).Msg("failed to get message by id")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

func (r *GormMessageRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Message, error) {
	if len(ids) == 0 {
		return map[string]*domain.Message{}, nil
	}

	var models []domain.MessageModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		log.Ctx(ctx).Error().Err(err).Int("count", len(ids)).Msg("failed to get messages by ids")
		return nil, err
	}

	messages := make(map[string]*domain.Message, len(models))
	for i := range models {
		messages[models[i].ID] = models[i].ToDomain()
	}
	return messages, nil
}

func (r *GormMessageRepository) ListByConversation(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if limit < 1 {
		limit = 50
	}

	var models []domain.MessageModel
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldConversationID, conversationID).Msg("failed to list messages")
		return nil, err
	}

	messages := make([]domain.Message, len(models))
	for i := range models {
		messages[i] = *models[i].ToDomain()
	}
	return messages, nil
}
