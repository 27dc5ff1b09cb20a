package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/converse-im/converse/internal/domain"
	"github.com/converse-im/converse/pkg/log"
)

// GormReactionRepository implements ReactionRepository using GORM.
type GormReactionRepository struct {
	db *gorm.DB
}

func NewGormReactionRepository(db *gorm.DB) *GormReactionRepository {
	return &GormReactionRepository{db: db}
}

// Create inserts the reaction with an insert-if-absent clause. The
// unique index on (message_id, user_id, emoji) is the authority: a
// conflicting insert affects zero rows and surfaces as
// ErrDuplicateReaction for the caller to absorb.
func (r *GormReactionRepository) Create(ctx context.Context, reaction *domain.Reaction) error {
	model := domain.ReactionToModel(reaction)

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}, {Name: "emoji"}},
		DoNothing: true,
	}).Create(model)
	if res.Error != nil {
		log.Ctx(ctx).Error().Err(res.Error).
			Str(log.FieldMessageID, reaction.MessageID).
			Str(log.FieldEmoji, reaction.Emoji).
			Msg("failed to create reaction")
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateReaction
	}

	reaction.CreatedAt = model.CreatedAt
	return nil
}

func (r *GormReactionRepository) Delete(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&domain.ReactionModel{})
	if res.Error != nil {
		log.Ctx(ctx).Error().Err(res.Error).
			Str(log.FieldMessageID, messageID).
			Str(log.FieldEmoji, emoji).
			Msg("failed to delete reaction")
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormReactionRepository) ListByMessage(ctx context.Context, messageID string) ([]domain.Reaction, error) {
	var models []domain.ReactionModel
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	reactions := make([]domain.Reaction, len(models))
	for i := range models {
		reactions[i] = *models[i].ToDomain()
	}
	return reactions, nil
}
