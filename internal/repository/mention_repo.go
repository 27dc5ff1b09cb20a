package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/converse-im/converse/internal/domain"
	"github.com/converse-im/converse/pkg/log"
)

// GormMentionRepository implements MentionRepository using GORM.
type GormMentionRepository struct {
	db *gorm.DB
}

func NewGormMentionRepository(db *gorm.DB) *GormMentionRepository {
	return &GormMentionRepository{db: db}
}

// Create inserts the mention with an insert-if-absent clause; the
// unique index on (message_id, user_id) deduplicates re-processing and
// multiple tokens resolving to the same user.
func (r *GormMentionRepository) Create(ctx context.Context, mention *domain.Mention) error {
	model := domain.MentionToModel(mention)

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(model)
	if res.Error != nil {
		log.Ctx(ctx).Error().Err(res.Error).
			Str(log.FieldMessageID, mention.MessageID).
			Str(log.FieldUserID, mention.UserID).
			Msg("failed to create mention")
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateMention
	}

	mention.CreatedAt = model.CreatedAt
	return nil
}

func (r *GormMentionRepository) ListByMessage(ctx context.Context, messageID string) ([]domain.Mention, error) {
	var models []domain.MentionModel
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	mentions := make([]domain.Mention, len(models))
	for i := range models {
		mentions[i] = *models[i].ToDomain()
	}
	return mentions, nil
}
