package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/converse-im/converse/internal/domain"
	"github.com/converse-im/converse/pkg/log"
)

// GormReceiptRepository implements ReceiptRepository using GORM.
type GormReceiptRepository struct {
	db *gorm.DB
}

func NewGormReceiptRepository(db *gorm.DB) *GormReceiptRepository {
	return &GormReceiptRepository{db: db}
}

func (r *GormReceiptRepository) Upsert(ctx context.Context, messageID, userID string, status domain.ReceiptStatus, at time.Time) (*domain.MessageReceipt, bool, error) {
	var (
		receipt *domain.MessageReceipt
		changed bool
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		receipt, changed, err = upsertReceipt(tx, messageID, userID, status, at)
		return err
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).
			Str(log.FieldMessageID, messageID).
			Str(log.FieldUserID, userID).
			Str(log.FieldReceiptStatus, string(status)).
			Msg("failed to upsert receipt")
		return nil, false, err
	}
	return receipt, changed, nil
}

func (r *GormReceiptRepository) UpsertBatch(ctx context.Context, messageIDs []string, userID string, status domain.ReceiptStatus, at time.Time) ([]domain.MessageReceipt, error) {
	var updated []domain.MessageReceipt

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, messageID := range messageIDs {
			receipt, changed, err := upsertReceipt(tx, messageID, userID, status, at)
			if err != nil {
				return err
			}
			if changed {
				updated = append(updated, *receipt)
			}
		}
		return nil
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).
			Str(log.FieldUserID, userID).
			Str(log.FieldReceiptStatus, string(status)).
			Int("batch_size", len(messageIDs)).
			Msg("failed to upsert receipt batch")
		return nil, err
	}
	return updated, nil
}

// upsertReceipt creates a receipt at the requested status when absent
// and otherwise advances it only when the requested status outranks the
// stored one. seen_at is set only on the transition into READ. The
// status guard in the UPDATE keeps concurrent writers monotonic without
// explicit locks.
func upsertReceipt(tx *gorm.DB, messageID, userID string, status domain.ReceiptStatus, at time.Time) (*domain.MessageReceipt, bool, error) {
	model := domain.ReceiptModel{
		ID:        uuid.New().String(),
		MessageID: messageID,
		UserID:    userID,
		Status:    string(status),
	}
	if status == domain.ReceiptRead {
		model.SeenAt = &at
	}

	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&model)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return model.ToDomain(), true, nil
	}

	// Row exists; apply the transition only if it advances status.
	changed := false
	if below := status.Below(); len(below) > 0 {
		updates := map[string]interface{}{"status": string(status)}
		if status == domain.ReceiptRead {
			updates["seen_at"] = at
		}

		res = tx.Model(&domain.ReceiptModel{}).
			Where("message_id = ? AND user_id = ?", messageID, userID).
			Where("status IN ?", below).
			Updates(updates)
		if res.Error != nil {
			return nil, false, res.Error
		}
		changed = res.RowsAffected > 0
	}

	var current domain.ReceiptModel
	if err := tx.Where("message_id = ? AND user_id = ?", messageID, userID).First(&current).Error; err != nil {
		return nil, false, err
	}
	return current.ToDomain(), changed, nil
}

func (r *GormReceiptRepository) Stats(ctx context.Context, messageID string) (*domain.ReceiptStats, error) {
	var total, delivered, read int64

	db := r.db.WithContext(ctx)
	if err := db.Model(&domain.ReceiptModel{}).
		Where("message_id = ?", messageID).
		Count(&total).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&domain.ReceiptModel{}).
		Where("message_id = ? AND status IN ?", messageID, []string{string(domain.ReceiptDelivered), string(domain.ReceiptRead)}).
		Count(&delivered).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&domain.ReceiptModel{}).
		Where("message_id = ? AND status = ?", messageID, string(domain.ReceiptRead)).
		Count(&read).Error; err != nil {
		return nil, err
	}

	return &domain.ReceiptStats{
		MessageID:       messageID,
		TotalRecipients: int(total),
		DeliveredCount:  int(delivered),
		ReadCount:       int(read),
	}, nil
}

func (r *GormReceiptRepository) ListByMessage(ctx context.Context, messageID string) ([]domain.MessageReceipt, error) {
	var models []domain.ReceiptModel
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	receipts := make([]domain.MessageReceipt, len(models))
	for i := range models {
		receipts[i] = *models[i].ToDomain()
	}
	return receipts, nil
}
