package receipt

import (
	"context"
	"fmt"
	"time"

	"github.com/converse-im/converse/internal/domain"
	"github.com/converse-im/converse/internal/repository"
	"github.com/converse-im/converse/pkg/log"
)

// Update is a receipt change together with the conversation it belongs
// to, for room fan-out.
type Update struct {
	Receipt        domain.MessageReceipt
	ConversationID string
}

// Tracker applies monotonic receipt transitions for a reader across a
// batch of messages.
type Tracker struct {
	messages repository.MessageRepository
	receipts repository.ReceiptRepository
}

func NewTracker(messages repository.MessageRepository, receipts repository.ReceiptRepository) *Tracker {
	return &Tracker{messages: messages, receipts: receipts}
}

// Mark upserts receipts for the reader toward the target status. Ids
// are de-duplicated, unknown messages are skipped, and no receipt is
// written for the reader's own messages. Rows already at or beyond the
// target status are left untouched; only receipts that actually changed
// are returned.
func (t *Tracker) Mark(ctx context.Context, readerID string, messageIDs []string, status domain.ReceiptStatus) ([]Update, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid receipt status %q", status)
	}

	ids := dedupe(messageIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	messages, err := t.messages.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	targets := make([]string, 0, len(ids))
	for _, id := range ids {
		msg, ok := messages[id]
		if !ok {
			log.Ctx(ctx).Debug().Str(log.FieldMessageID, id).Msg("receipt skipped for unknown message")
			continue
		}
		if msg.UserID == readerID {
			// No self-receipts.
			continue
		}
		targets = append(targets, id)
	}
	if len(targets) == 0 {
		return nil, nil
	}

	changed, err := t.receipts.UpsertBatch(ctx, targets, readerID, status, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	updates := make([]Update, 0, len(changed))
	for _, rec := range changed {
		updates = append(updates, Update{
			Receipt:        rec,
			ConversationID: messages[rec.MessageID].ConversationID,
		})
	}
	return updates, nil
}

// Stats returns the derived delivery counts for a message.
func (t *Tracker) Stats(ctx context.Context, messageID string) (*domain.ReceiptStats, error) {
	if _, err := t.messages.GetByID(ctx, messageID); err != nil {
		return nil, err
	}
	return t.receipts.Stats(ctx, messageID)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
