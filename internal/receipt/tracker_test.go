package receipt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/converse-im/converse/internal/domain"
	"github.com/converse-im/converse/internal/repository"
)

type fakeMessageRepo struct {
	messages map[string]*domain.Message
}

func (f *fakeMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	f.messages[msg.ID] = msg
	return nil
}

func (f *fakeMessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	if m, ok := f.messages[id]; ok {
		return m, nil
	}
	return nil, repository.ErrMessageNotFound
}

func (f *fakeMessageRepo) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Message, error) {
	out := make(map[string]*domain.Message)
	for _, id := range ids {
		if m, ok := f.messages[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) ListByConversation(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	return nil, nil
}

type receiptKey struct {
	messageID, userID string
}

type fakeReceiptRepo struct {
	rows map[receiptKey]*domain.MessageReceipt
}

func newFakeReceiptRepo() *fakeReceiptRepo {
	return &fakeReceiptRepo{rows: make(map[receiptKey]*domain.MessageReceipt)}
}

func (f *fakeReceiptRepo) Upsert(ctx context.Context, messageID, userID string, status domain.ReceiptStatus, at time.Time) (*domain.MessageReceipt, bool, error) {
	key := receiptKey{messageID, userID}
	row, ok := f.rows[key]
	if !ok {
		row = &domain.MessageReceipt{MessageID: messageID, UserID: userID, Status: status}
		if status == domain.ReceiptRead {
			row.SeenAt = &at
		}
		f.rows[key] = row
		return row, true, nil
	}
	if status.Rank() <= row.Status.Rank() {
		return row, false, nil
	}
	row.Status = status
	if status == domain.ReceiptRead {
		row.SeenAt = &at
	}
	return row, true, nil
}

func (f *fakeReceiptRepo) UpsertBatch(ctx context.Context, messageIDs []string, userID string, status domain.ReceiptStatus, at time.Time) ([]domain.MessageReceipt, error) {
	var changed []domain.MessageReceipt
	for _, id := range messageIDs {
		row, didChange, err := f.Upsert(ctx, id, userID, status, at)
		if err != nil {
			return nil, err
		}
		if didChange {
			changed = append(changed, *row)
		}
	}
	return changed, nil
}

func (f *fakeReceiptRepo) Stats(ctx context.Context, messageID string) (*domain.ReceiptStats, error) {
	stats := &domain.ReceiptStats{MessageID: messageID}
	for key, row := range f.rows {
		if key.messageID != messageID {
			continue
		}
		stats.TotalRecipients++
		if row.Status.Rank() >= domain.ReceiptDelivered.Rank() {
			stats.DeliveredCount++
		}
		if row.Status == domain.ReceiptRead {
			stats.ReadCount++
		}
	}
	return stats, nil
}

func (f *fakeReceiptRepo) ListByMessage(ctx context.Context, messageID string) ([]domain.MessageReceipt, error) {
	var out []domain.MessageReceipt
	for key, row := range f.rows {
		if key.messageID == messageID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func newTestTracker() (*Tracker, *fakeReceiptRepo) {
	messages := &fakeMessageRepo{messages: map[string]*domain.Message{
		"m1": {ID: "m1", ConversationID: "c1", UserID: "author"},
		"m2": {ID: "m2", ConversationID: "c1", UserID: "author"},
		"m3": {ID: "m3", ConversationID: "c2", UserID: "reader"},
	}}
	receipts := newFakeReceiptRepo()
	return NewTracker(messages, receipts), receipts
}

func TestTrackerMark(t *testing.T) {
	ctx := context.Background()

	t.Run("marks and reports conversation per row", func(t *testing.T) {
		req := require.New(t)
		tracker, _ := newTestTracker()

		updates, err := tracker.Mark(ctx, "reader", []string{"m1", "m2"}, domain.ReceiptDelivered)
		req.NoError(err)
		req.Len(updates, 2)
		for _, u := range updates {
			req.Equal("c1", u.ConversationID)
			req.Equal(domain.ReceiptDelivered, u.Receipt.Status)
			req.Nil(u.Receipt.SeenAt)
		}
	})

	t.Run("skips own messages", func(t *testing.T) {
		req := require.New(t)
		tracker, receipts := newTestTracker()

		updates, err := tracker.Mark(ctx, "reader", []string{"m3"}, domain.ReceiptRead)
		req.NoError(err)
		req.Empty(updates)
		req.Empty(receipts.rows)
	})

	t.Run("duplicate and unknown ids are dropped", func(t *testing.T) {
		req := require.New(t)
		tracker, _ := newTestTracker()

		updates, err := tracker.Mark(ctx, "reader", []string{"m1", "m1", "ghost"}, domain.ReceiptRead)
		req.NoError(err)
		req.Len(updates, 1)
		req.Equal("m1", updates[0].Receipt.MessageID)
	})

	t.Run("read sets seen at, repeat is silent", func(t *testing.T) {
		req := require.New(t)
		tracker, _ := newTestTracker()

		updates, err := tracker.Mark(ctx, "reader", []string{"m1"}, domain.ReceiptRead)
		req.NoError(err)
		req.Len(updates, 1)
		req.NotNil(updates[0].Receipt.SeenAt)

		updates, err = tracker.Mark(ctx, "reader", []string{"m1"}, domain.ReceiptRead)
		req.NoError(err)
		req.Empty(updates)
	})

	t.Run("read never regresses to delivered", func(t *testing.T) {
		req := require.New(t)
		tracker, receipts := newTestTracker()

		_, err := tracker.Mark(ctx, "reader", []string{"m1"}, domain.ReceiptRead)
		req.NoError(err)

		updates, err := tracker.Mark(ctx, "reader", []string{"m1"}, domain.ReceiptDelivered)
		req.NoError(err)
		req.Empty(updates)
		req.Equal(domain.ReceiptRead, receipts.rows[receiptKey{"m1", "reader"}].Status)
	})

	t.Run("invalid status rejected", func(t *testing.T) {
		req := require.New(t)
		tracker, _ := newTestTracker()

		_, err := tracker.Mark(ctx, "reader", []string{"m1"}, domain.ReceiptStatus("SEEN"))
		req.Error(err)
	})
}

func TestTrackerStats(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	tracker, _ := newTestTracker()

	_, err := tracker.Mark(ctx, "r1", []string{"m1"}, domain.ReceiptRead)
	req.NoError(err)
	_, err = tracker.Mark(ctx, "r2", []string{"m1"}, domain.ReceiptRead)
	req.NoError(err)
	_, err = tracker.Mark(ctx, "r3", []string{"m1"}, domain.ReceiptDelivered)
	req.NoError(err)

	stats, err := tracker.Stats(ctx, "m1")
	req.NoError(err)
	req.Equal(3, stats.TotalRecipients)
	req.Equal(3, stats.DeliveredCount)
	req.Equal(2, stats.ReadCount)

	_, err = tracker.Stats(ctx, "ghost")
	req.ErrorIs(err, repository.ErrMessageNotFound)
}
