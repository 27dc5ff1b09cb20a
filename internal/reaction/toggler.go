package reaction

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/converse-im/converse/internal/domain"
	"github.com/converse-im/converse/internal/repository"
	"github.com/converse-im/converse/pkg/log"
)

// Toggler flips a (user, message, emoji) reaction based on row
// existence and aggregates reactions for display.
type Toggler struct {
	messages  repository.MessageRepository
	reactions repository.ReactionRepository
}

func NewToggler(messages repository.MessageRepository, reactions repository.ReactionRepository) *Toggler {
	return &Toggler{messages: messages, reactions: reactions}
}

// Toggle removes the reaction if it exists, otherwise creates it, and
// reports the resulting action. The target message must exist;
// repository.ErrMessageNotFound propagates to the caller. A duplicate
// insert lost to a concurrent identical toggle leaves the row in the
// desired state, so it is reported as added rather than an error.
func (t *Toggler) Toggle(ctx context.Context, userID, messageID, emoji string) (domain.ToggleAction, *domain.Message, error) {
	msg, err := t.messages.GetByID(ctx, messageID)
	if err != nil {
		return "", nil, err
	}

	removed, err := t.reactions.Delete(ctx, messageID, userID, emoji)
	if err != nil {
		return "", nil, err
	}
	if removed {
		return domain.ToggleRemoved, msg, nil
	}

	err = t.reactions.Create(ctx, &domain.Reaction{
		ID:        uuid.New().String(),
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
	})
	if err != nil && !errors.Is(err, repository.ErrDuplicateReaction) {
		return "", nil, err
	}
	if errors.Is(err, repository.ErrDuplicateReaction) {
		log.Ctx(ctx).Debug().
			Str(log.FieldMessageID, messageID).
			Str(log.FieldEmoji, emoji).
			Msg("reaction already present, toggle treated as add")
	}

	return domain.ToggleAdded, msg, nil
}

// Summary groups the message's reactions by emoji, ordered by
// descending count with ties broken by first-reacted order, and flags
// whether the viewer is among the reactors of each group.
func (t *Toggler) Summary(ctx context.Context, messageID, viewerID string) ([]domain.ReactionGroup, error) {
	reactions, err := t.reactions.ListByMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	var order []string
	byEmoji := make(map[string][]domain.Reaction)
	for _, r := range reactions {
		if _, ok := byEmoji[r.Emoji]; !ok {
			order = append(order, r.Emoji)
		}
		byEmoji[r.Emoji] = append(byEmoji[r.Emoji], r)
	}

	groups := make([]domain.ReactionGroup, 0, len(order))
	for _, emoji := range order {
		rs := byEmoji[emoji]
		groups = append(groups, domain.ReactionGroup{
			Emoji: emoji,
			Count: len(rs),
			UserIDs: lo.Map(rs, func(r domain.Reaction, _ int) string {
				return r.UserID
			}),
			Reacted: lo.ContainsBy(rs, func(r domain.Reaction) bool {
				return r.UserID == viewerID
			}),
		})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Count > groups[j].Count
	})
	return groups, nil
}
