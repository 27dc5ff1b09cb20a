package mention

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/converse-im/converse/internal/domain"
	"github.com/converse-im/converse/internal/repository"
	"github.com/converse-im/converse/pkg/log"
)

// Processor resolves mention tokens to users and records each mention
// exactly once per (message, user).
type Processor struct {
	users    repository.UserRepository
	mentions repository.MentionRepository
}

func NewProcessor(users repository.UserRepository, mentions repository.MentionRepository) *Processor {
	return &Processor{users: users, mentions: mentions}
}

// Process parses text, resolves each token by exact name, and creates
// one mention row per resolved user. Unresolved tokens are dropped
// silently; a duplicate row means the user was already mentioned on
// this message and is skipped. Returns the ids of newly mentioned
// users for fan-out.
func (p *Processor) Process(ctx context.Context, messageID, text string) ([]string, error) {
	var mentioned []string
	seen := make(map[string]struct{})

	for _, token := range Parse(text) {
		user, err := p.users.GetByName(ctx, token)
		if errors.Is(err, repository.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		// Two different tokens may resolve to the same user.
		if _, ok := seen[user.ID]; ok {
			continue
		}
		seen[user.ID] = struct{}{}

		err = p.mentions.Create(ctx, &domain.Mention{
			ID:        uuid.New().String(),
			MessageID: messageID,
			UserID:    user.ID,
		})
		if errors.Is(err, repository.ErrDuplicateMention) {
			log.Ctx(ctx).Debug().
				Str(log.FieldMessageID, messageID).
				Str(log.FieldUserID, user.ID).
				Msg("mention already recorded")
			continue
		}
		if err != nil {
			return nil, err
		}

		mentioned = append(mentioned, user.ID)
	}

	return mentioned, nil
}
