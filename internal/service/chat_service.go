package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/converse-im/converse/internal/audit"
	"github.com/converse-im/converse/internal/domain"
	"github.com/converse-im/converse/internal/events"
	"github.com/converse-im/converse/internal/hub"
	"github.com/converse-im/converse/internal/mention"
	"github.com/converse-im/converse/internal/presence"
	"github.com/converse-im/converse/internal/reaction"
	"github.com/converse-im/converse/internal/receipt"
	"github.com/converse-im/converse/internal/repository"
	"github.com/converse-im/converse/pkg/jwt"
	"github.com/converse-im/converse/pkg/log"
)

type chatService struct {
	hub       *hub.Hub
	verifier  jwt.Verifier
	messages  repository.MessageRepository
	mentions  *mention.Processor
	reactions *reaction.Toggler
	receipts  *receipt.Tracker
	presence  *presence.Tracker
	mirror    events.Mirror
}

func NewChatService(
	h *hub.Hub,
	verifier jwt.Verifier,
	messages repository.MessageRepository,
	mentions *mention.Processor,
	reactions *reaction.Toggler,
	receipts *receipt.Tracker,
	pres *presence.Tracker,
	mirror events.Mirror,
) ChatService {
	return &chatService{
		hub:       h,
		verifier:  verifier,
		messages:  messages,
		mentions:  mentions,
		reactions: reactions,
		receipts:  receipts,
		presence:  pres,
		mirror:    mirror,
	}
}

func (s *chatService) HandleAuth(ctx context.Context, c *hub.Client, token string) error {
	identity, err := s.verifier.Verify(ctx, token)
	if err != nil {
		audit.Log(ctx, audit.ActionAuthFailed, "", "authentication rejected")
		c.SendMessage(&domain.AuthResultMessage{
			Type:    domain.EventAuthResult,
			Success: false,
			Message: "Invalid credentials",
		})
		return fmt.Errorf("token verification failed: %w", err)
	}

	c.Session.Authenticate(identity.UserID, identity.Username)

	// The personal room carries mention notifications across every
	// connection the user holds.
	s.hub.JoinRoom(c, hub.UserRoom(identity.UserID))

	if _, err := s.presence.Connected(ctx, identity.UserID); err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldUserID, identity.UserID).Msg("failed to mark presence online")
	}

	audit.Log(ctx, audit.ActionAuth, identity.UserID, "connection authenticated")

	return c.SendMessage(&domain.AuthResultMessage{
		Type:     domain.EventAuthResult,
		Success:  true,
		UserID:   identity.UserID,
		Username: identity.Username,
	})
}

func (s *chatService) HandleHeartbeat(ctx context.Context, c *hub.Client) error {
	if !c.Session.IsAuthenticated() {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeUnauthorized, "Not authenticated"))
	}
	return s.presence.Heartbeat(ctx, c.Session.GetUserID())
}

func (s *chatService) HandleJoin(ctx context.Context, c *hub.Client, conversationID string) error {
	if !c.Session.IsAuthenticated() {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeUnauthorized, "Not authenticated"))
	}
	if conversationID == "" {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "conversation_id is required"))
	}

	// Idempotent: re-joining holds a single membership and still acks.
	s.hub.JoinRoom(c, conversationID)
	c.Session.JoinRoom(conversationID)

	audit.LogWithTarget(ctx, audit.ActionJoin, c.Session.GetUserID(), conversationID, "joined conversation")

	return c.SendMessage(&domain.JoinAckMessage{
		Type:           domain.EventJoined,
		ConversationID: conversationID,
		Success:        true,
	})
}

func (s *chatService) HandleLeave(ctx context.Context, c *hub.Client, conversationID string) error {
	if !c.Session.IsAuthenticated() {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeUnauthorized, "Not authenticated"))
	}

	// Leaving succeeds whether or not a membership existed.
	s.hub.LeaveRoom(c, conversationID)
	c.Session.LeaveRoom(conversationID)

	audit.LogWithTarget(ctx, audit.ActionLeave, c.Session.GetUserID(), conversationID, "left conversation")
	return nil
}

func (s *chatService) HandleMessage(ctx context.Context, c *hub.Client, conversationID, text string, replyToID *string) error {
	if !c.Session.IsAuthenticated() {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeUnauthorized, "Not authenticated"))
	}
	if !c.Session.InRoom(conversationID) {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotInRoom, "Not in conversation"))
	}
	if text == "" {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "text is required"))
	}

	msg := &domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		UserID:         c.Session.GetUserID(),
		Username:       c.Session.GetUsername(),
		Text:           text,
		ReplyToID:      replyToID,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldConversationID, conversationID).Msg("failed to persist message")
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeInternalError, "Failed to send message"))
	}

	audit.LogWithTarget(ctx, audit.ActionSendMessage, msg.UserID, msg.ID, "message sent")

	out := &domain.MessageNewOut{Type: domain.EventMessageNew, Message: msg}
	if err := s.hub.BroadcastToRoom(conversationID, out, ""); err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to broadcast message")
	}

	if err := s.mirror.Publish(ctx, domain.EventMessageNew, conversationID, out); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to mirror message event")
	}

	// Mention processing never fails the send; the message is already
	// persisted and broadcast by the time notifications fan out.
	mentioned, err := s.mentions.Process(ctx, msg.ID, msg.Text)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("mention processing failed")
		return nil
	}
	for _, userID := range mentioned {
		s.notifyMention(ctx, userID, msg)
	}

	return nil
}

func (s *chatService) notifyMention(ctx context.Context, userID string, msg *domain.Message) {
	out := &domain.MentionNewOut{
		Type:    domain.EventMentionNew,
		Message: msg,
		Notification: domain.Notification{
			NotifType:      "mention",
			Title:          fmt.Sprintf("%s mentioned you", msg.Username),
			Body:           msg.Text,
			ConversationID: msg.ConversationID,
			MessageID:      msg.ID,
		},
	}
	if err := s.hub.BroadcastToUser(userID, out); err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Str(log.FieldUserID, userID).
			Str(log.FieldMessageID, msg.ID).
			Msg("failed to deliver mention notification")
	}
}

func (s *chatService) HandleReaction(ctx context.Context, c *hub.Client, messageID, emoji string) error {
	if !c.Session.IsAuthenticated() {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeUnauthorized, "Not authenticated"))
	}
	if messageID == "" || emoji == "" {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "message_id and emoji are required"))
	}

	userID := c.Session.GetUserID()
	action, msg, err := s.reactions.Toggle(ctx, userID, messageID, emoji)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotFound, "Message not found"))
		}
		log.Ctx(ctx).Error().Err(err).Str(log.FieldMessageID, messageID).Msg("reaction toggle failed")
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeInternalError, "Failed to toggle reaction"))
	}

	audit.LogWithTarget(ctx, audit.ActionReaction, userID, messageID, "reaction toggled")

	out := &domain.ReactionChangedOut{
		Type:      domain.EventReactionChanged,
		MessageID: messageID,
		Emoji:     emoji,
		Action:    action,
		UserID:    userID,
	}
	if err := s.hub.BroadcastToRoom(msg.ConversationID, out, ""); err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldMessageID, messageID).Msg("failed to broadcast reaction change")
	}
	if err := s.mirror.Publish(ctx, domain.EventReactionChanged, msg.ConversationID, out); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str(log.FieldMessageID, messageID).Msg("failed to mirror reaction event")
	}
	return nil
}

func (s *chatService) HandleReceipts(ctx context.Context, c *hub.Client, messageIDs []string, status string) error {
	if !c.Session.IsAuthenticated() {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeUnauthorized, "Not authenticated"))
	}
	if len(messageIDs) == 0 {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "message_ids is required"))
	}

	target := domain.ReceiptStatus(status)
	if !target.Valid() || target == domain.ReceiptSent {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid receipt status"))
	}

	readerID := c.Session.GetUserID()
	updates, err := s.receipts.Mark(ctx, readerID, messageIDs, target)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldUserID, readerID).Msg("receipt batch failed")
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeInternalError, "Failed to update receipts"))
	}

	audit.Log(ctx, audit.ActionReceipts, readerID, "receipts marked")

	// Only rows that actually advanced are announced.
	for _, u := range updates {
		out := &domain.ReceiptUpdatedOut{
			Type:      domain.EventReceiptUpdated,
			MessageID: u.Receipt.MessageID,
			UserID:    u.Receipt.UserID,
			Status:    u.Receipt.Status,
			SeenAt:    u.Receipt.SeenAt,
		}
		if err := s.hub.BroadcastToRoom(u.ConversationID, out, ""); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str(log.FieldMessageID, u.Receipt.MessageID).Msg("failed to broadcast receipt update")
		}
	}
	return nil
}

func (s *chatService) HandleDisconnect(ctx context.Context, c *hub.Client) {
	if !c.Session.IsAuthenticated() {
		return
	}

	userID := c.Session.GetUserID()
	pres, err := s.presence.Disconnected(ctx, userID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to mark presence offline")
		return
	}

	out := &domain.PresenceChangedOut{
		Type:       domain.EventPresenceChanged,
		UserID:     userID,
		Status:     pres.Status,
		LastSeenAt: pres.LastSeenAt,
	}
	for _, room := range c.Session.Rooms() {
		if err := s.hub.BroadcastToRoom(room, out, c.ID); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str(log.FieldConversationID, room).Msg("failed to broadcast presence change")
		}
	}

	audit.Log(ctx, audit.ActionDisconnect, userID, "connection closed")
}
