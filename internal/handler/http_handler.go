package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/converse-im/converse/internal/presence"
	"github.com/converse-im/converse/internal/reaction"
	"github.com/converse-im/converse/internal/receipt"
	"github.com/converse-im/converse/internal/repository"
	"github.com/converse-im/converse/pkg/log"
	"github.com/converse-im/converse/pkg/middleware"
	"github.com/converse-im/converse/pkg/response"
)

// HTTPHandler exposes the read side of the messaging core: presence
// lookups and per-message reaction/receipt aggregates.
type HTTPHandler struct {
	messages  repository.MessageRepository
	reactions *reaction.Toggler
	receipts  *receipt.Tracker
	presence  *presence.Tracker
	auth      *middleware.AuthMiddleware
}

func NewHTTPHandler(
	messages repository.MessageRepository,
	reactions *reaction.Toggler,
	receipts *receipt.Tracker,
	pres *presence.Tracker,
	auth *middleware.AuthMiddleware,
) *HTTPHandler {
	return &HTTPHandler{
		messages:  messages,
		reactions: reactions,
		receipts:  receipts,
		presence:  pres,
		auth:      auth,
	}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	api.Use(h.auth.RequireAuth())
	{
		api.GET("/presence/:user_id", h.GetPresence)
		api.GET("/messages/:message_id/reactions", h.GetReactions)
		api.GET("/messages/:message_id/receipts", h.GetReceiptStats)
		api.GET("/conversations/:conversation_id/messages", h.ListMessages)
	}
}

func (h *HTTPHandler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

func (h *HTTPHandler) GetPresence(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		response.BadRequest(c, "user_id is required")
		return
	}

	pres, err := h.presence.Get(c.Request.Context(), userID)
	if err != nil {
		log.Ctx(c.Request.Context()).Error().Err(err).Str(log.FieldUserID, userID).Msg("presence lookup failed")
		response.InternalError(c, "failed to query presence")
		return
	}
	response.Success(c, pres)
}

func (h *HTTPHandler) GetReactions(c *gin.Context) {
	messageID := c.Param("message_id")
	viewerID := c.GetString(middleware.UserIDKey)

	groups, err := h.reactions.Summary(c.Request.Context(), messageID, viewerID)
	if err != nil {
		log.Ctx(c.Request.Context()).Error().Err(err).Str(log.FieldMessageID, messageID).Msg("reaction summary failed")
		response.InternalError(c, "failed to aggregate reactions")
		return
	}
	response.Success(c, groups)
}

func (h *HTTPHandler) GetReceiptStats(c *gin.Context) {
	messageID := c.Param("message_id")

	stats, err := h.receipts.Stats(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			response.NotFound(c, "message not found")
			return
		}
		log.Ctx(c.Request.Context()).Error().Err(err).Str(log.FieldMessageID, messageID).Msg("receipt stats failed")
		response.InternalError(c, "failed to aggregate receipts")
		return
	}
	response.Success(c, stats)
}

func (h *HTTPHandler) ListMessages(c *gin.Context) {
	conversationID := c.Param("conversation_id")

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			response.BadRequest(c, "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	messages, err := h.messages.ListByConversation(c.Request.Context(), conversationID, limit)
	if err != nil {
		log.Ctx(c.Request.Context()).Error().Err(err).Str(log.FieldConversationID, conversationID).Msg("message list failed")
		response.InternalError(c, "failed to list messages")
		return
	}
	response.Success(c, messages)
}
