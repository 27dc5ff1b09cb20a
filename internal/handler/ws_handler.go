package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/converse-im/converse/internal/config"
	"github.com/converse-im/converse/internal/domain"
	"github.com/converse-im/converse/internal/hub"
	"github.com/converse-im/converse/internal/service"
	"github.com/converse-im/converse/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSHandler struct {
	hub     *hub.Hub
	service service.ChatService
	wsCfg   config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, svc service.ChatService, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		wsCfg:   wsCfg,
	}
}

func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.L().Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleMessage, h.handleClose)
}

func (h *WSHandler) handleClose(client *hub.Client) {
	h.service.HandleDisconnect(context.Background(), client)
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid message format"))
		return
	}

	ctx := context.Background()

	switch base.Type {
	case domain.EventAuth:
		var msg domain.AuthMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid auth message"))
			return
		}
		if err := h.service.HandleAuth(ctx, client, msg.Token); err != nil {
			log.L().Warn().Err(err).Str(log.FieldConnectionID, client.ID).Msg("auth failed")
		}

	case domain.EventHeartbeat:
		if err := h.service.HandleHeartbeat(ctx, client); err != nil {
			log.L().Warn().Err(err).Str(log.FieldConnectionID, client.ID).Msg("heartbeat failed")
		}

	case domain.EventJoin:
		var msg domain.JoinMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid join message"))
			return
		}
		if err := h.service.HandleJoin(ctx, client, msg.ConversationID); err != nil {
			log.L().Warn().Err(err).Str(log.FieldConnectionID, client.ID).Msg("join failed")
		}

	case domain.EventLeave:
		var msg domain.LeaveMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid leave message"))
			return
		}
		if err := h.service.HandleLeave(ctx, client, msg.ConversationID); err != nil {
			log.L().Warn().Err(err).Str(log.FieldConnectionID, client.ID).Msg("leave failed")
		}

	case domain.EventMessageSend:
		var msg domain.SendMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid message.send"))
			return
		}
		if err := h.service.HandleMessage(ctx, client, msg.ConversationID, msg.Text, msg.ReplyToID); err != nil {
			log.L().Warn().Err(err).Str(log.FieldConnectionID, client.ID).Msg("message send failed")
		}

	case domain.EventReactionToggle:
		var msg domain.ReactionToggleMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid reaction.toggle"))
			return
		}
		if err := h.service.HandleReaction(ctx, client, msg.MessageID, msg.Emoji); err != nil {
			log.L().Warn().Err(err).Str(log.FieldConnectionID, client.ID).Msg("reaction toggle failed")
		}

	case domain.EventReceiptDelivered:
		h.handleReceipts(ctx, client, message, domain.ReceiptDelivered)

	case domain.EventReceiptRead:
		h.handleReceipts(ctx, client, message, domain.ReceiptRead)

	default:
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Unknown message type"))
	}
}

func (h *WSHandler) handleReceipts(ctx context.Context, client *hub.Client, message []byte, status domain.ReceiptStatus) {
	var msg domain.ReceiptMarkMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid receipt message"))
		return
	}
	if err := h.service.HandleReceipts(ctx, client, msg.MessageIDs, string(status)); err != nil {
		log.L().Warn().Err(err).Str(log.FieldConnectionID, client.ID).Msg("receipt mark failed")
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/chat/ws", h.HandleWebSocket)
}
