package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/SamvelMkhitarian/messenger/internal/auth"
	"github.com/SamvelMkhitarian/messenger/internal/models"
	"github.com/SamvelMkhitarian/messenger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const opTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Resolver authenticates the credential presented when a socket opens.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*models.User, error)
}

// Authorizer checks that a user may join a chat.
type Authorizer interface {
	Authorize(ctx context.Context, chatID, userID uint) (*models.Chat, error)
}

type Options struct {
	Hub         *Hub
	Broadcaster service.Broadcaster
	Resolver    Resolver
	Chats       Authorizer
	Messages    *service.MessageService
	Receipts    *service.ReceiptService
	// MessageRate and MessageBurst bound inbound frames per connection.
	MessageRate  float64
	MessageBurst int
}

// Handler serves GET /ws/chat/:chat_id.
type Handler struct {
	hub         *Hub
	broadcaster service.Broadcaster
	resolver    Resolver
	chats       Authorizer
	messages    *service.MessageService
	receipts    *service.ReceiptService
	rate        rate.Limit
	burst       int
}

func NewHandler(o Options) *Handler {
	b := o.Broadcaster
	if b == nil {
		b = o.Hub
	}
	return &Handler{
		hub:         o.Hub,
		broadcaster: b,
		resolver:    o.Resolver,
		chats:       o.Chats,
		messages:    o.Messages,
		receipts:    o.Receipts,
		rate:        rate.Limit(o.MessageRate),
		burst:       o.MessageBurst,
	}
}

type inbound struct {
	Type      service.EventType `json:"type"`
	Text      string            `json:"text"`
	ClientID  string            `json:"client_id"`
	MessageID uint              `json:"message_id"`
}

// Serve authenticates before anything is registered. Failures still upgrade
// so the client receives a policy-violation close frame.
func (h *Handler) Serve(c *gin.Context) {
	ctx := c.Request.Context()
	user, chat, code, reason := h.admit(ctx, c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	if code != 0 {
		closeWith(conn, code, reason)
		return
	}

	var lim *rate.Limiter
	if h.rate > 0 {
		lim = rate.NewLimiter(h.rate, h.burst)
	}
	client := newClient(chat.ID, user, conn, lim)
	h.hub.Register(client)
	log.Info().Uint("chat_id", chat.ID).Uint("user_id", user.ID).Str("conn", client.id).Msg("ws connected")

	hctx, cancel := context.WithTimeout(ctx, opTimeout)
	history, err := h.messages.Recent(hctx, chat.ID)
	cancel()
	if err != nil {
		log.Error().Err(err).Uint("chat_id", chat.ID).Msg("load history")
		client.sendEvent(service.NewErrorEvent("could not load history"))
	} else {
		client.sendEvent(service.NewHistoryEvent(history))
	}

	go client.writePump()
	client.readPump(h)
	log.Info().Uint("chat_id", chat.ID).Uint("user_id", user.ID).Str("conn", client.id).Msg("ws disconnected")
}

// admit returns a non-zero close code when the connection must be refused.
func (h *Handler) admit(ctx context.Context, c *gin.Context) (*models.User, *models.Chat, int, string) {
	token := c.Query("token")
	if token == "" {
		token = auth.BearerToken(c.GetHeader("Authorization"))
	}
	user, err := h.resolver.Resolve(ctx, token)
	if errors.Is(err, auth.ErrUnauthenticated) {
		return nil, nil, websocket.ClosePolicyViolation, "unauthenticated"
	}
	if err != nil {
		log.Error().Err(err).Msg("resolve token")
		return nil, nil, websocket.CloseInternalServerErr, "internal error"
	}

	id, err := strconv.ParseUint(c.Param("chat_id"), 10, 64)
	if err != nil || id == 0 {
		return nil, nil, websocket.ClosePolicyViolation, "chat not found"
	}
	chat, err := h.chats.Authorize(ctx, uint(id), user.ID)
	switch {
	case errors.Is(err, service.ErrChatNotFound):
		return nil, nil, websocket.ClosePolicyViolation, "chat not found"
	case errors.Is(err, service.ErrNotMember):
		return nil, nil, websocket.ClosePolicyViolation, "not a member"
	case err != nil:
		log.Error().Err(err).Uint("chat_id", uint(id)).Msg("authorize")
		return nil, nil, websocket.CloseInternalServerErr, "internal error"
	}
	return user, chat, 0, ""
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = conn.Close()
}

// dispatch handles one inbound frame. Unknown types and malformed JSON are
// ignored; store failures are reported to this client only.
func (h *Handler) dispatch(c *Client, data []byte) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch in.Type {
	case service.EventNewMessage:
		h.submit(ctx, c, in)
	case service.EventMessageRead:
		h.markRead(ctx, c, in)
	}
}

func (h *Handler) submit(ctx context.Context, c *Client, in inbound) {
	msg, dup, err := h.messages.Submit(ctx, service.SubmitInput{
		ChatID:   c.chatID,
		Sender:   c.user,
		Text:     in.Text,
		ClientID: in.ClientID,
	})
	switch {
	case errors.Is(err, service.ErrEmptyMessage), errors.Is(err, service.ErrMessageTooLong), errors.Is(err, service.ErrClientIDTooLong):
		c.sendEvent(service.NewErrorEvent(err.Error()))
		return
	case err != nil:
		log.Error().Err(err).Uint("chat_id", c.chatID).Uint("user_id", c.userID()).Msg("submit message")
		c.sendEvent(service.NewErrorEvent("could not save message"))
		return
	case dup:
		return
	}
	h.broadcaster.Broadcast(c.chatID, service.NewMessageEvent(*msg))
}

func (h *Handler) markRead(ctx context.Context, c *Client, in inbound) {
	if in.MessageID == 0 {
		return
	}
	st, err := h.receipts.MarkRead(ctx, c.chatID, in.MessageID, c.userID())
	if errors.Is(err, service.ErrMessageNotFound) {
		log.Debug().Uint("chat_id", c.chatID).Uint("message_id", in.MessageID).Msg("read receipt for unknown message")
		return
	}
	if err != nil {
		log.Error().Err(err).Uint("chat_id", c.chatID).Uint("message_id", in.MessageID).Msg("mark read")
		c.sendEvent(service.NewErrorEvent("could not record read receipt"))
		return
	}
	if st.Broadcast {
		h.broadcaster.Broadcast(c.chatID, service.NewReadEvent(st))
	}
}
