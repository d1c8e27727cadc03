package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/SamvelMkhitarian/messenger/internal/auth"
	"github.com/SamvelMkhitarian/messenger/internal/models"
	"github.com/SamvelMkhitarian/messenger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	userSvc *service.UserService
	chatSvc *service.ChatService
	msgSvc  *service.MessageService
}

func NewHandler(userSvc *service.UserService, chatSvc *service.ChatService, msgSvc *service.MessageService) *Handler {
	return &Handler{userSvc: userSvc, chatSvc: chatSvc, msgSvc: msgSvc}
}

// writeError maps service errors to HTTP status codes; anything unknown is
// logged and reported as 500.
func writeError(c *gin.Context, err error, op string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrChatNotFound),
		errors.Is(err, service.ErrGroupNotFound),
		errors.Is(err, service.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrNotMember):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrEmailTaken):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidRefreshToken):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrNameRequired),
		errors.Is(err, service.ErrInvalidChatType),
		errors.Is(err, service.ErrPeerRequired):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg(op)
		c.JSON(status, gin.H{"error": op + " failed"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func idParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(v), true
}

// Register 处理用户注册请求。
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(req.Name) > 64 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name too long"})
		return
	}
	user, err := h.userSvc.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(c, err, "register")
		return
	}
	c.JSON(http.StatusCreated, user)
}

// Login 处理用户登录请求。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err, "login")
		return
	}
	c.JSON(http.StatusOK, result)
}

// RefreshToken 处理 token 刷新请求。
func (h *Handler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.RefreshTokens(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err, "refresh token")
		return
	}
	c.JSON(http.StatusOK, result)
}

// CreateChat 处理创建私聊或群聊的请求。
func (h *Handler) CreateChat(c *gin.Context) {
	var req struct {
		Name   string          `json:"name"`
		Type   models.ChatType `json:"type"`
		PeerID uint            `json:"peer_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(req.Name) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat name too long"})
		return
	}
	chat, err := h.chatSvc.Create(c.Request.Context(), auth.GetUserID(c), service.CreateChatInput{
		Name:   req.Name,
		Type:   req.Type,
		PeerID: req.PeerID,
	})
	if err != nil {
		writeError(c, err, "create chat")
		return
	}
	c.JSON(http.StatusCreated, chat)
}

// ListChats 返回当前用户所在的会话列表。
func (h *Handler) ListChats(c *gin.Context) {
	chats, err := h.chatSvc.ListForUser(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		writeError(c, err, "list chats")
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// JoinGroup 加入群组，重复加入不会报错。
func (h *Handler) JoinGroup(c *gin.Context) {
	groupID, ok := idParam(c, "id")
	if !ok {
		return
	}
	res, err := h.chatSvc.JoinGroup(c.Request.Context(), groupID, auth.GetUserID(c))
	if err != nil {
		writeError(c, err, "join group")
		return
	}
	detail := "joined"
	if res.AlreadyMember {
		detail = "already a member"
	}
	c.JSON(http.StatusOK, gin.H{
		"group_id":       res.GroupID,
		"chat_id":        res.ChatID,
		"already_member": res.AlreadyMember,
		"detail":         detail,
	})
}

// ListMessages 分页返回会话历史消息，按时间正序。
func (h *Handler) ListMessages(c *gin.Context) {
	chatID, ok := idParam(c, "id")
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}
	msgs, err := h.msgSvc.History(c.Request.Context(), chatID, auth.GetUserID(c), limit, offset)
	if err != nil {
		writeError(c, err, "list messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
