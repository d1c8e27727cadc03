package service

import (
	"errors"

	"github.com/SamvelMkhitarian/messenger/internal/auth"
)

// 业务层通用错误，handler 可根据错误类型映射到合适的 HTTP 状态码。
var (
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidEmail        = errors.New("invalid email")
	ErrNameRequired        = errors.New("name required")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrWeakPassword        = auth.ErrWeakPassword

	ErrChatNotFound    = errors.New("chat not found")
	ErrGroupNotFound   = errors.New("group not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrNotMember       = errors.New("not a member of this chat")
	ErrInvalidChatType = errors.New("chat type must be private or group")
	ErrPeerRequired    = errors.New("private chat needs another user as peer")

	ErrMessageNotFound = errors.New("message not found")
	ErrEmptyMessage    = errors.New("message text is empty")
	ErrMessageTooLong  = errors.New("message text is too long")
	ErrClientIDTooLong = errors.New("client_id is too long")
)
