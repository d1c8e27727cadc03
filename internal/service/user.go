package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/SamvelMkhitarian/messenger/internal/auth"
	"github.com/SamvelMkhitarian/messenger/internal/config"
	"github.com/SamvelMkhitarian/messenger/internal/models"
	"github.com/SamvelMkhitarian/messenger/internal/store"
)

// UserService 封装用户相关的业务逻辑。
type UserService struct {
	store *store.Store
	cfg   config.Config
}

func NewUserService(st *store.Store, cfg config.Config) *UserService {
	return &UserService{store: st, cfg: cfg}
}

// UserDTO 是对外输出的用户数据。
type UserDTO struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func userDTO(u *models.User) UserDTO {
	return UserDTO{ID: u.ID, Name: u.Name, Email: u.Email}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// Register 注册新用户。
func (s *UserService) Register(ctx context.Context, name, email, password string) (*UserDTO, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := auth.CheckPassword(password); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := models.User{Name: name, Email: email, PasswordHash: hash}
	if err := s.store.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	dto := userDTO(&user)
	return &dto, nil
}

// LoginResult 登录成功后返回的数据。
type LoginResult struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	TokenType    string  `json:"token_type"`
	User         UserDTO `json:"user"`
}

// Login 校验邮箱密码并签发 token 对。
func (s *UserService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	at, rt, err := s.issue(ctx, s.store, user.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: at, RefreshToken: rt, TokenType: "bearer", User: userDTO(user)}, nil
}

// RefreshResult 刷新 token 后返回的新 token 对。
type RefreshResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// RefreshTokens 验证旧 refresh token 并签发新 token 对（旋转刷新）。
func (s *UserService) RefreshTokens(ctx context.Context, oldRT string) (*RefreshResult, error) {
	result := RefreshResult{TokenType: "bearer"}
	err := s.store.Tx(ctx, func(tx *store.Store) error {
		rec, err := tx.ValidRefreshToken(ctx, oldRT)
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidRefreshToken
		}
		if err != nil {
			return err
		}
		if err := tx.RevokeRefreshToken(ctx, oldRT); err != nil {
			return err
		}
		result.AccessToken, result.RefreshToken, err = s.issue(ctx, tx, rec.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *UserService) issue(ctx context.Context, st *store.Store, userID uint) (access, refresh string, err error) {
	access, err = auth.GenerateAccessToken(userID, s.cfg.JWTSecret, s.cfg.AccessTokenTTLMinutes)
	if err != nil {
		return "", "", err
	}
	refresh, err = auth.GenerateRefreshToken()
	if err != nil {
		return "", "", err
	}
	exp := time.Now().Add(time.Duration(s.cfg.RefreshTokenTTLDays) * 24 * time.Hour)
	if err := st.SaveRefreshToken(ctx, userID, refresh, exp); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}
