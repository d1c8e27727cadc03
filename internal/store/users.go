package store

import (
	"context"
	"fmt"
	"time"

	"github.com/SamvelMkhitarian/messenger/internal/models"

	"gorm.io/gorm/clause"
)

// CreateUser inserts u; an existing email yields ErrDuplicate.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	res := s.conn(ctx).Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).Create(u)
	if res.Error != nil {
		return fmt.Errorf("create user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *Store) UserByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.conn(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err, "user by id")
	}
	return &u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.conn(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, notFound(err, "user by email")
	}
	return &u, nil
}

// UserNames 批量解析用户显示名。
func (s *Store) UserNames(ctx context.Context, ids []uint) (map[uint]string, error) {
	out := make(map[uint]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := s.conn(ctx).Select("id", "name").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("user names: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u.Name
	}
	return out, nil
}

func (s *Store) SaveRefreshToken(ctx context.Context, userID uint, token string, expiresAt time.Time) error {
	rt := models.RefreshToken{UserID: userID, Token: token, ExpiresAt: expiresAt}
	return s.conn(ctx).Create(&rt).Error
}

// ValidRefreshToken returns the token row if it is neither revoked nor expired.
func (s *Store) ValidRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var rt models.RefreshToken
	err := s.conn(ctx).Where("token = ? AND revoked_at IS NULL AND expires_at > ?", token, time.Now()).First(&rt).Error
	if err != nil {
		return nil, notFound(err, "refresh token")
	}
	return &rt, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, token string) error {
	now := time.Now()
	return s.conn(ctx).Model(&models.RefreshToken{}).Where("token = ?", token).Update("revoked_at", &now).Error
}
