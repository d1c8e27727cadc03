package store

import (
	"context"
	"fmt"
	"time"

	"github.com/SamvelMkhitarian/messenger/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRow is a message joined with its sender's display name.
type MessageRow struct {
	ID         uint      `msgpack:"id"`
	ChatID     uint      `msgpack:"chat_id"`
	SenderID   uint      `msgpack:"sender_id"`
	SenderName string    `msgpack:"sender_name"`
	Text       string    `msgpack:"text"`
	IsRead     bool      `msgpack:"is_read"`
	CreatedAt  time.Time `msgpack:"created_at"`
}

// InsertMessage stores m unless a message with the same client id exists.
// created is false for such a duplicate and m.ID stays zero.
func (s *Store) InsertMessage(ctx context.Context, m *models.Message) (created bool, err error) {
	res := s.conn(ctx).Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "client_id"}}, DoNothing: true}).Create(m)
	if res.Error != nil {
		return false, fmt.Errorf("insert message: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) MessageByID(ctx context.Context, id uint) (*models.Message, error) {
	var m models.Message
	if err := s.conn(ctx).First(&m, id).Error; err != nil {
		return nil, notFound(err, "message by id")
	}
	return &m, nil
}

// LockMessage loads a message with SELECT ... FOR UPDATE so receipt
// evaluations for the same message run one after another. Must be called
// inside Tx. SQLite has no row locks and ignores the clause.
func (s *Store) LockMessage(ctx context.Context, id uint) (*models.Message, error) {
	var m models.Message
	if err := s.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, id).Error; err != nil {
		return nil, notFound(err, "lock message")
	}
	return &m, nil
}

// MessageByClientID is used to resolve the original of a duplicate submission.
func (s *Store) MessageByClientID(ctx context.Context, clientID string) (*models.Message, error) {
	var m models.Message
	if err := s.conn(ctx).Where("client_id = ?", clientID).First(&m).Error; err != nil {
		return nil, notFound(err, "message by client id")
	}
	return &m, nil
}

func (s *Store) rows(ctx context.Context) *gorm.DB {
	return s.conn(ctx).Table("messages").
		Select("messages.id, messages.chat_id, messages.sender_id, users.name AS sender_name, messages.text, messages.is_read, messages.created_at").
		Joins("JOIN users ON users.id = messages.sender_id")
}

// RecentMessages 返回会话最近 limit 条消息，按时间正序。
func (s *Store) RecentMessages(ctx context.Context, chatID uint, limit int) ([]MessageRow, error) {
	var out []MessageRow
	err := s.rows(ctx).
		Where("messages.chat_id = ?", chatID).
		Order("messages.created_at desc, messages.id desc").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// MessagePage pages through a chat's history oldest first.
func (s *Store) MessagePage(ctx context.Context, chatID uint, limit, offset int) ([]MessageRow, error) {
	var out []MessageRow
	err := s.rows(ctx).
		Where("messages.chat_id = ?", chatID).
		Order("messages.created_at asc, messages.id asc").
		Limit(limit).
		Offset(offset).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("message page: %w", err)
	}
	return out, nil
}

// InsertReadReceipt records that userID has read messageID. Repeats are absorbed.
func (s *Store) InsertReadReceipt(ctx context.Context, messageID, userID uint) error {
	r := models.MessageRead{MessageID: messageID, UserID: userID}
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&r).Error
	if err != nil {
		return fmt.Errorf("insert read receipt: %w", err)
	}
	return nil
}

func (s *Store) ReaderIDs(ctx context.Context, messageID uint) ([]uint, error) {
	var ids []uint
	err := s.conn(ctx).Model(&models.MessageRead{}).Where("message_id = ?", messageID).Order("user_id").Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("reader ids: %w", err)
	}
	return ids, nil
}

// SetMessageRead flips is_read from false to true. It reports whether this
// call performed the flip; the flag never goes back.
func (s *Store) SetMessageRead(ctx context.Context, messageID uint) (bool, error) {
	res := s.conn(ctx).Model(&models.Message{}).
		Where("id = ? AND is_read = ?", messageID, false).
		Update("is_read", true)
	if res.Error != nil {
		return false, fmt.Errorf("set message read: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
