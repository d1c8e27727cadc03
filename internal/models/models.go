package models

import "time"

// ChatType 区分私聊与群聊，已读判定依赖该标记。
type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
)

// Valid reports whether t is a known chat type.
func (t ChatType) Valid() bool {
	return t == ChatPrivate || t == ChatGroup
}

type User struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"size:64;not null"`
	Email        string `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Chat struct {
	ID        uint     `gorm:"primaryKey"`
	Name      string   `gorm:"size:128;not null"`
	Type      ChatType `gorm:"type:varchar(16);index;not null"`
	CreatedAt time.Time
}

// ChatMember holds the two participants of a private chat.
type ChatMember struct {
	ChatID   uint      `gorm:"primaryKey"`
	UserID   uint      `gorm:"primaryKey;index"`
	JoinedAt time.Time `gorm:"autoCreateTime"`
}

type Group struct {
	ID        uint   `gorm:"primaryKey"`
	ChatID    uint   `gorm:"uniqueIndex;not null"`
	Name      string `gorm:"size:128;not null"`
	CreatorID uint   `gorm:"not null"`
	CreatedAt time.Time
}

func (Group) TableName() string { return "chat_groups" }

// GroupMember 的复合主键保证 (group, user) 唯一。
type GroupMember struct {
	GroupID  uint      `gorm:"primaryKey"`
	UserID   uint      `gorm:"primaryKey;index"`
	JoinedAt time.Time `gorm:"autoCreateTime"`
}

type Message struct {
	ID        uint      `gorm:"primaryKey"`
	ChatID    uint      `gorm:"index:idx_msg_chat_created,priority:1;not null"`
	SenderID  uint      `gorm:"index;not null"`
	Text      string    `gorm:"type:text;not null"`
	ClientID  *string   `gorm:"uniqueIndex;size:64"`
	IsRead    bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"index:idx_msg_chat_created,priority:2"`
}

// MessageRead 是单个用户对单条消息的已读回执。
type MessageRead struct {
	ID        uint      `gorm:"primaryKey"`
	MessageID uint      `gorm:"uniqueIndex:idx_read_msg_user,priority:1;not null"`
	UserID    uint      `gorm:"uniqueIndex:idx_read_msg_user,priority:2;not null"`
	ReadAt    time.Time `gorm:"autoCreateTime"`
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`
	Token     string    `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&User{}, &Chat{}, &ChatMember{}, &Group{}, &GroupMember{},
		&Message{}, &MessageRead{}, &RefreshToken{},
	}
}
