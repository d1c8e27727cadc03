package store

import (
	"context"
	"fmt"

	"github.com/SamvelMkhitarian/messenger/internal/models"

	"gorm.io/gorm/clause"
)

func (s *Store) CreateChat(ctx context.Context, c *models.Chat) error {
	if err := s.conn(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("create chat: %w", err)
	}
	return nil
}

func (s *Store) ChatByID(ctx context.Context, id uint) (*models.Chat, error) {
	var c models.Chat
	if err := s.conn(ctx).First(&c, id).Error; err != nil {
		return nil, notFound(err, "chat by id")
	}
	return &c, nil
}

// AddChatMember records a private chat participant; repeats are absorbed.
func (s *Store) AddChatMember(ctx context.Context, chatID, userID uint) error {
	m := models.ChatMember{ChatID: chatID, UserID: userID}
	return s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error
}

func (s *Store) ChatMemberIDs(ctx context.Context, chatID uint) ([]uint, error) {
	var ids []uint
	err := s.conn(ctx).Model(&models.ChatMember{}).Where("chat_id = ?", chatID).Order("user_id").Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("chat members: %w", err)
	}
	return ids, nil
}

// ChatsForUser 返回用户参与的私聊与群聊。
func (s *Store) ChatsForUser(ctx context.Context, userID uint) ([]models.Chat, error) {
	private := s.db.Model(&models.ChatMember{}).Select("chat_id").Where("user_id = ?", userID)
	groups := s.db.Model(&models.Group{}).Select("chat_groups.chat_id").
		Joins("JOIN group_members ON group_members.group_id = chat_groups.id").
		Where("group_members.user_id = ?", userID)

	var chats []models.Chat
	err := s.conn(ctx).Where("id IN (?) OR id IN (?)", private, groups).Order("id desc").Find(&chats).Error
	if err != nil {
		return nil, fmt.Errorf("chats for user: %w", err)
	}
	return chats, nil
}

func (s *Store) CreateGroup(ctx context.Context, g *models.Group) error {
	if err := s.conn(ctx).Create(g).Error; err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

func (s *Store) GroupByID(ctx context.Context, id uint) (*models.Group, error) {
	var g models.Group
	if err := s.conn(ctx).First(&g, id).Error; err != nil {
		return nil, notFound(err, "group by id")
	}
	return &g, nil
}

func (s *Store) GroupByChatID(ctx context.Context, chatID uint) (*models.Group, error) {
	var g models.Group
	if err := s.conn(ctx).Where("chat_id = ?", chatID).First(&g).Error; err != nil {
		return nil, notFound(err, "group by chat")
	}
	return &g, nil
}

// AddGroupMember reports false when the user already belonged to the group.
func (s *Store) AddGroupMember(ctx context.Context, groupID, userID uint) (bool, error) {
	m := models.GroupMember{GroupID: groupID, UserID: userID}
	res := s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m)
	if res.Error != nil {
		return false, fmt.Errorf("add group member: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) GroupMemberIDs(ctx context.Context, groupID uint) ([]uint, error) {
	var ids []uint
	err := s.conn(ctx).Model(&models.GroupMember{}).Where("group_id = ?", groupID).Order("user_id").Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("group members: %w", err)
	}
	return ids, nil
}

// IsMember checks membership according to the chat's type.
func (s *Store) IsMember(ctx context.Context, chat *models.Chat, userID uint) (bool, error) {
	var count int64
	q := s.conn(ctx)
	switch chat.Type {
	case models.ChatPrivate:
		q = q.Model(&models.ChatMember{}).Where("chat_id = ? AND user_id = ?", chat.ID, userID)
	case models.ChatGroup:
		q = q.Model(&models.GroupMember{}).
			Joins("JOIN chat_groups ON chat_groups.id = group_members.group_id").
			Where("chat_groups.chat_id = ? AND group_members.user_id = ?", chat.ID, userID)
	default:
		return false, fmt.Errorf("is member: unknown chat type %q", chat.Type)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("is member: %w", err)
	}
	return count > 0, nil
}
