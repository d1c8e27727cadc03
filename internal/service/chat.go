package service

import (
	"context"
	"errors"
	"strings"

	"github.com/SamvelMkhitarian/messenger/internal/models"
	"github.com/SamvelMkhitarian/messenger/internal/store"
)

// Presence reports how many live connections a chat has.
type Presence interface {
	Online(chatID uint) int
}

// ChatService 封装会话与群组相关的业务逻辑。
type ChatService struct {
	store    *store.Store
	presence Presence
}

func NewChatService(st *store.Store, p Presence) *ChatService {
	return &ChatService{store: st, presence: p}
}

// ChatDTO 是对外输出的会话数据。
type ChatDTO struct {
	ID      uint            `json:"id"`
	Name    string          `json:"name"`
	Type    models.ChatType `json:"type"`
	GroupID *uint           `json:"group_id,omitempty"`
	Online  int             `json:"online"`
}

type CreateChatInput struct {
	Name   string
	Type   models.ChatType
	PeerID uint
}

// Create opens a chat. A private chat records the creator and the peer as
// its two participants; a group chat gets a Group with the creator as
// first member.
func (s *ChatService) Create(ctx context.Context, creatorID uint, in CreateChatInput) (*ChatDTO, error) {
	if !in.Type.Valid() {
		return nil, ErrInvalidChatType
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if in.Type == models.ChatPrivate {
		if in.PeerID == 0 || in.PeerID == creatorID {
			return nil, ErrPeerRequired
		}
		if _, err := s.store.UserByID(ctx, in.PeerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, err
		}
	}

	chat := models.Chat{Name: name, Type: in.Type}
	out := &ChatDTO{Name: name, Type: in.Type}
	err := s.store.Tx(ctx, func(tx *store.Store) error {
		if err := tx.CreateChat(ctx, &chat); err != nil {
			return err
		}
		switch chat.Type {
		case models.ChatPrivate:
			if err := tx.AddChatMember(ctx, chat.ID, creatorID); err != nil {
				return err
			}
			return tx.AddChatMember(ctx, chat.ID, in.PeerID)
		case models.ChatGroup:
			g := models.Group{ChatID: chat.ID, Name: name, CreatorID: creatorID}
			if err := tx.CreateGroup(ctx, &g); err != nil {
				return err
			}
			out.GroupID = &g.ID
			_, err := tx.AddGroupMember(ctx, g.ID, creatorID)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.ID = chat.ID
	return out, nil
}

// ListForUser 返回用户所在的会话，附带各会话的在线连接数。
func (s *ChatService) ListForUser(ctx context.Context, userID uint) ([]ChatDTO, error) {
	chats, err := s.store.ChatsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]ChatDTO, 0, len(chats))
	for _, c := range chats {
		dto := ChatDTO{ID: c.ID, Name: c.Name, Type: c.Type, Online: s.online(c.ID)}
		if c.Type == models.ChatGroup {
			g, err := s.store.GroupByChatID(ctx, c.ID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			if g != nil {
				dto.GroupID = &g.ID
			}
		}
		out = append(out, dto)
	}
	return out, nil
}

// JoinResult reports the chat behind the group and whether the caller was
// already a member before this call.
type JoinResult struct {
	GroupID       uint `json:"group_id"`
	ChatID        uint `json:"chat_id"`
	AlreadyMember bool `json:"already_member"`
}

// JoinGroup is idempotent: the composite key on (group, user) absorbs repeats.
func (s *ChatService) JoinGroup(ctx context.Context, groupID, userID uint) (*JoinResult, error) {
	g, err := s.store.GroupByID(ctx, groupID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	added, err := s.store.AddGroupMember(ctx, g.ID, userID)
	if err != nil {
		return nil, err
	}
	return &JoinResult{GroupID: g.ID, ChatID: g.ChatID, AlreadyMember: !added}, nil
}

// Authorize loads the chat and checks that userID may use it.
func (s *ChatService) Authorize(ctx context.Context, chatID, userID uint) (*models.Chat, error) {
	chat, err := s.store.ChatByID(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	ok, err := s.store.IsMember(ctx, chat, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotMember
	}
	return chat, nil
}

func (s *ChatService) online(chatID uint) int {
	if s.presence == nil {
		return 0
	}
	return s.presence.Online(chatID)
}
