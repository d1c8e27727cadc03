package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/SamvelMkhitarian/messenger/internal/cache"
	"github.com/SamvelMkhitarian/messenger/internal/metrics"
	"github.com/SamvelMkhitarian/messenger/internal/models"
	"github.com/SamvelMkhitarian/messenger/internal/store"

	"github.com/rs/zerolog/log"
)

const (
	MaxMessageLen  = 4096
	MaxClientIDLen = 64
	maxPageSize    = 200
)

// MessageService 封装消息写入与历史查询。
type MessageService struct {
	store        *store.Store
	cache        *cache.HistoryCache
	historyLimit int
}

// NewMessageService accepts a nil cache.
func NewMessageService(st *store.Store, hc *cache.HistoryCache, historyLimit int) *MessageService {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &MessageService{store: st, cache: hc, historyLimit: historyLimit}
}

type SubmitInput struct {
	ChatID   uint
	Sender   *models.User
	Text     string
	ClientID string
}

// Submit persists a message. A submission whose client id is already
// stored is a no-op reported as duplicate, with a nil message and nil
// error; it must not be broadcast.
func (s *MessageService) Submit(ctx context.Context, in SubmitInput) (msg *MessageDTO, duplicate bool, err error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, false, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageLen {
		return nil, false, ErrMessageTooLong
	}
	m := models.Message{ChatID: in.ChatID, SenderID: in.Sender.ID, Text: text}
	if cid := strings.TrimSpace(in.ClientID); cid != "" {
		if len(cid) > MaxClientIDLen {
			return nil, false, ErrClientIDTooLong
		}
		m.ClientID = &cid
	}

	var created bool
	err = s.store.Tx(ctx, func(tx *store.Store) error {
		var err error
		created, err = tx.InsertMessage(ctx, &m)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("submit message: %w", err)
	}
	if !created {
		metrics.DuplicateSubmissions.Inc()
		log.Debug().Uint("chat_id", in.ChatID).Str("client_id", *m.ClientID).Msg("duplicate submission dropped")
		return nil, true, nil
	}
	metrics.MessagesTotal.Inc()
	s.invalidate(ctx, in.ChatID)

	return &MessageDTO{
		ID:         m.ID,
		ChatID:     m.ChatID,
		SenderID:   m.SenderID,
		SenderName: in.Sender.Name,
		Text:       m.Text,
		Timestamp:  m.CreatedAt,
		IsRead:     m.IsRead,
	}, false, nil
}

// Recent 返回连接建立时推送的最近消息，按时间正序。
func (s *MessageService) Recent(ctx context.Context, chatID uint) ([]MessageDTO, error) {
	if rows, ok := s.cache.Get(ctx, chatID); ok {
		return messageDTOs(rows), nil
	}
	rows, err := s.store.RecentMessages(ctx, chatID, s.historyLimit)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, chatID, rows); err != nil {
		log.Warn().Err(err).Uint("chat_id", chatID).Msg("history cache set")
	}
	return messageDTOs(rows), nil
}

// History pages through a chat the user belongs to, oldest first.
func (s *MessageService) History(ctx context.Context, chatID, userID uint, limit, offset int) ([]MessageDTO, error) {
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
	if limit <= 0 || limit > maxPageSize {
		limit = s.historyLimit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.store.MessagePage(ctx, chatID, limit, offset)
	if err != nil {
		return nil, err
	}
	return messageDTOs(rows), nil
}

func (s *MessageService) invalidate(ctx context.Context, chatID uint) {
	if err := s.cache.Invalidate(ctx, chatID); err != nil {
		log.Warn().Err(err).Uint("chat_id", chatID).Msg("history cache invalidate")
	}
}
