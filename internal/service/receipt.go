package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/SamvelMkhitarian/messenger/internal/cache"
	"github.com/SamvelMkhitarian/messenger/internal/metrics"
	"github.com/SamvelMkhitarian/messenger/internal/models"
	"github.com/SamvelMkhitarian/messenger/internal/store"

	"github.com/rs/zerolog/log"
)

// ReadStatus is the outcome of one read acknowledgement.
type ReadStatus struct {
	MessageID uint
	ReaderID  uint
	// AllRead reports whether the message is fully read. Once true it
	// stays true for every later acknowledgement.
	AllRead bool
	// Broadcast tells the caller to emit a message_read event. Group chats
	// always broadcast so partial progress is visible; private chats only
	// broadcast the fully read state.
	Broadcast bool
}

// ReceiptService 记录已读回执并按会话类型判定是否全员已读。
type ReceiptService struct {
	store *store.Store
	cache *cache.HistoryCache
}

func NewReceiptService(st *store.Store, hc *cache.HistoryCache) *ReceiptService {
	return &ReceiptService{store: st, cache: hc}
}

// MarkRead records that readerID has read messageID in chatID. A message
// that does not exist or belongs to another chat yields ErrMessageNotFound
// and changes nothing.
func (s *ReceiptService) MarkRead(ctx context.Context, chatID, messageID, readerID uint) (ReadStatus, error) {
	st := ReadStatus{MessageID: messageID, ReaderID: readerID}
	var (
		chatType models.ChatType
		flipped  bool
	)
	err := s.store.Tx(ctx, func(tx *store.Store) error {
		msg, err := tx.LockMessage(ctx, messageID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrMessageNotFound
		}
		if err != nil {
			return err
		}
		if msg.ChatID != chatID {
			return ErrMessageNotFound
		}
		if err := tx.InsertReadReceipt(ctx, messageID, readerID); err != nil {
			return err
		}
		chat, err := tx.ChatByID(ctx, chatID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrChatNotFound
		}
		if err != nil {
			return err
		}
		chatType = chat.Type

		if msg.IsRead {
			st.AllRead = true
			return nil
		}
		st.AllRead, err = fullyRead(ctx, tx, chat, msg)
		if err != nil {
			return err
		}
		if st.AllRead {
			flipped, err = tx.SetMessageRead(ctx, msg.ID)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, ErrMessageNotFound) || errors.Is(err, ErrChatNotFound) || errors.Is(err, ErrGroupNotFound) {
			return ReadStatus{}, err
		}
		return ReadStatus{}, fmt.Errorf("mark read: %w", err)
	}

	metrics.ReadReceiptsTotal.WithLabelValues(string(chatType)).Inc()
	if flipped {
		if err := s.cache.Invalidate(ctx, chatID); err != nil {
			log.Warn().Err(err).Uint("chat_id", chatID).Msg("history cache invalidate")
		}
	}
	switch chatType {
	case models.ChatGroup:
		st.Broadcast = true
	case models.ChatPrivate:
		st.Broadcast = st.AllRead
	}
	return st, nil
}

// fullyRead evaluates the quorum rule for the chat's type against the
// receipts and membership visible in tx.
func fullyRead(ctx context.Context, tx *store.Store, chat *models.Chat, msg *models.Message) (bool, error) {
	readers, err := tx.ReaderIDs(ctx, msg.ID)
	if err != nil {
		return false, err
	}
	switch chat.Type {
	case models.ChatPrivate:
		for _, id := range readers {
			if id != msg.SenderID {
				return true, nil
			}
		}
		return false, nil
	case models.ChatGroup:
		g, err := tx.GroupByChatID(ctx, chat.ID)
		if errors.Is(err, store.ErrNotFound) {
			return false, ErrGroupNotFound
		}
		if err != nil {
			return false, err
		}
		members, err := tx.GroupMemberIDs(ctx, g.ID)
		if err != nil {
			return false, err
		}
		return coversMembers(members, readers, msg.SenderID), nil
	default:
		return false, fmt.Errorf("unknown chat type %q", chat.Type)
	}
}

// coversMembers reports whether every member except the sender is a reader.
func coversMembers(members, readers []uint, sender uint) bool {
	read := make(map[uint]struct{}, len(readers))
	for _, id := range readers {
		read[id] = struct{}{}
	}
	for _, id := range members {
		if id == sender {
			continue
		}
		if _, ok := read[id]; !ok {
			return false
		}
	}
	return true
}
