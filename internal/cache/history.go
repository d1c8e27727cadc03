// Package cache keeps the recent-history batch sent to every new
// websocket connection in Redis. All methods are safe on a nil receiver,
// which behaves as an always-missing cache.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/SamvelMkhitarian/messenger/internal/store"

	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

const HistoryTTL = time.Minute

type HistoryCache struct {
	redis *Redis
	ttl   time.Duration
}

func NewHistoryCache(r *Redis) *HistoryCache {
	return &HistoryCache{redis: r, ttl: HistoryTTL}
}

func historyKey(chatID uint) string {
	return fmt.Sprintf("chat:%d:recent", chatID)
}

// Get reports a miss on any redis or decoding failure.
func (c *HistoryCache) Get(ctx context.Context, chatID uint) ([]store.MessageRow, bool) {
	if c == nil || c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, historyKey(chatID))
	if err != nil {
		log.Warn().Err(err).Uint("chat_id", chatID).Msg("history cache get")
		return nil, false
	}
	if data == nil {
		return nil, false
	}
	var rows []store.MessageRow
	if err := msgpack.Unmarshal(data, &rows); err != nil {
		return nil, false
	}
	return rows, true
}

func (c *HistoryCache) Set(ctx context.Context, chatID uint, rows []store.MessageRow) error {
	if c == nil || c.redis == nil {
		return nil
	}
	data, err := msgpack.Marshal(rows)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, historyKey(chatID), data, c.ttl)
}

func (c *HistoryCache) Invalidate(ctx context.Context, chatID uint) error {
	if c == nil || c.redis == nil {
		return nil
	}
	return c.redis.Delete(ctx, historyKey(chatID))
}
