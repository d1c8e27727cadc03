package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/SamvelMkhitarian/messenger/internal/store"
)

func TestNilHistoryCache(t *testing.T) {
	var c *HistoryCache
	ctx := context.Background()
	if _, ok := c.Get(ctx, 1); ok {
		t.Fatal("nil cache should always miss")
	}
	if err := c.Set(ctx, 1, []store.MessageRow{{ID: 1}}); err != nil {
		t.Fatalf("Set on nil cache: %v", err)
	}
	if err := c.Invalidate(ctx, 1); err != nil {
		t.Fatalf("Invalidate on nil cache: %v", err)
	}
}

func TestHistoryKey(t *testing.T) {
	if got := historyKey(42); got != "chat:42:recent" {
		t.Fatalf("historyKey(42) = %q", got)
	}
}

func newTestCache(t *testing.T) *HistoryCache {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	r := NewRedis(addr, os.Getenv("REDIS_PASSWORD"), 15)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Ping(ctx); err != nil {
		_ = r.Close()
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return NewHistoryCache(r)
}

func TestHistoryCacheRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	chatID := uint(time.Now().UnixNano() % 1_000_000)
	t.Cleanup(func() { _ = c.Invalidate(ctx, chatID) })

	if _, ok := c.Get(ctx, chatID); ok {
		t.Fatal("expected miss before Set")
	}
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rows := []store.MessageRow{
		{ID: 1, ChatID: chatID, SenderID: 7, SenderName: "alice", Text: "hi", CreatedAt: ts},
		{ID: 2, ChatID: chatID, SenderID: 8, SenderName: "bob", Text: "yo", IsRead: true, CreatedAt: ts.Add(time.Second)},
	}
	if err := c.Set(ctx, chatID, rows); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := c.Get(ctx, chatID)
	if !ok || len(got) != 2 {
		t.Fatalf("Get: ok=%v len=%d", ok, len(got))
	}
	if got[1].SenderName != "bob" || !got[1].IsRead || !got[0].CreatedAt.Equal(ts) {
		t.Fatalf("unexpected rows: %+v", got)
	}
	if err := c.Invalidate(ctx, chatID); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok := c.Get(ctx, chatID); ok {
		t.Fatal("expected miss after Invalidate")
	}
}
