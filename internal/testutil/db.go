// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/SamvelMkhitarian/messenger/internal/db"
	"github.com/SamvelMkhitarian/messenger/internal/models"
	"github.com/SamvelMkhitarian/messenger/internal/store"

	"gorm.io/gorm"
)

var seq atomic.Int64

// NewDB opens a private in-memory sqlite database with the schema migrated.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:memdb%d?mode=memory&cache=shared", seq.Add(1))
	gdb, err := db.Connect("sqlite", dsn, false)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

// NewStore wraps NewDB in a store.
func NewStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(NewDB(t))
}

// MustUser creates a user with a unique email.
func MustUser(t *testing.T, st *store.Store, name string) *models.User {
	t.Helper()
	u := &models.User{
		Name:         name,
		Email:        fmt.Sprintf("%s-%d@example.com", name, seq.Add(1)),
		PasswordHash: "x",
	}
	if err := st.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

// MustPrivateChat creates a private chat between a and b.
func MustPrivateChat(t *testing.T, st *store.Store, a, b uint) *models.Chat {
	t.Helper()
	ctx := context.Background()
	c := &models.Chat{Name: "dm", Type: models.ChatPrivate}
	if err := st.CreateChat(ctx, c); err != nil {
		t.Fatalf("create chat: %v", err)
	}
	for _, id := range []uint{a, b} {
		if err := st.AddChatMember(ctx, c.ID, id); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	return c
}

// MustGroupChat creates a group chat owned by members[0] containing all members.
func MustGroupChat(t *testing.T, st *store.Store, name string, members ...uint) (*models.Chat, *models.Group) {
	t.Helper()
	ctx := context.Background()
	c := &models.Chat{Name: name, Type: models.ChatGroup}
	if err := st.CreateChat(ctx, c); err != nil {
		t.Fatalf("create chat: %v", err)
	}
	g := &models.Group{ChatID: c.ID, Name: name, CreatorID: members[0]}
	if err := st.CreateGroup(ctx, g); err != nil {
		t.Fatalf("create group: %v", err)
	}
	for _, id := range members {
		if _, err := st.AddGroupMember(ctx, g.ID, id); err != nil {
			t.Fatalf("add group member: %v", err)
		}
	}
	return c, g
}
