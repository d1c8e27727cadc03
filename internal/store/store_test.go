package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SamvelMkhitarian/messenger/internal/models"
	"github.com/SamvelMkhitarian/messenger/internal/store"
	"github.com/SamvelMkhitarian/messenger/internal/testutil"
)

func strptr(s string) *string { return &s }

func TestCreateUserDuplicateEmail(t *testing.T) {
	st := testutil.NewStore(t)
	ctx := context.Background()

	u := &models.User{Name: "alice", Email: "a@example.com", PasswordHash: "h"}
	if err := st.CreateUser(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := &models.User{Name: "alice2", Email: "a@example.com", PasswordHash: "h"}
	if err := st.CreateUser(ctx, dup); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}
	got, err := st.UserByEmail(ctx, "a@example.com")
	if err != nil || got.ID != u.ID {
		t.Fatalf("lookup: %v %+v", err, got)
	}
	if _, err := st.UserByID(ctx, 9999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestInsertMessageIdempotent(t *testing.T) {
	st := testutil.NewStore(t)
	ctx := context.Background()
	a := testutil.MustUser(t, st, "a")
	b := testutil.MustUser(t, st, "b")
	chat := testutil.MustPrivateChat(t, st, a.ID, b.ID)

	m1 := &models.Message{ChatID: chat.ID, SenderID: a.ID, Text: "hi", ClientID: strptr("c-1")}
	created, err := st.InsertMessage(ctx, m1)
	if err != nil || !created {
		t.Fatalf("first insert: created=%v err=%v", created, err)
	}
	m2 := &models.Message{ChatID: chat.ID, SenderID: a.ID, Text: "hi", ClientID: strptr("c-1")}
	created, err = st.InsertMessage(ctx, m2)
	if err != nil || created {
		t.Fatalf("duplicate insert: created=%v err=%v", created, err)
	}
	orig, err := st.MessageByClientID(ctx, "c-1")
	if err != nil || orig.ID != m1.ID {
		t.Fatalf("by client id: %v %+v", err, orig)
	}

	// messages without a client id never collide
	for i := 0; i < 2; i++ {
		m := &models.Message{ChatID: chat.ID, SenderID: a.ID, Text: "x"}
		if created, err := st.InsertMessage(ctx, m); err != nil || !created {
			t.Fatalf("insert without client id: created=%v err=%v", created, err)
		}
	}
	rows, err := st.RecentMessages(ctx, chat.ID, 50)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("want 3 rows, got %d", len(rows))
	}
}

func TestRecentMessagesOrderAndLimit(t *testing.T) {
	st := testutil.NewStore(t)
	ctx := context.Background()
	a := testutil.MustUser(t, st, "alice")
	b := testutil.MustUser(t, st, "bob")
	chat := testutil.MustPrivateChat(t, st, a.ID, b.ID)

	var ids []uint
	for i := 0; i < 5; i++ {
		m := &models.Message{ChatID: chat.ID, SenderID: a.ID, Text: "m"}
		if _, err := st.InsertMessage(ctx, m); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, m.ID)
	}

	rows, err := st.RecentMessages(ctx, chat.ID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("want 3, got %d", len(rows))
	}
	for i, r := range rows {
		if r.ID != ids[2+i] {
			t.Errorf("row %d: want id %d, got %d", i, ids[2+i], r.ID)
		}
		if r.SenderName != "alice" {
			t.Errorf("row %d: sender name %q", i, r.SenderName)
		}
	}

	page, err := st.MessagePage(ctx, chat.ID, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].ID != ids[1] || page[1].ID != ids[2] {
		t.Fatalf("unexpected page: %+v", page)
	}

	empty, err := st.RecentMessages(ctx, chat.ID+100, 50)
	if err != nil || len(empty) != 0 {
		t.Fatalf("other chat: %v %d", err, len(empty))
	}
}

func TestReadReceiptsAndFlag(t *testing.T) {
	st := testutil.NewStore(t)
	ctx := context.Background()
	a := testutil.MustUser(t, st, "a")
	b := testutil.MustUser(t, st, "b")
	chat := testutil.MustPrivateChat(t, st, a.ID, b.ID)
	m := &models.Message{ChatID: chat.ID, SenderID: a.ID, Text: "hi"}
	if _, err := st.InsertMessage(ctx, m); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := st.InsertReadReceipt(ctx, m.ID, b.ID); err != nil {
			t.Fatalf("receipt %d: %v", i, err)
		}
	}
	readers, err := st.ReaderIDs(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(readers) != 1 || readers[0] != b.ID {
		t.Fatalf("readers: %v", readers)
	}

	flipped, err := st.SetMessageRead(ctx, m.ID)
	if err != nil || !flipped {
		t.Fatalf("first flip: %v %v", flipped, err)
	}
	flipped, err = st.SetMessageRead(ctx, m.ID)
	if err != nil || flipped {
		t.Fatalf("second flip: %v %v", flipped, err)
	}
	got, err := st.MessageByID(ctx, m.ID)
	if err != nil || !got.IsRead {
		t.Fatalf("flag not set: %v %+v", err, got)
	}
}

func TestMembership(t *testing.T) {
	st := testutil.NewStore(t)
	ctx := context.Background()
	a := testutil.MustUser(t, st, "a")
	b := testutil.MustUser(t, st, "b")
	c := testutil.MustUser(t, st, "c")
	dm := testutil.MustPrivateChat(t, st, a.ID, b.ID)
	gc, g := testutil.MustGroupChat(t, st, "team", a.ID, c.ID)

	cases := []struct {
		name string
		chat *models.Chat
		user uint
		want bool
	}{
		{"dm participant", dm, b.ID, true},
		{"dm outsider", dm, c.ID, false},
		{"group member", gc, c.ID, true},
		{"group outsider", gc, b.ID, false},
	}
	for _, tc := range cases {
		got, err := st.IsMember(ctx, tc.chat, tc.user)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("%s: want %v, got %v", tc.name, tc.want, got)
		}
	}

	added, err := st.AddGroupMember(ctx, g.ID, c.ID)
	if err != nil || added {
		t.Fatalf("re-adding member: added=%v err=%v", added, err)
	}
	added, err = st.AddGroupMember(ctx, g.ID, b.ID)
	if err != nil || !added {
		t.Fatalf("adding member: added=%v err=%v", added, err)
	}
	ids, err := st.GroupMemberIDs(ctx, g.ID)
	if err != nil || len(ids) != 3 {
		t.Fatalf("members: %v %v", ids, err)
	}

	chats, err := st.ChatsForUser(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 2 {
		t.Fatalf("want 2 chats for a, got %d", len(chats))
	}
	chats, err = st.ChatsForUser(ctx, b.ID)
	if err != nil || len(chats) != 2 {
		t.Fatalf("want 2 chats for b after join, got %d (%v)", len(chats), err)
	}
}

func TestTxRollback(t *testing.T) {
	st := testutil.NewStore(t)
	ctx := context.Background()
	boom := errors.New("boom")
	err := st.Tx(ctx, func(tx *store.Store) error {
		if err := tx.CreateChat(ctx, &models.Chat{Name: "tmp", Type: models.ChatGroup}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if _, err := st.ChatByID(ctx, 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("chat should have been rolled back, got %v", err)
	}
}

func TestRefreshTokens(t *testing.T) {
	st := testutil.NewStore(t)
	ctx := context.Background()
	u := testutil.MustUser(t, st, "a")
	if err := st.SaveRefreshToken(ctx, u.ID, "tok", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := st.ValidRefreshToken(ctx, "tok"); err != nil {
		t.Fatalf("valid: %v", err)
	}
	if err := st.RevokeRefreshToken(ctx, "tok"); err != nil {
		t.Fatal(err)
	}
	if _, err := st.ValidRefreshToken(ctx, "tok"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("revoked token still valid: %v", err)
	}
}
