package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SamvelMkhitarian/messenger/internal/config"
	"github.com/SamvelMkhitarian/messenger/internal/store"
	"github.com/SamvelMkhitarian/messenger/internal/testutil"
	"github.com/SamvelMkhitarian/messenger/internal/ws"

	"github.com/gin-gonic/gin"
)

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Config{Env: "dev", JWTSecret: "secret", AccessTokenTTLMinutes: 15, RefreshTokenTTLDays: 7, HistoryLimit: 50}
	st := store.New(testutil.NewDB(t))
	return SetupRouter(cfg, Deps{Store: st, Hub: ws.NewHub()})
}

func do(t *testing.T, r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

type session struct {
	ID    uint
	Token string
}

func signup(t *testing.T, r http.Handler, name string) session {
	t.Helper()
	email := name + "@example.com"
	w := do(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{"name": name, "email": email, "password": "Passw0rd"})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", name, w.Code, w.Body.String())
	}
	w = do(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": email, "password": "Passw0rd"})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", name, w.Code, w.Body.String())
	}
	var res struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		User        struct {
			ID uint `json:"id"`
		} `json:"user"`
	}
	decode(t, w, &res)
	if res.TokenType != "bearer" || res.AccessToken == "" {
		t.Fatalf("login response %s", w.Body.String())
	}
	return session{ID: res.User.ID, Token: res.AccessToken}
}

func TestHealthz(t *testing.T) {
	r := newTestEngine(t)
	w := do(t, r, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAuthEndpoints(t *testing.T) {
	r := newTestEngine(t)
	signup(t, r, "alice")

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"duplicate email", "/api/v1/auth/register", gin.H{"name": "a", "email": "alice@example.com", "password": "Passw0rd"}, http.StatusConflict},
		{"weak password", "/api/v1/auth/register", gin.H{"name": "b", "email": "b@example.com", "password": "password"}, http.StatusBadRequest},
		{"bad email", "/api/v1/auth/register", gin.H{"name": "b", "email": "nope", "password": "Passw0rd"}, http.StatusBadRequest},
		{"wrong password", "/api/v1/auth/login", gin.H{"email": "alice@example.com", "password": "Wrong123"}, http.StatusUnauthorized},
		{"empty login", "/api/v1/auth/login", gin.H{}, http.StatusBadRequest},
		{"bad refresh", "/api/v1/auth/refresh", gin.H{"refresh_token": "nope"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, r, http.MethodPost, tt.path, "", tt.body); w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r := newTestEngine(t)
	for _, path := range []string{"/api/v1/chats", "/api/v1/chats/1/messages"} {
		if w := do(t, r, http.MethodGet, path, "", nil); w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token = %d", path, w.Code)
		}
		if w := do(t, r, http.MethodGet, path, "garbage", nil); w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s with bad token = %d", path, w.Code)
		}
	}
}

func TestChatFlow(t *testing.T) {
	r := newTestEngine(t)
	alice := signup(t, r, "alice")
	bob := signup(t, r, "bob")
	carol := signup(t, r, "carol")

	// group chat owned by alice
	w := do(t, r, http.MethodPost, "/api/v1/chats", alice.Token, gin.H{"name": "team", "type": "group"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create group: %d %s", w.Code, w.Body.String())
	}
	var group struct {
		ID      uint  `json:"id"`
		GroupID *uint `json:"group_id"`
	}
	decode(t, w, &group)
	if group.GroupID == nil {
		t.Fatalf("group response without group_id: %s", w.Body.String())
	}

	// private chat alice <-> bob
	w = do(t, r, http.MethodPost, "/api/v1/chats", alice.Token, gin.H{"name": "dm", "type": "private", "peer_id": bob.ID})
	if w.Code != http.StatusCreated {
		t.Fatalf("create private: %d %s", w.Code, w.Body.String())
	}
	w = do(t, r, http.MethodPost, "/api/v1/chats", alice.Token, gin.H{"name": "dm", "type": "private"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("private chat without peer: %d", w.Code)
	}
	w = do(t, r, http.MethodPost, "/api/v1/chats", alice.Token, gin.H{"name": "x", "type": "broadcast"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown chat type: %d", w.Code)
	}

	// carol joins the group twice
	joinPath := fmt.Sprintf("/api/v1/groups/%d/join", *group.GroupID)
	for i, wantAlready := range []bool{false, true} {
		w = do(t, r, http.MethodPost, joinPath, carol.Token, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("join %d: %d %s", i, w.Code, w.Body.String())
		}
		var res struct {
			AlreadyMember bool   `json:"already_member"`
			ChatID        uint   `json:"chat_id"`
			Detail        string `json:"detail"`
		}
		decode(t, w, &res)
		if res.AlreadyMember != wantAlready || res.ChatID != group.ID {
			t.Fatalf("join %d: %+v", i, res)
		}
	}
	if w := do(t, r, http.MethodPost, "/api/v1/groups/9999/join", carol.Token, nil); w.Code != http.StatusNotFound {
		t.Fatalf("join missing group: %d", w.Code)
	}

	// listings
	w = do(t, r, http.MethodGet, "/api/v1/chats", alice.Token, nil)
	var list struct {
		Chats []struct {
			ID   uint   `json:"id"`
			Type string `json:"type"`
		} `json:"chats"`
	}
	decode(t, w, &list)
	if len(list.Chats) != 2 {
		t.Fatalf("alice chats = %s", w.Body.String())
	}
	w = do(t, r, http.MethodGet, "/api/v1/chats", carol.Token, nil)
	decode(t, w, &list)
	if len(list.Chats) != 1 || list.Chats[0].ID != group.ID {
		t.Fatalf("carol chats = %s", w.Body.String())
	}

	// history
	path := fmt.Sprintf("/api/v1/chats/%d/messages?limit=10&offset=0", group.ID)
	w = do(t, r, http.MethodGet, path, carol.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history: %d %s", w.Code, w.Body.String())
	}
	var hist struct {
		Messages []json.RawMessage `json:"messages"`
	}
	decode(t, w, &hist)
	if hist.Messages == nil || len(hist.Messages) != 0 {
		t.Fatalf("history body = %s, want empty list", w.Body.String())
	}
	if w := do(t, r, http.MethodGet, path, bob.Token, nil); w.Code != http.StatusForbidden {
		t.Fatalf("history for non-member: %d", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/api/v1/chats/9999/messages", bob.Token, nil); w.Code != http.StatusNotFound {
		t.Fatalf("history for missing chat: %d", w.Code)
	}
	if w := do(t, r, http.MethodGet, fmt.Sprintf("/api/v1/chats/%d/messages?offset=-1", group.ID), carol.Token, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("negative offset: %d", w.Code)
	}
}
