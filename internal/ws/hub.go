package ws

import (
	"encoding/json"
	"sync"

	"github.com/SamvelMkhitarian/messenger/internal/metrics"
	"github.com/SamvelMkhitarian/messenger/internal/service"

	"github.com/rs/zerolog/log"
)

// Hub 维护 chat id 到在线连接集合的映射。每个会话有独立的锁，
// 不同会话之间互不阻塞。
type Hub struct {
	mu    sync.RWMutex
	chats map[uint]*chatRoom
}

type chatRoom struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	// closed is set when the room is removed from the hub; a Register that
	// raced with the removal must retry on a fresh room.
	closed bool
}

func NewHub() *Hub { return &Hub{chats: make(map[uint]*chatRoom)} }

func (h *Hub) lookup(chatID uint) *chatRoom {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.chats[chatID]
}

// getRoom 若会话未初始化则懒加载一个 chatRoom。
func (h *Hub) getRoom(chatID uint) *chatRoom {
	if r := h.lookup(chatID); r != nil {
		return r
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if r := h.chats[chatID]; r != nil {
		return r
	}
	r := &chatRoom{clients: make(map[*Client]struct{})}
	h.chats[chatID] = r
	return r
}

// Register adds c to the set of its chat. Registering twice is a no-op.
func (h *Hub) Register(c *Client) {
	for {
		r := h.getRoom(c.chatID)
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			continue
		}
		_, exists := r.clients[c]
		r.clients[c] = struct{}{}
		r.mu.Unlock()
		if !exists {
			metrics.WsConnections.Inc()
		}
		return
	}
}

// Unregister removes c and closes its send buffer. Unknown clients are ignored.
func (h *Hub) Unregister(c *Client) {
	r := h.lookup(c.chatID)
	if r == nil {
		return
	}
	r.mu.Lock()
	_, ok := r.clients[c]
	delete(r.clients, c)
	empty := len(r.clients) == 0
	r.mu.Unlock()

	if ok {
		c.close()
		metrics.WsConnections.Dec()
	}
	if empty {
		h.prune(c.chatID, r)
	}
}

func (h *Hub) prune(chatID uint, r *chatRoom) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.clients) == 0 && h.chats[chatID] == r {
		r.closed = true
		delete(h.chats, chatID)
	}
}

// Online 返回会话的在线连接数，供 REST 接口复用。
func (h *Hub) Online(chatID uint) int {
	r := h.lookup(chatID)
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Broadcast encodes evt once and delivers it to every connection of the chat.
func (h *Hub) Broadcast(chatID uint, evt service.Event) {
	b, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("type", string(evt.Kind())).Msg("encode event")
		return
	}
	h.Deliver(chatID, b)
}

// Deliver sends an encoded event to the chat's current subscribers. The
// set is snapshotted so no lock is held while sending; a connection whose
// buffer is full is dropped and the rest still receive the event.
func (h *Hub) Deliver(chatID uint, payload []byte) {
	r := h.lookup(chatID)
	if r == nil {
		return
	}
	r.mu.RLock()
	targets := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(payload) {
			metrics.BroadcastDrops.Inc()
			log.Warn().Uint("chat_id", chatID).Uint("user_id", c.userID()).Str("conn", c.id).Msg("slow client dropped")
			h.Unregister(c)
		}
	}
}
