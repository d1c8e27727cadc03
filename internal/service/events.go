package service

import (
	"time"

	"github.com/SamvelMkhitarian/messenger/internal/store"
)

type EventType string

const (
	EventNewMessage  EventType = "new_message"
	EventMessageRead EventType = "message_read"
	EventHistory     EventType = "history"
	EventError       EventType = "error"
)

// Event is a typed payload pushed to websocket clients as JSON.
type Event interface {
	Kind() EventType
}

// Broadcaster fans an event out to every connection bound to a chat.
type Broadcaster interface {
	Broadcast(chatID uint, evt Event)
}

// MessageDTO 是对外输出的消息数据。
type MessageDTO struct {
	ID         uint      `json:"id"`
	ChatID     uint      `json:"chat_id"`
	SenderID   uint      `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	IsRead     bool      `json:"is_read"`
}

func messageDTO(r store.MessageRow) MessageDTO {
	return MessageDTO{
		ID:         r.ID,
		ChatID:     r.ChatID,
		SenderID:   r.SenderID,
		SenderName: r.SenderName,
		Text:       r.Text,
		Timestamp:  r.CreatedAt,
		IsRead:     r.IsRead,
	}
}

func messageDTOs(rows []store.MessageRow) []MessageDTO {
	out := make([]MessageDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, messageDTO(r))
	}
	return out
}

type MessageEvent struct {
	Type    EventType  `json:"type"`
	Message MessageDTO `json:"message"`
}

func (e MessageEvent) Kind() EventType { return e.Type }

func NewMessageEvent(m MessageDTO) MessageEvent {
	return MessageEvent{Type: EventNewMessage, Message: m}
}

type ReadEvent struct {
	Type      EventType `json:"type"`
	MessageID uint      `json:"message_id"`
	ReaderID  uint      `json:"reader_id"`
	AllRead   bool      `json:"all_read"`
}

func (e ReadEvent) Kind() EventType { return e.Type }

func NewReadEvent(st ReadStatus) ReadEvent {
	return ReadEvent{Type: EventMessageRead, MessageID: st.MessageID, ReaderID: st.ReaderID, AllRead: st.AllRead}
}

type HistoryEvent struct {
	Type     EventType    `json:"type"`
	Messages []MessageDTO `json:"messages"`
}

func (e HistoryEvent) Kind() EventType { return e.Type }

func NewHistoryEvent(msgs []MessageDTO) HistoryEvent {
	if msgs == nil {
		msgs = []MessageDTO{}
	}
	return HistoryEvent{Type: EventHistory, Messages: msgs}
}

type ErrorEvent struct {
	Type  EventType `json:"type"`
	Error string    `json:"error"`
}

func (e ErrorEvent) Kind() EventType { return e.Type }

func NewErrorEvent(msg string) ErrorEvent {
	return ErrorEvent{Type: EventError, Error: msg}
}
