// Package relay shares broadcasts between server instances over NATS.
//
// Every event is delivered to the local hub first and then published on
// chat.events.<chat id> wrapped in an envelope that names the publishing
// node. Each instance subscribes to chat.events.* and hands foreign events
// to its own hub, skipping the ones it published itself.
package relay

import (
	"encoding/json"
	"fmt"

	"github.com/SamvelMkhitarian/messenger/internal/metrics"
	"github.com/SamvelMkhitarian/messenger/internal/service"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const subjectPrefix = "chat.events."

// Local delivers encoded events to the connections of this instance.
type Local interface {
	Deliver(chatID uint, payload []byte)
}

type envelope struct {
	Node   string          `json:"node"`
	ChatID uint            `json:"chat_id"`
	Event  json.RawMessage `json:"event"`
}

type Relay struct {
	local Local
	nc    *nats.Conn
	sub   *nats.Subscription
	node  string
}

func subject(chatID uint) string {
	return fmt.Sprintf("%s%d", subjectPrefix, chatID)
}

// Connect dials NATS and starts relaying into local.
func Connect(url string, local Local) (*Relay, error) {
	nc, err := nats.Connect(url, nats.Name("messenger"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	r, err := New(nc, local)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return r, nil
}

func New(nc *nats.Conn, local Local) (*Relay, error) {
	r := &Relay{local: local, nc: nc, node: uuid.NewString()}
	sub, err := nc.Subscribe(subjectPrefix+"*", func(m *nats.Msg) {
		if chatID, payload, ok := r.accept(m.Data); ok {
			metrics.RelayEvents.WithLabelValues("in").Inc()
			r.local.Deliver(chatID, payload)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s*: %w", subjectPrefix, err)
	}
	r.sub = sub
	log.Info().Str("node", r.node).Str("url", nc.ConnectedUrl()).Msg("nats relay ready")
	return r, nil
}

// Broadcast implements service.Broadcaster.
func (r *Relay) Broadcast(chatID uint, evt service.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("type", string(evt.Kind())).Msg("encode event")
		return
	}
	r.local.Deliver(chatID, payload)

	data, err := r.wrap(chatID, payload)
	if err != nil {
		log.Error().Err(err).Msg("encode envelope")
		return
	}
	if err := r.nc.Publish(subject(chatID), data); err != nil {
		log.Warn().Err(err).Uint("chat_id", chatID).Msg("relay publish")
		return
	}
	metrics.RelayEvents.WithLabelValues("out").Inc()
}

func (r *Relay) wrap(chatID uint, payload []byte) ([]byte, error) {
	return json.Marshal(envelope{Node: r.node, ChatID: chatID, Event: payload})
}

// accept decodes an envelope and rejects malformed data and our own events.
func (r *Relay) accept(data []byte) (uint, []byte, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Msg("relay: malformed envelope")
		return 0, nil, false
	}
	if env.Node == r.node || env.ChatID == 0 || len(env.Event) == 0 {
		return 0, nil, false
	}
	return env.ChatID, env.Event, true
}

// Close stops the subscription and drains the connection.
func (r *Relay) Close() error {
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
	}
	return r.nc.Drain()
}
