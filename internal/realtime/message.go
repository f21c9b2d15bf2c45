// Package realtime fans tracker events out to WebSocket subscribers,
// optionally across instances through Redis Pub/Sub.
package realtime

import (
	"encoding/json"
	"time"
)

// Message is one event addressed to the subscribers of a channel. The
// channel is the session id.
type Message struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
	At      time.Time       `json:"at"`
}

// NewMessage encodes data into a message.
func NewMessage(channel, event string, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Channel: channel, Event: event, Data: raw, At: time.Now()}, nil
}
