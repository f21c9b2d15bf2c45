package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

const (
	outboundBuffer = 64
	writeTimeout   = 5 * time.Second
)

// Client is one subscriber of a channel.
type Client struct {
	ID       string
	Channel  string
	Outbound chan Message
	once     sync.Once
}

// Hub tracks subscribers per channel and delivers broadcast messages to
// them. A subscriber that cannot keep up loses messages instead of
// stalling the broadcaster.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{channels: make(map[string]map[*Client]struct{})}
}

// Subscribe registers a new client on channel.
func (h *Hub) Subscribe(channel string) *Client {
	c := &Client{
		ID:       uuid.NewString(),
		Channel:  channel,
		Outbound: make(chan Message, outboundBuffer),
	}
	h.mu.Lock()
	set, ok := h.channels[channel]
	if !ok {
		set = make(map[*Client]struct{})
		h.channels[channel] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// Unsubscribe removes c and closes its outbound channel.
func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	if set, ok := h.channels[c.Channel]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.channels, c.Channel)
		}
	}
	h.mu.Unlock()
	c.once.Do(func() { close(c.Outbound) })
}

// CloseChannel disconnects every subscriber of channel.
func (h *Hub) CloseChannel(channel string) {
	h.mu.Lock()
	set := h.channels[channel]
	delete(h.channels, channel)
	h.mu.Unlock()
	for c := range set {
		c.once.Do(func() { close(c.Outbound) })
	}
}

// Subscribers returns the number of clients on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Broadcast delivers msg to every subscriber of msg.Channel.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.channels[msg.Channel] {
		select {
		case c.Outbound <- msg:
		default:
			slog.Warn("dropping realtime message for slow subscriber",
				"channel", msg.Channel,
				"client_id", c.ID,
				"event", msg.Event,
			)
		}
	}
}

// ServeWS upgrades the request and streams messages of channel to the
// socket until either side closes. first, if non-nil, is called once the
// client is subscribed and its message is sent before any broadcast, so no
// message published after first reads its state is missed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, channel string, first func() (Message, error)) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "channel", channel, "error", err)
		return
	}
	defer conn.CloseNow()

	client := h.Subscribe(channel)
	defer h.Unsubscribe(client)

	// Reads are not expected; CloseRead handles control frames and cancels
	// ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	if first != nil {
		msg, err := first()
		if err != nil {
			slog.Warn("websocket initial message failed", "channel", channel, "error", err)
			conn.Close(websocket.StatusInternalError, "initial state unavailable")
			return
		}
		if err := write(ctx, conn, msg); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-client.Outbound:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "session closed")
				return
			}
			if err := write(ctx, conn, msg); err != nil {
				slog.Debug("websocket write failed", "channel", channel, "error", err)
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}
