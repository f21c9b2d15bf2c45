package notify

import (
	"context"
	"fmt"

	"github.com/p-n-ai/pai-tracker/internal/realtime"
)

// RealtimeChannel pushes notices to the WebSocket subscribers of the
// notice's session.
type RealtimeChannel struct {
	bus realtime.Bus
}

func NewRealtimeChannel(bus realtime.Bus) *RealtimeChannel {
	return &RealtimeChannel{bus: bus}
}

func (c *RealtimeChannel) Send(ctx context.Context, n Notice) error {
	if n.SessionID == "" {
		return fmt.Errorf("notice has no session")
	}
	msg, err := realtime.NewMessage(n.SessionID, n.Kind, n)
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}
	return c.bus.Publish(ctx, msg)
}
