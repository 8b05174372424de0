package offcache

import (
	"context"
	"fmt"
)

// Message types accepted on the manual control channel.
const (
	// MessageSkipWaiting requests immediate takeover by the current
	// generation.
	MessageSkipWaiting = "SKIP_WAITING"
	// MessageClearCache deletes all partitions unconditionally, including
	// the current generation's.
	MessageClearCache = "CLEAR_CACHE"
)

// Message is a command delivered over the control channel.
type Message struct {
	Type string `json:"type"`
}

// HandleMessage is the message trigger. Unknown message types (including the
// push/notification ones handled elsewhere) are rejected with an error.
func (w *Worker) HandleMessage(ctx context.Context, msg Message) error {
	switch msg.Type {
	case MessageSkipWaiting:
		w.lifecycle.Commit()
		return nil
	case MessageClearCache:
		return w.lifecycle.ClearAll(ctx)
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}
