// Package history keeps the recent display events of every buffer so a
// display can redraw after a reconnect or a focus switch.
package history

import (
	"context"
	"strings"

	"github.com/tehcyx/ircc/pkg/event"
)

// DefaultSize is how many events are kept per buffer.
const DefaultSize = 500

// Store records display events per server and buffer.
type Store interface {
	Append(ctx context.Context, ev event.DisplayEvent) error
	// Recent returns up to limit of the newest events of a buffer, oldest
	// first. A limit <= 0 returns everything kept.
	Recent(ctx context.Context, serverID, buffer string, limit int) ([]event.DisplayEvent, error)
	// Forget drops every buffer of a server.
	Forget(ctx context.Context, serverID string) error
	Close() error
}

// bufferKey normalizes buffer names the way most servers fold them for
// ASCII names.
func bufferKey(buffer string) string {
	return strings.ToLower(buffer)
}
