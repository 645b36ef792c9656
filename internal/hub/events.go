package hub

import (
	"context"
	"fmt"

	"github.com/polyswarm/polyswarmd-go/internal/codec"
)

// ScopedChannelEvents runs manager (already registered with the caller's
// closed-agreement / settle-started / settle-challenged wrappers scoped to
// a single offer's multisig address), waits for its first decoded event,
// and tears the manager down before returning it. The handler is
// necessarily short-lived: a channel's three lifecycle events fire once
// each, so there is no long-running subscriber to register with a Hub.
func ScopedChannelEvents(ctx context.Context, manager FilterManager) (*codec.EventMessage, error) {
	stream, err := manager.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("hub: start scoped channel filter manager: %w", err)
	}
	defer manager.Stop()

	select {
	case msg, ok := <-stream:
		if !ok {
			return nil, fmt.Errorf("hub: scoped channel filter manager closed before any event")
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
