package filters

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/polyswarm/polyswarmd-go/internal/codec"
)

const fetchTimeout = 120 * time.Second

// Decoder turns one eth_getFilterChanges response into the EventMessages
// it represents. A *codec.SchemaMismatch for one entry is logged and the
// entry skipped; it never tears down the filter.
type Decoder func(raw json.RawMessage) ([]*codec.EventMessage, error)

// Wrapper polls a single Poller on an adaptive schedule and emits decoded
// messages to a shared output channel. It mirrors the original system's
// FilterWrapper.spawn_poll_loop control flow: a growing empty-counter
// that collapses to zero on any non-empty response, used to recompute the
// wait before the next poll.
type Wrapper struct {
	Name    string
	Kind    codec.EventKind
	Backoff bool
	Poll    Poller
	Decode  Decoder
}

// Run executes the poll loop until ctx is canceled. It never returns an
// error: transport failures extend the backoff and retry, matching the
// original's "log and keep polling" behavior; only ctx cancellation ends
// the loop.
func (w *Wrapper) Run(ctx context.Context, out chan<- *codec.EventMessage) {
	var ctr int
	var wait time.Duration

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		ctr++

		fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		raw, err := w.Poll.GetNewEntries(fetchCtx)
		cancel()

		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Warn("error polling filter", "filter", w.Name, "event", w.Kind, "err", err)
			wait = computeWait(ctr+2, w.Backoff)
			continue
		}

		messages, err := w.Decode(raw)
		if err != nil {
			var mismatch *codec.SchemaMismatch
			if errors.As(err, &mismatch) {
				log.Warn("skipping event with schema mismatch", "filter", w.Name, "err", err)
			} else {
				log.Warn("error decoding filter entries", "filter", w.Name, "err", err)
			}
		}

		if len(messages) != 0 {
			ctr = 0
			for _, m := range messages {
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
			}
		}

		wait = computeWait(ctr, w.Backoff)
	}
}
