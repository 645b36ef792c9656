package hub

import (
	"context"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/ethereum/go-ethereum/log"

	"github.com/polyswarm/polyswarmd-go/internal/codec"
)

// FilterManager is the subset of internal/filters.Manager the Hub needs:
// something it can start to obtain a message stream, and stop when the
// last subscriber drains.
type FilterManager interface {
	Start(ctx context.Context) (<-chan *codec.EventMessage, error)
	Stop()
}

// Hub is the per-chain registry of live WebSocket subscribers. It lazily
// starts its chain's Filter Manager when the first subscriber registers,
// and stops it when the subscriber set drains to zero (the Stop-on-drain
// policy recorded in the project's open-question ledger). All state is
// guarded by a single mutex; broadcast never performs I/O while holding
// it, only channel enqueues.
type Hub struct {
	mu          sync.Mutex
	subscribers mapset.Set[*Subscriber]

	newManager func() FilterManager
	manager    FilterManager
	cancel     context.CancelFunc
}

// New constructs a Hub. newManager is called to build a fresh
// FilterManager each time the subscriber set transitions from empty to
// non-empty.
func New(newManager func() FilterManager) *Hub {
	return &Hub{
		subscribers: mapset.NewSet[*Subscriber](),
		newManager:  newManager,
	}
}

// Register adds sub to the live set, starting the Filter Manager and its
// broadcast pump if sub is the first subscriber.
func (h *Hub) Register(ctx context.Context, sub *Subscriber) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.subscribers.Add(sub)

	if h.manager == nil {
		h.manager = h.newManager()
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		stream, err := h.manager.Start(runCtx)
		if err != nil {
			cancel()
			h.manager = nil
			h.subscribers.Remove(sub)
			return err
		}
		h.cancel = cancel
		go h.pump(stream)
	}
	return nil
}

// Unregister removes sub from the live set, stopping the Filter Manager
// if this was the last subscriber.
func (h *Hub) Unregister(sub *Subscriber) {
	h.mu.Lock()
	h.subscribers.Remove(sub)
	drained := h.subscribers.Cardinality() == 0
	manager := h.manager
	cancel := h.cancel
	if drained {
		h.manager = nil
		h.cancel = nil
	}
	h.mu.Unlock()

	if drained && manager != nil {
		cancel()
		manager.Stop()
	}
}

// pump reads decoded messages off the Filter Manager's stream and
// broadcasts each to the current subscriber set, until the stream closes.
func (h *Hub) pump(stream <-chan *codec.EventMessage) {
	for msg := range stream {
		h.broadcast(msg)
	}
}

// broadcast enqueues msg to every live subscriber under the lock. A
// subscriber whose queue is full (or already closed) is removed from the
// set under the same lock, then dropped with a distinguished close code
// once the lock is released (closing a socket is I/O and must not happen
// while broadcast holds the lock).
func (h *Hub) broadcast(msg *codec.EventMessage) {
	h.mu.Lock()
	var dead []*Subscriber
	h.subscribers.Each(func(sub *Subscriber) bool {
		if !sub.Enqueue(msg) {
			dead = append(dead, sub)
		}
		return false
	})
	for _, sub := range dead {
		h.subscribers.Remove(sub)
	}
	h.mu.Unlock()

	for _, sub := range dead {
		log.Debug("dropping unresponsive websocket subscriber", "id", sub.ID)
		sub.CloseDropped()
	}
}

// Count reports the current live subscriber count, chiefly for tests and
// status reporting.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscribers.Cardinality()
}
