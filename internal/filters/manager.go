package filters

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/polyswarm/polyswarmd-go/internal/codec"
)

// Manager owns a chain's set of Wrappers, starting and stopping their
// poll loops as a unit and fanning their output into a single channel.
// Start/Stop are idempotent and serialized: concurrent callers never race
// over the running state.
type Manager struct {
	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	out      chan *codec.EventMessage
	wrappers []*Wrapper
}

// NewManager constructs an empty Manager. Wrappers must be registered
// before Start.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a Wrapper to the managed set. It is only valid to call
// before Start or after Stop.
func (m *Manager) Register(w *Wrapper) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("filters: cannot register %s while manager is running", w.Name)
	}
	m.wrappers = append(m.wrappers, w)
	return nil
}

// Start spawns one goroutine per registered Wrapper and returns the
// shared output channel. Calling Start while already running returns the
// existing channel without spawning new workers.
func (m *Manager) Start(ctx context.Context) (<-chan *codec.EventMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return m.out, nil
	}
	if len(m.wrappers) == 0 {
		return nil, fmt.Errorf("filters: no wrappers registered")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.out = make(chan *codec.EventMessage, 256)
	m.running = true

	for _, w := range m.wrappers {
		w := w
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			w.Run(runCtx, m.out)
		}()
	}

	log.Info("filter manager started", "filters", len(m.wrappers))
	return m.out, nil
}

// Stop cancels all poll loops, waits for them to exit, uninstalls every
// filter (best-effort), and clears the registered wrappers, so wrappers
// must be registered again before the manager can Start again.
// Calling Stop when not running is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	wrappers := m.wrappers
	out := m.out
	m.running = false
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	close(out)

	for _, w := range wrappers {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		if err := w.Poll.Uninstall(ctx); err != nil {
			log.Warn("could not uninstall filter", "filter", w.Name, "err", err)
		}
		cancel()
	}

	m.mu.Lock()
	m.wrappers = nil
	m.mu.Unlock()
}

// Running reports whether the manager currently has active poll loops.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
