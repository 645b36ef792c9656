// Package hub fans out decoded chain events to WebSocket subscribers: one
// Hub per chain holds the live subscriber set and owns that chain's
// Filter Manager lifecycle; one Subscriber per connection owns an
// outbound queue and detects client disconnect.
package hub

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ethereum/go-ethereum/log"

	"github.com/polyswarm/polyswarmd-go/internal/codec"
)

const (
	outboundQueueSize = 256
	idleReadWait      = 500 * time.Millisecond

	// closeCodeSlowConsumer is a private-use WebSocket close code (RFC 6455
	// §7.4.2 reserves 4000-4999) distinguishing a subscriber dropped for
	// falling behind from an ordinary disconnect.
	closeCodeSlowConsumer = 4000
)

// Subscriber wraps a single upgraded WebSocket connection with a bounded
// outbound queue. Producers (a Hub's broadcast, or a MessageGroup's
// Relay) enqueue messages; Run drains the queue to the socket and polls
// for client-initiated close when the queue runs dry.
type Subscriber struct {
	ID   uuid.UUID
	conn *websocket.Conn

	queue  chan *codec.EventMessage
	closed int32
}

// NewSubscriber wraps conn. The queue is bounded: a producer that cannot
// enqueue (queue full) must treat this subscriber as dead rather than
// block, per the Hub's broadcast isolation contract.
func NewSubscriber(conn *websocket.Conn) *Subscriber {
	return &Subscriber{
		ID:    uuid.New(),
		conn:  conn,
		queue: make(chan *codec.EventMessage, outboundQueueSize),
	}
}

// Enqueue offers msg to the subscriber's outbound queue without blocking.
// It reports false if the queue is full or the subscriber already closed.
func (s *Subscriber) Enqueue(msg *codec.EventMessage) bool {
	if atomic.LoadInt32(&s.closed) != 0 {
		return false
	}
	select {
	case s.queue <- msg:
		return true
	default:
		return false
	}
}

// Close marks the subscriber dead and closes the underlying connection.
// Safe to call more than once.
func (s *Subscriber) Close() {
	if atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		s.conn.Close()
	}
}

// CloseDropped closes the connection after best-effort writing a close
// frame with closeCodeSlowConsumer, for a subscriber the Hub dropped
// because its outbound queue overflowed rather than one that hung up on
// its own. Safe to call more than once.
func (s *Subscriber) CloseDropped() {
	if atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(closeCodeSlowConsumer, "subscriber queue overflow")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		s.conn.Close()
	}
}

func (s *Subscriber) isClosed() bool {
	return atomic.LoadInt32(&s.closed) != 0
}

// Run sends the synthetic `connected` frame, then loops: drain the
// outbound queue to the socket, and whenever it runs dry for
// idleReadWait, perform a non-blocking read to detect a client-initiated
// close. It returns when the connection closes, by either direction.
func (s *Subscriber) Run(startTime time.Time) {
	connected := &codec.EventMessage{
		Event: "connected",
		Data:  map[string]interface{}{"start_time": strconv.FormatInt(startTime.Unix(), 10)},
	}
	if err := s.write(connected); err != nil {
		s.Close()
		return
	}

	for !s.isClosed() {
		select {
		case msg, ok := <-s.queue:
			if !ok {
				s.Close()
				return
			}
			if err := s.write(msg); err != nil {
				log.Debug("websocket subscriber write failed", "id", s.ID, "err", err)
				s.Close()
				return
			}
		case <-time.After(idleReadWait):
			if err := s.checkAlive(); err != nil {
				log.Debug("websocket subscriber disconnected", "id", s.ID, "err", err)
				s.Close()
				return
			}
		}
	}
}

// RunWriter drains the outbound queue to the socket like Run, but performs
// no reads of its own: it is for a bidirectional connection (such as
// /messages/<guid>) whose caller owns a foreground read loop on the same
// conn and calls Close once that loop detects disconnect. Concurrent reads
// on one *websocket.Conn are not supported, so Run and RunWriter must
// never be used on the same Subscriber at once.
func (s *Subscriber) RunWriter(startTime time.Time) {
	connected := &codec.EventMessage{
		Event: "connected",
		Data:  map[string]interface{}{"start_time": strconv.FormatInt(startTime.Unix(), 10)},
	}
	if err := s.write(connected); err != nil {
		s.Close()
		return
	}

	for !s.isClosed() {
		select {
		case msg := <-s.queue:
			if err := s.write(msg); err != nil {
				log.Debug("websocket subscriber write failed", "id", s.ID, "err", err)
				s.Close()
				return
			}
		case <-time.After(idleReadWait):
		}
	}
}

func (s *Subscriber) write(msg *codec.EventMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("hub: marshal event message: %w", err)
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// checkAlive performs a short-deadline read to surface a client-initiated
// close without blocking the drain loop; a deadline timeout is expected
// and not an error, any other read failure signals disconnect.
func (s *Subscriber) checkAlive() error {
	if err := s.conn.SetReadDeadline(time.Now().Add(idleReadWait)); err != nil {
		return err
	}
	_, _, err := s.conn.ReadMessage()
	if err == nil {
		return nil
	}
	if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
		return nil
	}
	return err
}
