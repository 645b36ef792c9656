package hub

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/polyswarm/polyswarmd-go/internal/codec"
)

var upgrader = websocket.Upgrader{}

// newTestSubscriber opens a real client/server WebSocket pair over an
// httptest server and wraps the server side in a Subscriber. It returns
// the Subscriber plus the client conn so tests can read what gets sent.
func newTestSubscriber(t *testing.T) (*Subscriber, *websocket.Conn) {
	t.Helper()

	var serverSub *Subscriber
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			close(done)
			return
		}
		serverSub = NewSubscriber(conn)
		close(done)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + srv.URL[len("http"):]
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	<-done
	if serverSub == nil {
		t.Fatal("server subscriber was never created")
	}
	return serverSub, client
}

type stubFilterManager struct {
	out     chan *codec.EventMessage
	started bool
	stopped bool
}

func (m *stubFilterManager) Start(ctx context.Context) (<-chan *codec.EventMessage, error) {
	m.started = true
	return m.out, nil
}

func (m *stubFilterManager) Stop() {
	m.stopped = true
}

func TestHubRegisterStartsManagerOnlyOnce(t *testing.T) {
	t.Parallel()

	var managers []*stubFilterManager
	h := New(func() FilterManager {
		m := &stubFilterManager{out: make(chan *codec.EventMessage, 4)}
		managers = append(managers, m)
		return m
	})

	sub1, _ := newTestSubscriber(t)
	sub2, _ := newTestSubscriber(t)

	if err := h.Register(context.Background(), sub1); err != nil {
		t.Fatalf("register sub1: %v", err)
	}
	if err := h.Register(context.Background(), sub2); err != nil {
		t.Fatalf("register sub2: %v", err)
	}

	if len(managers) != 1 {
		t.Fatalf("expected exactly one manager constructed, got %d", len(managers))
	}
	if h.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", h.Count())
	}
}

func TestHubUnregisterStopsManagerOnDrain(t *testing.T) {
	t.Parallel()

	var m *stubFilterManager
	h := New(func() FilterManager {
		m = &stubFilterManager{out: make(chan *codec.EventMessage, 4)}
		return m
	})

	sub, _ := newTestSubscriber(t)
	if err := h.Register(context.Background(), sub); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !m.started {
		t.Fatal("manager was not started")
	}

	h.Unregister(sub)
	if !m.stopped {
		t.Fatal("manager was not stopped once the subscriber set drained")
	}
	if h.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", h.Count())
	}
}

func TestHubBroadcastIsolatesFullQueue(t *testing.T) {
	t.Parallel()

	h := New(func() FilterManager {
		return &stubFilterManager{out: make(chan *codec.EventMessage)}
	})

	healthy, healthyClient := newTestSubscriber(t)
	full, _ := newTestSubscriber(t)

	if err := h.Register(context.Background(), healthy); err != nil {
		t.Fatalf("register healthy: %v", err)
	}
	if err := h.Register(context.Background(), full); err != nil {
		t.Fatalf("register full: %v", err)
	}

	// Saturate full's outbound queue so the next broadcast cannot enqueue to it.
	for i := 0; i < outboundQueueSize; i++ {
		full.Enqueue(&codec.EventMessage{Event: "filler"})
	}

	h.broadcast(&codec.EventMessage{Event: "tick", Data: map[string]interface{}{"n": 1}})

	select {
	case msg := <-healthy.queue:
		if msg.Event != "tick" {
			t.Fatalf("event = %q, want tick", msg.Event)
		}
	default:
		t.Fatal("healthy subscriber did not receive the broadcast message")
	}

	if h.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 (full subscriber should have been dropped)", h.Count())
	}
	if !full.isClosed() {
		t.Fatal("dropped subscriber should have been closed with a distinguished close code")
	}
	_ = healthyClient
}

func TestScopedChannelEventsReturnsFirstThenStops(t *testing.T) {
	t.Parallel()

	out := make(chan *codec.EventMessage, 1)
	out <- &codec.EventMessage{Event: "closed_agreement"}
	m := &stubFilterManager{out: out}

	msg, err := ScopedChannelEvents(context.Background(), m)
	if err != nil {
		t.Fatalf("ScopedChannelEvents: %v", err)
	}
	if msg.Event != "closed_agreement" {
		t.Fatalf("event = %q", msg.Event)
	}
	if !m.stopped {
		t.Fatal("scoped manager was not stopped after its first event")
	}
}

func TestScopedChannelEventsRespectsContextCancel(t *testing.T) {
	t.Parallel()

	m := &stubFilterManager{out: make(chan *codec.EventMessage)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := ScopedChannelEvents(ctx, m); err == nil {
		t.Fatal("expected context cancellation error")
	}
}

func TestMessageRelayRejectsUnregisteredSender(t *testing.T) {
	t.Parallel()

	relay := NewMessageRelay()
	guid := uuid.New()
	group := relay.Group(guid)

	sub, _ := newTestSubscriber(t)
	group.Join(sub)

	frame := &MessageFrame{Type: "offer", State: map[string]interface{}{"balance": "10"}, FromSocket: "arbiter-1"}
	if err := group.Relay(frame); err != ErrUnregisteredSender {
		t.Fatalf("Relay() err = %v, want ErrUnregisteredSender", err)
	}
}

func TestMessageRelayRejectsUnknownToSocket(t *testing.T) {
	t.Parallel()

	relay := NewMessageRelay()
	guid := uuid.New()
	group := relay.Group(guid)
	group.RegisterSender("arbiter-1")

	sub, _ := newTestSubscriber(t)
	group.Join(sub)

	frame := &MessageFrame{
		Type:       "offer",
		State:      map[string]interface{}{"balance": "10"},
		FromSocket: "arbiter-1",
		ToSocket:   "never-registered",
	}
	if err := group.Relay(frame); err != ErrUnknownToSocket {
		t.Fatalf("Relay() err = %v, want ErrUnknownToSocket", err)
	}
}

func TestMessageRelayBroadcastsToJoinedSockets(t *testing.T) {
	t.Parallel()

	relay := NewMessageRelay()
	guid := uuid.New()
	group := relay.Group(guid)
	group.RegisterSender("arbiter-1")

	a, _ := newTestSubscriber(t)
	b, _ := newTestSubscriber(t)
	group.Join(a)
	group.Join(b)

	frame := &MessageFrame{
		Type:       "offer",
		State:      map[string]interface{}{"balance": "10", "mask": []bool{true}},
		FromSocket: "arbiter-1",
	}
	if err := group.Relay(frame); err != nil {
		t.Fatalf("Relay: %v", err)
	}

	for _, sub := range []*Subscriber{a, b} {
		select {
		case msg := <-sub.queue:
			data, ok := msg.Data["state"].(map[string]interface{})
			if !ok {
				t.Fatalf("state not present or wrong type: %#v", msg.Data)
			}
			if _, present := data["mask"]; present {
				t.Fatal("mask should be hidden for a non-reveal message type")
			}
			raw, ok := msg.Data["raw_state"].(map[string]interface{})
			if !ok || raw["mask"] == nil {
				t.Fatal("raw_state should retain the full unfiltered state")
			}
		default:
			t.Fatal("subscriber did not receive the relayed frame")
		}
	}
}

func TestMessageRelayRevealsMaskOnAcceptType(t *testing.T) {
	t.Parallel()

	relay := NewMessageRelay()
	guid := uuid.New()
	group := relay.Group(guid)
	group.RegisterSender("arbiter-1")

	sub, _ := newTestSubscriber(t)
	group.Join(sub)

	frame := &MessageFrame{
		Type:       "accept",
		State:      map[string]interface{}{"mask": []bool{true}},
		FromSocket: "arbiter-1",
	}
	if err := group.Relay(frame); err != nil {
		t.Fatalf("Relay: %v", err)
	}

	msg := <-sub.queue
	data := msg.Data["state"].(map[string]interface{})
	if _, present := data["mask"]; !present {
		t.Fatal("mask should be revealed for an accept-type message")
	}
}

func TestParseMessageFrameRejectsMissingRequiredFields(t *testing.T) {
	t.Parallel()

	if _, err := ParseMessageFrame([]byte(`{"type": "offer"}`)); err == nil {
		t.Fatal("expected schema validation error for missing state")
	}
}

func TestParseMessageFrameAcceptsMinimalValidFrame(t *testing.T) {
	t.Parallel()

	frame, err := ParseMessageFrame([]byte(`{"type": "offer", "state": {"balance": "1"}}`))
	if err != nil {
		t.Fatalf("ParseMessageFrame: %v", err)
	}
	if frame.Type != "offer" {
		t.Fatalf("type = %q", frame.Type)
	}
}

func TestMessageRelayPruneRemovesEmptyGroup(t *testing.T) {
	t.Parallel()

	relay := NewMessageRelay()
	guid := uuid.New()
	group := relay.Group(guid)

	sub, _ := newTestSubscriber(t)
	group.Join(sub)
	group.Leave(sub)
	relay.Prune(guid)

	if _, stillThere := relay.groups[guid]; stillThere {
		t.Fatal("empty group should have been pruned")
	}
}

func TestSubscriberRunDeliversEnqueuedMessages(t *testing.T) {
	t.Parallel()

	sub, client := newTestSubscriber(t)
	go sub.Run(time.Unix(1700000000, 0))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("reading connected frame: %v", err)
	}
	if !bytes.Contains(payload, []byte("connected")) {
		t.Fatalf("expected connected frame, got %s", payload)
	}

	sub.Enqueue(&codec.EventMessage{Event: "tick", Data: map[string]interface{}{"n": 1}})

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err = client.ReadMessage()
	if err != nil {
		t.Fatalf("reading tick frame: %v", err)
	}
	if !bytes.Contains(payload, []byte("tick")) {
		t.Fatalf("expected tick frame, got %s", payload)
	}
}

func TestSubscriberRunWriterDeliversEnqueuedMessages(t *testing.T) {
	t.Parallel()

	sub, client := newTestSubscriber(t)
	go sub.RunWriter(time.Unix(1700000000, 0))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("reading connected frame: %v", err)
	}
	if !bytes.Contains(payload, []byte("connected")) {
		t.Fatalf("expected connected frame, got %s", payload)
	}

	sub.Enqueue(&codec.EventMessage{Event: "relayed", Data: map[string]interface{}{"n": 1}})

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err = client.ReadMessage()
	if err != nil {
		t.Fatalf("reading relayed frame: %v", err)
	}
	if !bytes.Contains(payload, []byte("relayed")) {
		t.Fatalf("expected relayed frame, got %s", payload)
	}
}

func TestSubscriberRunWriterStopsOnClose(t *testing.T) {
	t.Parallel()

	sub, client := newTestSubscriber(t)
	done := make(chan struct{})
	go func() {
		sub.RunWriter(time.Unix(1700000000, 0))
		close(done)
	}()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := client.ReadMessage(); err != nil {
		t.Fatalf("reading connected frame: %v", err)
	}

	sub.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunWriter did not return after Close")
	}
}
