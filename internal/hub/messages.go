package hub

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/polyswarm/polyswarmd-go/internal/codec"
)

var messageSchema = gojsonschema.NewStringLoader(`{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["type", "state"],
	"properties": {
		"type": {"type": "string"},
		"state": {"type": "object"},
		"from_socket": {"type": "string"},
		"to_socket": {"type": "string"},
		"artifact": {"type": "string"},
		"r": {"type": "string"},
		"v": {"type": "string"},
		"s": {"type": "string"}
	}
}`)

// MessageFrame is one frame relayed through a /messages/<guid> group.
type MessageFrame struct {
	Type       string                 `json:"type"`
	State      map[string]interface{} `json:"state"`
	FromSocket string                 `json:"from_socket,omitempty"`
	ToSocket   string                 `json:"to_socket,omitempty"`
	Artifact   string                 `json:"artifact,omitempty"`
	R          string                 `json:"r,omitempty"`
	V          string                 `json:"v,omitempty"`
	S          string                 `json:"s,omitempty"`
}

// stateKeysHiddenUnless are state keys withheld from relayed frames unless
// the frame's type is one of the reveal types below. This mirrors the
// source system's behavior of keeping verdict material private until the
// offer reaches a closing state.
var stateKeysHiddenUnless = []string{"mask", "verdicts"}

var stateRevealTypes = map[string]bool{
	"accept": true,
	"payout": true,
}

// ParseMessageFrame validates raw against the message schema and decodes
// it into a MessageFrame.
func ParseMessageFrame(raw []byte) (*MessageFrame, error) {
	result, err := gojsonschema.Validate(messageSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("hub: validate message frame: %w", err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("hub: message frame failed schema validation: %v", result.Errors())
	}
	var frame MessageFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("hub: decode message frame: %w", err)
	}
	return &frame, nil
}

// outbound renders the frame as the relay wire shape: the raw state
// alongside a filtered copy with sensitive keys withheld, unless this
// frame's type is a reveal type.
func (f *MessageFrame) outbound() map[string]interface{} {
	state := f.State
	if !stateRevealTypes[f.Type] {
		filtered := make(map[string]interface{}, len(f.State))
		for k, v := range f.State {
			hidden := false
			for _, hk := range stateKeysHiddenUnless {
				if k == hk {
					hidden = true
					break
				}
			}
			if !hidden {
				filtered[k] = v
			}
		}
		state = filtered
	}

	out := map[string]interface{}{
		"type":      f.Type,
		"raw_state": f.State,
		"state":     state,
	}
	if f.FromSocket != "" {
		out["from_socket"] = f.FromSocket
	}
	if f.ToSocket != "" {
		out["to_socket"] = f.ToSocket
	}
	if f.Artifact != "" {
		out["artifact"] = f.Artifact
	}
	if f.R != "" {
		out["r"] = f.R
	}
	if f.V != "" {
		out["v"] = f.V
	}
	if f.S != "" {
		out["s"] = f.S
	}
	return out
}

// MessageGroup is the set of sockets relaying offer-channel messages for
// a single GUID. Unlike the source system's unauthenticated broadcast,
// a frame is only relayed if its from_socket identifier was previously
// registered on this group — an unregistered sender cannot inject
// messages into a channel it never joined.
type MessageGroup struct {
	mu        sync.Mutex
	sockets   map[*Subscriber]bool
	senderIDs map[string]bool
}

func newMessageGroup() *MessageGroup {
	return &MessageGroup{
		sockets:   make(map[*Subscriber]bool),
		senderIDs: make(map[string]bool),
	}
}

// Join adds sub to the group's socket set.
func (g *MessageGroup) Join(sub *Subscriber) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sockets[sub] = true
}

// Leave removes sub from the group.
func (g *MessageGroup) Leave(sub *Subscriber) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sockets, sub)
}

// RegisterSender marks senderID as allowed to originate frames on this
// group. handleMessagesRelay calls it with the from_socket of the first
// frame a socket sends that names one.
func (g *MessageGroup) RegisterSender(senderID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.senderIDs[senderID] = true
}

// isRegisteredSender reports whether senderID has previously registered.
func (g *MessageGroup) isRegisteredSender(senderID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.senderIDs[senderID]
}

// empty reports whether the group has no joined sockets.
func (g *MessageGroup) empty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sockets) == 0
}

// ErrUnregisteredSender is returned by Relay when a frame's from_socket
// has not previously registered on the group.
var ErrUnregisteredSender error = fmt.Errorf("hub: from_socket not registered on this channel")

// ErrUnknownToSocket is returned by Relay when a frame names a to_socket
// that has not registered as a member of this group, per the spec's
// open-question resolution to reject addressing unknown peers.
var ErrUnknownToSocket error = fmt.Errorf("hub: to_socket does not name a known member of this channel")

// Relay broadcasts frame to every joined socket, provided frame.FromSocket
// was previously registered via RegisterSender and, when frame.ToSocket is
// set, it names an already-registered member. It returns
// ErrUnregisteredSender or ErrUnknownToSocket otherwise, without touching
// any socket.
func (g *MessageGroup) Relay(frame *MessageFrame) error {
	if frame.FromSocket == "" || !g.isRegisteredSender(frame.FromSocket) {
		return ErrUnregisteredSender
	}
	if frame.ToSocket != "" && !g.isRegisteredSender(frame.ToSocket) {
		return ErrUnknownToSocket
	}

	msg := &codec.EventMessage{Event: "message", Data: frame.outbound()}

	g.mu.Lock()
	targets := make([]*Subscriber, 0, len(g.sockets))
	for sub := range g.sockets {
		targets = append(targets, sub)
	}
	g.mu.Unlock()

	for _, sub := range targets {
		sub.Enqueue(msg)
	}
	return nil
}

// MessageRelay owns the GUID-keyed MessageGroup registry for
// /messages/<guid> routes, pruning groups once their last socket leaves.
type MessageRelay struct {
	mu     sync.Mutex
	groups map[uuid.UUID]*MessageGroup
}

// NewMessageRelay constructs an empty relay.
func NewMessageRelay() *MessageRelay {
	return &MessageRelay{groups: make(map[uuid.UUID]*MessageGroup)}
}

// Group returns the MessageGroup for guid, creating it if absent.
func (r *MessageRelay) Group(guid uuid.UUID) *MessageGroup {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[guid]
	if !ok {
		g = newMessageGroup()
		r.groups[guid] = g
	}
	return g
}

// Prune removes guid's group from the registry if it has no joined
// sockets remaining.
func (r *MessageRelay) Prune(guid uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.groups[guid]; ok && g.empty() {
		delete(r.groups, guid)
	}
}
