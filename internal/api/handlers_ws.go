package api

import (
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/polyswarm/polyswarmd-go/internal/chain"
	"github.com/polyswarm/polyswarmd-go/internal/hub"
)

// handleEventsStream answers `GET /events?chain=`: it upgrades to a
// WebSocket and registers a long-lived Subscriber with the target
// chain's Hub, which fans out every decoded chain event plus block
// ticks, per §4.4/§6.
func (s *Server) handleEventsStream(w http.ResponseWriter, r *http.Request) {
	c, apiErr := resolveChain(s, r)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	h, ok := s.Hubs[c.Name]
	if !ok || h == nil {
		writeAPIError(w, failNotFound("no event hub configured for this chain"))
		return
	}

	conn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sub := hub.NewSubscriber(conn)
	if err := h.Register(r.Context(), sub); err != nil {
		sub.Close()
		return
	}
	defer h.Unregister(sub)

	sub.Run(s.StartTime)
}

// handleScopedChannelEvents answers `GET /events/{guid}`: it resolves the
// offer-multisig instance for guid on the home chain, installs a scoped
// Filter Manager over it, and relays the channel's first lifecycle event
// (closed/settle-started/settle-challenged) down a single WebSocket
// message before closing, per §4.6.
func (s *Server) handleScopedChannelEvents(w http.ResponseWriter, r *http.Request) {
	c, ok := s.Chains[chain.Home]
	if !ok || c == nil {
		writeAPIError(w, failValidation("home chain is not configured on this instance"))
		return
	}

	guid, err := uuid.Parse(chi.URLParam(r, "guid"))
	if err != nil {
		writeAPIError(w, failValidation("guid must be a valid UUID"))
		return
	}
	guidInt := new(big.Int).SetBytes(guid[:])

	channelAddress, err := c.ChannelAddress(r.Context(), guidInt)
	if err != nil {
		writeAPIError(w, failNotFound(err.Error()))
		return
	}

	manager, err := chain.BuildChannelManager(r.Context(), c, channelAddress, s.Codec)
	if err != nil {
		writeAPIError(w, failUpstream(err.Error()))
		return
	}

	conn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	msg, err := hub.ScopedChannelEvents(r.Context(), manager)
	if err != nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, payload)
}

// handleMessagesRelay answers `GET /messages/{guid}`: it upgrades to a
// WebSocket, joins the GUID's MessageGroup, and relays every validated
// frame the socket sends to every joined socket, the sending socket
// included, per §4.9. A
// socket must send a frame with its own from_socket identifier via
// RegisterSender before any frame from it is relayed.
func (s *Server) handleMessagesRelay(w http.ResponseWriter, r *http.Request) {
	guid, err := uuid.Parse(chi.URLParam(r, "guid"))
	if err != nil {
		writeAPIError(w, failValidation("guid must be a valid UUID"))
		return
	}

	conn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sub := hub.NewSubscriber(conn)
	group := s.Relay.Group(guid)
	group.Join(sub)
	defer func() {
		group.Leave(sub)
		s.Relay.Prune(guid)
		sub.Close()
	}()

	go sub.RunWriter(s.StartTime)

	registered := false
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := hub.ParseMessageFrame(raw)
		if err != nil {
			continue
		}
		if frame.FromSocket != "" && !registered {
			group.RegisterSender(frame.FromSocket)
			registered = true
		}
		_ = group.Relay(frame)
	}
}
