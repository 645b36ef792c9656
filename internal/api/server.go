package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/polyswarm/polyswarmd-go/internal/authclient"
	"github.com/polyswarm/polyswarmd-go/internal/chain"
	"github.com/polyswarm/polyswarmd-go/internal/codec"
	"github.com/polyswarm/polyswarmd-go/internal/config"
	"github.com/polyswarm/polyswarmd-go/internal/hub"
)

// authWhitelist is the set of routes reachable without an API key even
// when the deployment requires one, per §6.
var authWhitelist = map[string]bool{
	"/status":           true,
	"/relay/withdrawal": true,
	"/transactions":     true,
}

// Server holds every wired dependency the HTTP/WebSocket routes need:
// one Chain/Hub pair per configured network, the message relay for
// /messages/<guid>, the shared codec, and the auth boundary client.
type Server struct {
	Config    *config.Config
	Chains    map[chain.Name]*chain.Chain
	Hubs      map[chain.Name]*hub.Hub
	Relay     *hub.MessageRelay
	Auth      *authclient.Client
	Codec     *codec.Codec
	StartTime time.Time

	Upgrader websocket.Upgrader
}

// NewServer constructs a Server. chains and hubs must share the same key
// set (every configured chain has a corresponding Hub).
func NewServer(cfg *config.Config, chains map[chain.Name]*chain.Chain, hubs map[chain.Name]*hub.Hub, authClient *authclient.Client, cdc *codec.Codec) *Server {
	return &Server{
		Config:    cfg,
		Chains:    chains,
		Hubs:      hubs,
		Relay:     hub.NewMessageRelay(),
		Auth:      authClient,
		Codec:     cdc,
		StartTime: time.Now(),
		Upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// Routes builds the chi router wiring every HTTP and WebSocket route in
// §6 over s.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.authMiddleware)

	r.Get("/status", s.handleStatus)
	r.Get("/nonce", s.handleNonce)
	r.Get("/transactions", s.handleGetTransactions)
	r.Post("/transactions", s.handlePostTransactions)
	r.Get("/relay/fees", s.handleRelayFees)
	r.Post("/relay/deposit", s.handleRelayDeposit)
	r.Post("/relay/withdrawal", s.handleRelayWithdrawal)

	r.Get("/events", s.handleEventsStream)
	r.Get("/events/{guid}", s.handleScopedChannelEvents)
	r.Get("/messages/{guid}", s.handleMessagesRelay)

	return r
}
