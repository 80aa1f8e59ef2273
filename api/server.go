// Package api exposes the peer service over HTTP and websockets.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	logging "github.com/ipfs/go-log/v2"

	"peerlink/auth"
	"peerlink/peering"
	"peerlink/presence"
)

var log = logging.Logger("peerlink/api")

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the HTTP server to its collaborators. Events may be nil, in
// which case /ws/events is not served.
type Options struct {
	Service       *peering.Service
	Authenticator *auth.Authenticator
	Registry      *presence.Registry
	Events        http.Handler
	Store         Pinger
}

// Server holds the HTTP handlers.
type Server struct {
	service  *peering.Service
	auth     *auth.Authenticator
	registry *presence.Registry
	events   http.Handler
	store    Pinger

	upgrader websocket.Upgrader
}

// NewServer validates options and builds a server.
func NewServer(options Options) (*Server, error) {
	if options.Service == nil {
		return nil, errors.New("peer service is required")
	}
	if options.Authenticator == nil {
		return nil, errors.New("authenticator is required")
	}

	return &Server{
		service:  options.Service,
		auth:     options.Authenticator,
		registry: options.Registry,
		events:   options.Events,
		store:    options.Store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(optionalAuth(s.auth.Tokens()))

		r.Post("/session", s.handleLogin)
		r.Post("/users", s.handleCreateUser)
		r.Get("/users/{userId}/peers/{app}", s.handleGetPeerByUserAndApp)

		r.Get("/peers", s.handleListPeers)
		r.Get("/peers/{peerId}", s.handleGetPeer)
		r.Post("/peers/{peerId}/attach", s.handleAttachPeer)

		r.Post("/registrations", s.handleRegisterPeer)

		r.Get("/links", s.handleListPeersLinks)
		r.Get("/links/peers", s.handleListLinkedPeers)
		r.Post("/links", s.handleRequestPeerLink)
		r.Post("/links/{linkId}/confirm", s.handleConfirmPeerLink)
		r.Delete("/links/{linkId}", s.handleRevokePeerLink)
	})

	r.Route("/ws", func(r chi.Router) {
		r.Get("/peer", s.handlePresence)
		if s.events != nil {
			r.Handle("/events", s.events)
		}
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			log.Warnw("health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
