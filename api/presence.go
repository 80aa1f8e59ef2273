package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"peerlink/peering"
	"peerlink/presence"
)

const (
	presencePongTimeout  = 60 * time.Second
	presencePingInterval = 30 * time.Second
	presenceWriteTimeout = 10 * time.Second
)

var errUnavailableRegistry = fmt.Errorf("presence transport: peer registry: %w", peering.ErrUnavailable)

type welcomeMessage struct {
	Type   string `json:"type"`
	PeerID string `json:"peerId"`
}

// handlePresence keeps one online peer registered for as long as its
// websocket stays open.
func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeError(w, r, errUnavailableRegistry)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugw("presence upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.Close()

	peer := s.registry.Connect(r.URL.Query().Get("app"), presence.SourceWebsocket)
	defer func() {
		if err := s.registry.Disconnect(peer.ID); err != nil {
			log.Debugw("disconnect presence peer", "peer", peer.ID, "err", err)
		}
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(presenceWriteTimeout))
	if err := conn.WriteJSON(welcomeMessage{Type: "welcome", PeerID: peer.ID}); err != nil {
		log.Debugw("send presence welcome", "peer", peer.ID, "err", err)
		return
	}

	done := make(chan struct{})
	defer close(done)
	go keepAlive(conn, done)

	_ = conn.SetReadDeadline(time.Now().Add(presencePongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(presencePongTimeout))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debugw("presence connection closed", "peer", peer.ID, "err", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(presencePongTimeout))
	}
}

func keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(presencePingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(presenceWriteTimeout)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
