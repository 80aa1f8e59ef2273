package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"peerlink/models"
	"peerlink/peering"
)

const maxRequestBodySize = 1 << 20

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createUserRequest struct {
	Username string `json:"username"`
	Realname string `json:"realname"`
	Password string `json:"password"`
}

type linkRequest struct {
	PeerID int64  `json:"peerId"`
	App    string `json:"app"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	session, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, r, fmt.Errorf("username and password are required: %w", errBadRequest))
		return
	}

	user, err := s.auth.Register(r.Context(), req.Username, req.Realname, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleListPeers(w http.ResponseWriter, r *http.Request) {
	peers, err := s.service.ListPeers(r.Context(), peering.ViewerFromContext(r.Context()), r.URL.Query().Get("app"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, peers)
}

func (s *Server) handleGetPeer(w http.ResponseWriter, r *http.Request) {
	peer, err := s.service.GetPeer(r.Context(), peering.ViewerFromContext(r.Context()), chi.URLParam(r, "peerId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, peer)
}

func (s *Server) handleAttachPeer(w http.ResponseWriter, r *http.Request) {
	peer, err := s.service.AttachPeer(r.Context(), peering.ViewerFromContext(r.Context()), chi.URLParam(r, "peerId"), r.URL.Query().Get("app"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, peer)
}

func (s *Server) handleGetPeerByUserAndApp(w http.ResponseWriter, r *http.Request) {
	userID, err := int64Param(r, "userId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	peer, err := s.service.GetPeerByUserAndApp(r.Context(), peering.ViewerFromContext(r.Context()), userID, chi.URLParam(r, "app"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, peer)
}

func (s *Server) handleRegisterPeer(w http.ResponseWriter, r *http.Request) {
	var req peering.RegisterPeerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	peer, err := s.service.RegisterPeer(r.Context(), peering.ViewerFromContext(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, peer)
}

func (s *Server) handleListPeersLinks(w http.ResponseWriter, r *http.Request) {
	links, err := s.service.ListPeersLinks(r.Context(), peering.ViewerFromContext(r.Context()), r.URL.Query().Get("app"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func (s *Server) handleListLinkedPeers(w http.ResponseWriter, r *http.Request) {
	peers, err := s.service.ListLinkedPeers(r.Context(), peering.ViewerFromContext(r.Context()), r.URL.Query().Get("app"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, peers)
}

func (s *Server) handleRequestPeerLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	link, err := s.service.RequestPeerLink(r.Context(), peering.ViewerFromContext(r.Context()), req.PeerID, req.App)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.LinkData(*link))
}

func (s *Server) handleConfirmPeerLink(w http.ResponseWriter, r *http.Request) {
	linkID, err := int64Param(r, "linkId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	link, err := s.service.ConfirmPeerLink(r.Context(), peering.ViewerFromContext(r.Context()), linkID, r.URL.Query().Get("app"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.LinkData(*link))
}

func (s *Server) handleRevokePeerLink(w http.ResponseWriter, r *http.Request) {
	linkID, err := int64Param(r, "linkId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.service.RevokePeerLink(r.Context(), peering.ViewerFromContext(r.Context()), linkID, r.URL.Query().Get("app")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %v: %w", err, errBadRequest)
	}
	return nil
}

func int64Param(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, errBadRequest)
	}
	return value, nil
}
