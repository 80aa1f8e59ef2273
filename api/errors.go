package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"peerlink/auth"
	"peerlink/peering"
	"peerlink/storage"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errBadRequest = errors.New("api: bad request")

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, peering.ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, peering.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, peering.ErrInvalidArgument),
		errors.Is(err, auth.ErrInvalidPassword),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, peering.ErrConflict), errors.Is(err, storage.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, peering.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		message = "internal server error"
	} else {
		log.Debugw("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debugw("write response", "err", err)
	}
}
