package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"peerlink/auth"
	"peerlink/peering"
)

// TokenVerifier resolves a session token to its user ID.
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

var _ TokenVerifier = (*auth.Tokens)(nil)

// optionalAuth stores the request's viewer in its context. Requests without an
// Authorization header run as the anonymous viewer; a bad token is rejected.
func optionalAuth(tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				writeError(w, r, auth.ErrInvalidToken)
				return
			}

			userID, err := tokens.Verify(token)
			if err != nil {
				writeError(w, r, err)
				return
			}

			ctx := peering.WithViewer(r.Context(), peering.UserViewer(userID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestLogger logs one line per request through go-log.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debugw("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
