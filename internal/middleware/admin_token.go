package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"gqlorm/internal/logging"
)

// DefaultAdminTokenHeader carries the shared admin token.
const DefaultAdminTokenHeader = "X-Admin-Token"

// AdminTokenConfig controls shared-token protection of admin endpoints.
type AdminTokenConfig struct {
	Token      string
	HeaderName string
}

// AdminToken rejects requests that do not present the configured token.
func AdminToken(cfg AdminTokenConfig) (func(http.Handler) http.Handler, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("admin token is required")
	}
	headerName := strings.TrimSpace(cfg.HeaderName)
	if headerName == "" {
		headerName = DefaultAdminTokenHeader
	}

	expected := sha256.Sum256([]byte(token))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := strings.TrimSpace(r.Header.Get(headerName))
			if !tokenMatches(provided, expected) {
				logging.FromContext(r.Context()).Warn("admin token rejected",
					slog.String("header", headerName),
					slog.Bool("present", provided != ""),
					slog.String("remote_addr", r.RemoteAddr),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = fmt.Fprint(w, `{"error":"unauthorized"}`)
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

// tokenMatches compares digests so timing does not depend on token length.
func tokenMatches(provided string, expected [sha256.Size]byte) bool {
	digest := sha256.Sum256([]byte(provided))
	return subtle.ConstantTimeCompare(digest[:], expected[:]) == 1
}
