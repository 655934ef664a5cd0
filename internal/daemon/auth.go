package daemon

import (
	"crypto/subtle"
	"net/http"

	"filedrop/internal/api"
	"filedrop/internal/logging"
)

// APIKeyHeader carries the shared key on authenticated routes.
const APIKeyHeader = "X-API-Key"

// authMiddleware returns a middleware that validates the shared API key.
// If key is empty, no authentication is required and all requests pass through.
// Otherwise, requests must include a matching X-API-Key header.
func (s *apiServer) authMiddleware(key string, next http.HandlerFunc) http.HandlerFunc {
	if key == "" {
		return next
	}
	want := []byte(key)
	return func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get(APIKeyHeader))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			s.log().Debug("rejected request without valid api key",
				logging.String("path", r.URL.Path),
				logging.String("remote", r.RemoteAddr),
			)
			s.writeError(w, http.StatusUnauthorized, api.CodeUnauthorized, "invalid or missing API key")
			return
		}
		next(w, r)
	}
}
