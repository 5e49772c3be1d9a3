package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/delivergo/pricing/internal/domain/auth"
)

// apiKeyHeader carries the service-to-service API key. This is deployment
// plumbing, not user authentication: user identity is resolved upstream.
const apiKeyHeader = "X-API-Key"

// APIKeyAuth returns a middleware that authenticates calling services via
// HMAC-SHA256 hashed API keys with a constant-time comparison.
func APIKeyAuth(keys auth.Repository, pepper []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(apiKeyHeader)
			if provided == "" {
				writeError(w, r, http.StatusUnauthorized, "missing api key")
				return
			}

			mac := hmac.New(sha256.New, pepper)
			mac.Write([]byte(provided))
			hash := mac.Sum(nil)

			key, err := keys.FindByHash(r.Context(), hex.EncodeToString(hash))
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}

			// Constant-time re-compare guards against a stale or wrong row
			// from the repository.
			stored, err := hex.DecodeString(key.KeyHash)
			if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
				writeError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
