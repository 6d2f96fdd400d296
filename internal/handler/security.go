package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/coursedesk/sales-assistant/internal/domain/auth"
)

const apiKeyHeader = "X-API-Key"

// Security authenticates admin requests by API key. Keys are stored hashed:
// the presented key is HMAC-SHA256'd with the server secret and looked up by
// the digest, so a database leak exposes no usable keys.
type Security struct {
	keys   auth.Repository
	secret []byte
}

// NewSecurity creates a Security using the given key store and HMAC secret.
func NewSecurity(keys auth.Repository, secret string) *Security {
	return &Security{keys: keys, secret: []byte(secret)}
}

func (s *Security) hash(key string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// RequireAPIKey returns middleware that rejects requests without a valid API
// key carrying the given scope.
func (s *Security) RequireAPIKey(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(apiKeyHeader)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "missing API key")
				return
			}

			info, err := s.keys.FindByHash(r.Context(), s.hash(key))
			if err != nil {
				zctx.From(r.Context()).Warn("api key rejected", zap.Error(err))
				writeError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			if !hasScope(info.Scopes, scope) {
				writeError(w, http.StatusForbidden, "insufficient scope")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want || s == "*" {
			return true
		}
	}
	return false
}
