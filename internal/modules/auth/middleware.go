package auth

import (
	"net/http"
	"strings"

	"github.com/georgemunganga/warehouse-backend/internal/log"
)

// Middleware attaches the caller of a valid "Authorization: Bearer" token to the request
// context. Missing or invalid tokens fall back to Anonymous.
func Middleware(s Service, logger log.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Noop
	}
	logger = logger.WithValues(log.Kv{"svc": "auth.Middleware"})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearer(r.Header.Get("Authorization"))
			if !ok || s == nil {
				next.ServeHTTP(w, r)
				return
			}

			caller, err := s.Verify(r.Context(), token)
			if err != nil {
				logger.Debugf("ignoring bearer token: %s", err)
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func bearer(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
