// Package idempotency guards mutating HTTP requests carrying an Idempotency-Key header, so a
// retried request (for example a task item completion) is not applied twice.
package idempotency

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/georgemunganga/warehouse-backend/internal/httpx"
	"github.com/georgemunganga/warehouse-backend/internal/log"
)

// Header is the request header holding the caller chosen key.
const Header = "Idempotency-Key"

const (
	keyPrefix = "idempotency:"
	keyTTL    = 24 * time.Hour
)

// ErrDuplicate is answered when the key was already used.
var ErrDuplicate = errors.New("request with this idempotency key was already processed")

// Store claims keys.
type Store interface {
	// Claim reports false when the key is already taken.
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisStore keeps the keys in Redis with a 24h TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore returns a Store backed by client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Claim(ctx context.Context, key string) (bool, error) {
	return r.client.SetNX(ctx, keyPrefix+key, 1, keyTTL).Result()
}

func (r *RedisStore) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, keyPrefix+key).Err()
}

// Middleware rejects a mutating request whose key was already claimed with 409. Keys of
// requests that failed (status >= 400) are released so the caller can retry. Store outages
// let the request through.
func Middleware(store Store, logger log.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Noop
	}
	logger = logger.WithValues(log.Kv{"svc": "idempotency.Middleware"})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(Header)
			if key == "" || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			key = r.Method + " " + r.URL.Path + " " + key

			ok, err := store.Claim(r.Context(), key)
			if err != nil {
				logger.Warningf("could not claim idempotency key: %s", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				httpx.Respond(w, http.StatusConflict, map[string]string{"error": ErrDuplicate.Error()})
				return
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if ww.Status() >= http.StatusBadRequest {
				if err := store.Release(context.WithoutCancel(r.Context()), key); err != nil {
					logger.Warningf("could not release idempotency key: %s", err)
				}
			}
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
