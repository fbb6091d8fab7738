package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the JWT claims of a caller token.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.StandardClaims
}

type service struct {
	key []byte
	now func() time.Time
}

// NewService creates a new auth service signing with HS256 and secret.
func NewService(secret string) (Service, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &service{key: []byte(secret), now: time.Now}, nil
}

func (s *service) IssueToken(ctx context.Context, caller Caller, ttl time.Duration) (string, error) {
	if caller.ID == "" {
		return "", fmt.Errorf("caller id is required")
	}
	now := s.now()
	claims := &Claims{
		Name: caller.Name,
		StandardClaims: jwt.StandardClaims{
			Subject:   caller.ID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.key)
}

func (s *service) Verify(ctx context.Context, tokenString string) (Caller, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return Caller{}, fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return Caller{}, ErrInvalidToken
	}
	return Caller{ID: claims.Subject, Name: claims.Name}, nil
}
