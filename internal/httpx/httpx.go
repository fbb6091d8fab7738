// Package httpx holds the JSON helpers shared by the module handlers.
package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/georgemunganga/warehouse-backend/internal/apperr"
)

const (
	// DefaultLimit is the page size used when the caller does not send one.
	DefaultLimit = 100
	maxLimit     = 1000
)

// Respond writes body as JSON with the given status.
func Respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// Error writes err with the status matching its kind.
func Error(w http.ResponseWriter, err error) {
	Respond(w, apperr.HTTPStatus(err), map[string]string{"error": err.Error()})
}

// Decode reads a JSON request body into v.
func Decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("malformed request body: %s: %w", err, apperr.ErrInvalidInput)
	}
	return nil
}

// Page reads the offset/limit query parameters.
func Page(r *http.Request) (offset, limit int, err error) {
	q := r.URL.Query()
	limit = DefaultLimit
	if v := q.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("offset must be a non negative integer: %w", apperr.ErrInvalidInput)
		}
	}
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return 0, 0, fmt.Errorf("limit must be a positive integer: %w", apperr.ErrInvalidInput)
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return offset, limit, nil
}

// OptionalBool parses a boolean query parameter; nil when absent.
func OptionalBool(r *http.Request, name string) (*bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("%s must be a boolean: %w", name, apperr.ErrInvalidInput)
	}
	return &b, nil
}
