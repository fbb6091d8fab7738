// Package apperr holds the error taxonomy shared by the inventory, task and fleet modules.
//
// Errors are plain sentinels wrapped with context through fmt.Errorf("...: %w", err), so
// callers match kinds with errors.Is and still get a message fit for an end user.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidInput is returned for malformed create/update requests. Nothing is applied.
	ErrInvalidInput = errors.New("invalid input")
	// ErrCapacityExceeded is returned when a position would leave [0, capacity].
	ErrCapacityExceeded = errors.New("capacity exceeded")

	ErrPositionNotFound = errors.New("position not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrTaskNotFound     = errors.New("task not found")
	ErrItemNotFound     = errors.New("task item not found")
	ErrForkliftNotFound = errors.New("forklift not found")

	ErrAlreadyDone = errors.New("already done")
	ErrAlreadyBusy = errors.New("already busy")
	ErrNotBusy     = errors.New("not busy")

	// ErrProductError wraps an inventory failure raised while completing a task item.
	// The nested inventory error stays reachable through errors.Is.
	ErrProductError = errors.New("product error")
)

var notFound = []error{
	ErrPositionNotFound,
	ErrProductNotFound,
	ErrTaskNotFound,
	ErrItemNotFound,
	ErrForkliftNotFound,
}

// IsNotFound reports whether err is any of the referential error kinds.
func IsNotFound(err error) bool {
	for _, target := range notFound {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// HTTPStatus maps an error kind to the status code the transport layer should answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrProductError):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrCapacityExceeded):
		return http.StatusUnprocessableEntity
	case IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyDone), errors.Is(err, ErrAlreadyBusy), errors.Is(err, ErrNotBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
