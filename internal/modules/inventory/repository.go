package inventory

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines product, position and movement storage. Every method joins the
// transaction carried by ctx.
type Repository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	GetByCode(ctx context.Context, code string) (*Product, error)
	List(ctx context.Context, f ListFilter) ([]*Product, error)
	// Update locks the product until the transaction ends, hands it to fn and stores the
	// product and its positions as fn left them. Nothing is written when fn fails.
	Update(ctx context.Context, id uuid.UUID, fn func(p *Product) error) (*Product, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// Lock keeps the product from being deleted until the transaction ends.
	Lock(ctx context.Context, id uuid.UUID) error

	AppendMovements(ctx context.Context, ms []Movement) error
	// ListMovements returns the journal of a product, newest first.
	ListMovements(ctx context.Context, productID uuid.UUID, offset, limit int) ([]Movement, error)
}

// UsageChecker reports whether unfinished work still references a product. It is called
// inside the delete transaction while the product row is locked, so it must not wait for
// locks held by other transactions.
type UsageChecker interface {
	HasOngoingItems(ctx context.Context, productID uuid.UUID) (bool, error)
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
