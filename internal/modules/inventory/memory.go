package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/georgemunganga/warehouse-backend/internal/apperr"
	"github.com/georgemunganga/warehouse-backend/internal/storage/memory"
)

type memoryRepository struct {
	products  *memory.Table[*Product]
	codes     *memory.Table[string]
	movements *memory.Table[Movement]
}

// NewMemoryRepository returns a Repository keeping everything in process.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		products:  memory.NewTable("products", (*Product).clone),
		codes:     memory.NewTable("product_codes", func(s string) string { return s }),
		movements: memory.NewTable("stock_movements", func(m Movement) Movement { return m }),
	}
}

func (r *memoryRepository) Create(ctx context.Context, p *Product) error {
	return memory.Transactor{}.WithinTx(ctx, func(ctx context.Context) error {
		if err := r.claimCode(ctx, p.Code, p.ID); err != nil {
			return err
		}
		return r.products.Insert(ctx, p.ID.String(), p)
	})
}

func (r *memoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	p, err := r.products.Get(ctx, id.String())
	return p, mapMemoryError(err, id)
}

func (r *memoryRepository) GetByCode(ctx context.Context, code string) (*Product, error) {
	id, err := r.codes.Get(ctx, code)
	if errors.Is(err, memory.ErrNotFound) {
		return nil, fmt.Errorf("product with code %q: %w", code, apperr.ErrProductNotFound)
	}
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, uuid.MustParse(id))
}

func (r *memoryRepository) List(ctx context.Context, f ListFilter) ([]*Product, error) {
	products, err := r.products.List(ctx, func(p *Product) bool {
		if f.BelowThreshold == nil {
			return true
		}
		below := quantityOf(p.Positions) < p.Threshold
		return below == *f.BelowThreshold
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].ID.String() < products[j].ID.String()
		}
		return products[i].CreatedAt.Before(products[j].CreatedAt)
	})
	return page(products, f.Offset, f.Limit), nil
}

func (r *memoryRepository) Update(ctx context.Context, id uuid.UUID, fn func(p *Product) error) (*Product, error) {
	var updated *Product
	err := memory.Transactor{}.WithinTx(ctx, func(ctx context.Context) error {
		var oldCode string
		p, err := r.products.Update(ctx, id.String(), func(p *Product) (*Product, error) {
			oldCode = p.Code
			if err := fn(p); err != nil {
				return nil, err
			}
			return p, nil
		})
		if err != nil {
			return mapMemoryError(err, id)
		}

		if p.Code != oldCode {
			if oldCode != "" {
				if _, err := r.codes.Delete(ctx, oldCode); err != nil {
					return err
				}
			}
			if err := r.claimCode(ctx, p.Code, p.ID); err != nil {
				return err
			}
		}
		updated = p
		return nil
	})
	return updated, err
}

func (r *memoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return memory.Transactor{}.WithinTx(ctx, func(ctx context.Context) error {
		p, err := r.products.Delete(ctx, id.String())
		if err != nil {
			return mapMemoryError(err, id)
		}
		if p.Code != "" {
			if _, err := r.codes.Delete(ctx, p.Code); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *memoryRepository) AppendMovements(ctx context.Context, ms []Movement) error {
	return memory.Transactor{}.WithinTx(ctx, func(ctx context.Context) error {
		for _, m := range ms {
			if err := r.movements.Insert(ctx, m.ID, m); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *memoryRepository) ListMovements(ctx context.Context, productID uuid.UUID, offset, limit int) ([]Movement, error) {
	ms, err := r.movements.List(ctx, func(m Movement) bool { return m.ProductID == productID })
	if err != nil {
		return nil, err
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].ID > ms[j].ID })
	return page(ms, offset, limit), nil
}

func (r *memoryRepository) claimCode(ctx context.Context, code string, id uuid.UUID) error {
	if code == "" {
		return nil
	}
	err := r.codes.Insert(ctx, code, id.String())
	if errors.Is(err, memory.ErrAlreadyExists) {
		return fmt.Errorf("product code %q already in use: %w", code, apperr.ErrInvalidInput)
	}
	return err
}

func (r *memoryRepository) Lock(ctx context.Context, id uuid.UUID) error {
	return mapMemoryError(r.products.Lock(ctx, id.String()), id)
}

func mapMemoryError(err error, id uuid.UUID) error {
	if errors.Is(err, memory.ErrNotFound) {
		return fmt.Errorf("product %s: %w", id, apperr.ErrProductNotFound)
	}
	return err
}
