package fleet

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/georgemunganga/warehouse-backend/internal/apperr"
	"github.com/georgemunganga/warehouse-backend/internal/storage/memory"
)

// Repository defines forklift storage. Every method joins the transaction carried by ctx.
type Repository interface {
	Create(ctx context.Context, f *Forklift) error
	GetByID(ctx context.Context, id uuid.UUID) (*Forklift, error)
	// List returns the forklifts ordered by creation; a zero limit returns all of them.
	List(ctx context.Context, f ListFilter) ([]*Forklift, error)
	// Update locks the forklift until the transaction ends and stores what fn left.
	Update(ctx context.Context, id uuid.UUID, fn func(f *Forklift) error) (*Forklift, error)
	Delete(ctx context.Context, id uuid.UUID, check func(f *Forklift) error) error
}

type memoryRepository struct {
	forklifts *memory.Table[*Forklift]
}

// NewMemoryRepository returns a Repository keeping forklifts in process.
func NewMemoryRepository() Repository {
	return &memoryRepository{forklifts: memory.NewTable("forklifts", (*Forklift).clone)}
}

func (r *memoryRepository) Create(ctx context.Context, f *Forklift) error {
	return r.forklifts.Insert(ctx, f.ID.String(), f)
}

func (r *memoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Forklift, error) {
	f, err := r.forklifts.Get(ctx, id.String())
	return f, notFound(err, id)
}

func (r *memoryRepository) List(ctx context.Context, lf ListFilter) ([]*Forklift, error) {
	fs, err := r.forklifts.List(ctx, func(f *Forklift) bool {
		return lf.State == nil || f.State == *lf.State
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(fs, func(i, j int) bool {
		if fs[i].CreatedAt.Equal(fs[j].CreatedAt) {
			return fs[i].ID.String() < fs[j].ID.String()
		}
		return fs[i].CreatedAt.Before(fs[j].CreatedAt)
	})

	offset := max(lf.Offset, 0)
	if offset >= len(fs) {
		return []*Forklift{}, nil
	}
	fs = fs[offset:]
	if lf.Limit > 0 && lf.Limit < len(fs) {
		fs = fs[:lf.Limit]
	}
	return fs, nil
}

func (r *memoryRepository) Update(ctx context.Context, id uuid.UUID, fn func(f *Forklift) error) (*Forklift, error) {
	f, err := r.forklifts.Update(ctx, id.String(), func(f *Forklift) (*Forklift, error) {
		if err := fn(f); err != nil {
			return nil, err
		}
		return f, nil
	})
	return f, notFound(err, id)
}

func (r *memoryRepository) Delete(ctx context.Context, id uuid.UUID, check func(f *Forklift) error) error {
	return memory.Transactor{}.WithinTx(ctx, func(ctx context.Context) error {
		// Locks the row so check sees the committed state.
		if _, err := r.Update(ctx, id, check); err != nil {
			return err
		}
		_, err := r.forklifts.Delete(ctx, id.String())
		return notFound(err, id)
	})
}

func notFound(err error, id uuid.UUID) error {
	if errors.Is(err, memory.ErrNotFound) {
		return fmt.Errorf("forklift %s: %w", id, apperr.ErrForkliftNotFound)
	}
	return err
}
