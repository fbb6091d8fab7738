package task

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/georgemunganga/warehouse-backend/internal/apperr"
	"github.com/georgemunganga/warehouse-backend/internal/storage/memory"
)

// Repository defines task storage. Every method joins the transaction carried by ctx.
type Repository interface {
	Create(ctx context.Context, t *Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*Task, error)
	// List returns tasks newest first.
	List(ctx context.Context, f ListFilter) ([]*Task, error)
	// Update locks the task until the transaction ends and stores the task and its items as
	// fn left them.
	Update(ctx context.Context, id uuid.UUID, fn func(t *Task) error) (*Task, error)
	Delete(ctx context.Context, id uuid.UUID) (*Task, error)
	// HasOngoingItems reports whether any ongoing item references the product.
	HasOngoingItems(ctx context.Context, productID uuid.UUID) (bool, error)
}

type memoryRepository struct {
	tasks *memory.Table[*Task]
}

// NewMemoryRepository returns a Repository keeping tasks in process.
func NewMemoryRepository() Repository {
	return &memoryRepository{tasks: memory.NewTable("tasks", (*Task).clone)}
}

func (r *memoryRepository) Create(ctx context.Context, t *Task) error {
	return r.tasks.Insert(ctx, t.ID.String(), t)
}

func (r *memoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Task, error) {
	t, err := r.tasks.Get(ctx, id.String())
	return t, notFound(err, id)
}

func (r *memoryRepository) List(ctx context.Context, f ListFilter) ([]*Task, error) {
	ts, err := r.tasks.List(ctx, func(t *Task) bool {
		return f.State == nil || overallState(t.Items) == *f.State
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].ID.String() > ts[j].ID.String()
		}
		return ts[i].CreatedAt.After(ts[j].CreatedAt)
	})

	offset := max(f.Offset, 0)
	if offset >= len(ts) {
		return []*Task{}, nil
	}
	ts = ts[offset:]
	if f.Limit > 0 && f.Limit < len(ts) {
		ts = ts[:f.Limit]
	}
	return ts, nil
}

func (r *memoryRepository) Update(ctx context.Context, id uuid.UUID, fn func(t *Task) error) (*Task, error) {
	t, err := r.tasks.Update(ctx, id.String(), func(t *Task) (*Task, error) {
		if err := fn(t); err != nil {
			return nil, err
		}
		return t, nil
	})
	return t, notFound(err, id)
}

func (r *memoryRepository) Delete(ctx context.Context, id uuid.UUID) (*Task, error) {
	t, err := r.tasks.Delete(ctx, id.String())
	return t, notFound(err, id)
}

func (r *memoryRepository) HasOngoingItems(_ context.Context, productID uuid.UUID) (bool, error) {
	ts := r.tasks.Scan(func(t *Task) bool {
		for _, it := range t.Items {
			if it.ProductID == productID && it.State == ItemOngoing {
				return true
			}
		}
		return false
	})
	return len(ts) > 0, nil
}

func notFound(err error, id uuid.UUID) error {
	if errors.Is(err, memory.ErrNotFound) {
		return fmt.Errorf("task %s: %w", id, apperr.ErrTaskNotFound)
	}
	return err
}
