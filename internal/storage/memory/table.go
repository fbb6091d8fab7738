package memory

import (
	"context"
	"fmt"
	"sync"
)

// Table is a set of rows of type T keyed by id.
//
// Values are cloned on the way in and out so callers never share memory with the table.
type Table[T any] struct {
	name  string
	clone func(T) T

	mu    sync.RWMutex
	rows  map[string]T
	locks *keyedMutex
}

// NewTable returns an empty table. clone must deep copy a row.
func NewTable[T any](name string, clone func(T) T) *Table[T] {
	return &Table[T]{
		name:  name,
		clone: clone,
		rows:  map[string]T{},
		locks: newKeyedMutex(),
	}
}

// Get returns a copy of the row. Rows locked by another transaction are read once that
// transaction ends, so uncommitted writes are never observed.
func (t *Table[T]) Get(ctx context.Context, key string) (T, error) {
	if tx := txFrom(ctx); tx == nil || !tx.holds(t.name, key) {
		unlock := t.locks.Lock(key)
		defer unlock()
	}
	return t.read(key)
}

// List returns a copy of every row matching keep.
func (t *Table[T]) List(ctx context.Context, keep func(T) bool) ([]T, error) {
	t.mu.RLock()
	keys := make([]string, 0, len(t.rows))
	for k := range t.rows {
		keys = append(keys, k)
	}
	t.mu.RUnlock()

	out := make([]T, 0, len(keys))
	for _, k := range keys {
		v, err := t.Get(ctx, k)
		if err != nil {
			// Deleted meanwhile.
			continue
		}
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

// Scan returns a copy of every row matching keep without waiting for row locks, so it can
// observe writes of transactions still running.
func (t *Table[T]) Scan(keep func(T) bool) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := []T{}
	for _, v := range t.rows {
		if keep == nil || keep(v) {
			out = append(out, t.clone(v))
		}
	}
	return out
}

// Lock holds the row lock until the transaction ends without writing the row.
func (t *Table[T]) Lock(ctx context.Context, key string) error {
	return t.withTx(ctx, func(tx *tx) error {
		tx.lock(t.locks, t.name, key)
		_, err := t.read(key)
		return err
	})
}

// Insert stores a new row.
func (t *Table[T]) Insert(ctx context.Context, key string, v T) error {
	return t.withTx(ctx, func(tx *tx) error {
		tx.lock(t.locks, t.name, key)

		t.mu.Lock()
		defer t.mu.Unlock()
		if _, ok := t.rows[key]; ok {
			return fmt.Errorf("%s %s: %w", t.name, key, ErrAlreadyExists)
		}
		t.rows[key] = t.clone(v)
		tx.undo = append(tx.undo, func() { t.remove(key) })
		return nil
	})
}

// Update locks the row until the transaction ends, hands a copy to fn and stores the result.
func (t *Table[T]) Update(ctx context.Context, key string, fn func(v T) (T, error)) (T, error) {
	var updated T
	err := t.withTx(ctx, func(tx *tx) error {
		tx.lock(t.locks, t.name, key)

		current, err := t.read(key)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}

		previous, _ := t.read(key)
		t.write(key, next)
		tx.undo = append(tx.undo, func() { t.write(key, previous) })
		updated = t.clone(next)
		return nil
	})
	return updated, err
}

// Delete removes the row.
func (t *Table[T]) Delete(ctx context.Context, key string) (T, error) {
	var deleted T
	err := t.withTx(ctx, func(tx *tx) error {
		tx.lock(t.locks, t.name, key)

		v, err := t.read(key)
		if err != nil {
			return err
		}
		t.remove(key)
		tx.undo = append(tx.undo, func() { t.write(key, v) })
		deleted = v
		return nil
	})
	return deleted, err
}

func (t *Table[T]) withTx(ctx context.Context, fn func(tx *tx) error) error {
	if tx := txFrom(ctx); tx != nil {
		return fn(tx)
	}
	return Transactor{}.WithinTx(ctx, func(ctx context.Context) error {
		return fn(txFrom(ctx))
	})
}

func (t *Table[T]) read(key string) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.rows[key]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s %s: %w", t.name, key, ErrNotFound)
	}
	return t.clone(v), nil
}

func (t *Table[T]) write(key string, v T) {
	t.mu.Lock()
	t.rows[key] = t.clone(v)
	t.mu.Unlock()
}

func (t *Table[T]) remove(key string) {
	t.mu.Lock()
	delete(t.rows, key)
	t.mu.Unlock()
}
