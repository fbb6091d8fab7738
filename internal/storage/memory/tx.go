// Package memory provides in-process storage primitives with per-row locking and rollback.
//
// A Table keeps rows keyed by id. Writes lock the row for the rest of the surrounding
// transaction and record an undo step, so a failed transaction restores every row it
// touched. Rows of different keys never contend with each other.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/georgemunganga/warehouse-backend/internal/storage"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("row not found")
	// ErrAlreadyExists is returned when inserting a key that is already stored.
	ErrAlreadyExists = errors.New("row already exists")
)

type txKey struct{}

type tx struct {
	held map[string]func()
	undo []func()
}

func txFrom(ctx context.Context) *tx {
	t, _ := ctx.Value(txKey{}).(*tx)
	return t
}

// lock takes the row lock for the lifetime of the transaction.
func (t *tx) lock(l *keyedMutex, table, key string) {
	id := table + "/" + key
	if _, ok := t.held[id]; ok {
		return
	}
	t.held[id] = l.Lock(key)
}

func (t *tx) holds(table, key string) bool {
	_, ok := t.held[table+"/"+key]
	return ok
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *tx) release() {
	for _, unlock := range t.held {
		unlock()
	}
	t.held = nil
}

// Transactor is the memory implementation of storage.Transactor.
type Transactor struct{}

var _ storage.Transactor = Transactor{}

// WithinTx runs fn in a transaction, joining the one already present in ctx.
func (Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	t := &tx{held: map[string]func(){}}
	ctx, runHooks := storage.WithCommitHooks(ctx)
	ctx = context.WithValue(ctx, txKey{}, t)

	defer func() {
		if r := recover(); r != nil {
			t.rollback()
			t.release()
			panic(r)
		}
	}()

	err = fn(ctx)
	if err != nil {
		t.rollback()
		t.release()
		return err
	}
	t.release()
	runHooks()
	return nil
}

// keyedMutex hands out one mutex per key, dropping it once nobody references it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*refMutex{}}
}

// Lock blocks until the key is free and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
