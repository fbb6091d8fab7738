// Package storage defines the transaction boundary shared by the module repositories.
//
// Every repository method joins the transaction carried by its context, so a service can
// compose writes on several aggregates (a task item and the product it moves) into one
// atomic unit by wrapping them in Transactor.WithinTx.
package storage

import "context"

// Transactor runs fn inside a single storage transaction. Nested calls join the outermost
// transaction; fn returning an error rolls everything back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type hooksKey struct{}

type commitHooks struct {
	fns []func()
}

// WithCommitHooks prepares ctx to collect AfterCommit callbacks. The returned function runs
// them and must only be called once the outermost transaction committed.
func WithCommitHooks(ctx context.Context) (context.Context, func()) {
	h := &commitHooks{}
	return context.WithValue(ctx, hooksKey{}, h), func() {
		for _, fn := range h.fns {
			fn()
		}
	}
}

// AfterCommit defers fn until the transaction in ctx commits. Without a transaction fn runs
// right away. Callbacks of rolled back transactions are discarded.
func AfterCommit(ctx context.Context, fn func()) {
	if h, ok := ctx.Value(hooksKey{}).(*commitHooks); ok {
		h.fns = append(h.fns, fn)
		return
	}
	fn()
}
