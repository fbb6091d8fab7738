package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/georgemunganga/warehouse-backend/internal/storage"
)

func TestAfterCommit(t *testing.T) {
	t.Run("Without hooks the callback should run right away.", func(t *testing.T) {
		ran := false
		storage.AfterCommit(context.Background(), func() { ran = true })
		assert.True(t, ran)
	})

	t.Run("With hooks the callbacks should be deferred until run, in order.", func(t *testing.T) {
		ctx, run := storage.WithCommitHooks(context.Background())

		var got []int
		storage.AfterCommit(ctx, func() { got = append(got, 1) })
		storage.AfterCommit(ctx, func() { got = append(got, 2) })
		assert.Empty(t, got)

		run()
		assert.Equal(t, []int{1, 2}, got)
	})
}
