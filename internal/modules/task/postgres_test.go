package task_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgemunganga/warehouse-backend/internal/apperr"
	"github.com/georgemunganga/warehouse-backend/internal/modules/fleet"
	"github.com/georgemunganga/warehouse-backend/internal/modules/inventory"
	"github.com/georgemunganga/warehouse-backend/internal/modules/task"
	"github.com/georgemunganga/warehouse-backend/internal/storage/postgres"
)

func TestPostgresTaskWorkflow(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := postgres.Open(ctx, postgres.Config{URL: url, Migrate: true})
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := task.NewPostgresRepository(db)
	inv, err := inventory.NewService(inventory.ServiceConfig{
		Repository: inventory.NewPostgresRepository(db),
		Transactor: db,
		Usage:      repo,
	})
	require.NoError(t, err)
	fl, err := fleet.NewService(fleet.ServiceConfig{Repository: fleet.NewPostgresRepository(db), Transactor: db})
	require.NoError(t, err)
	svc, err := task.NewService(task.ServiceConfig{Repository: repo, Transactor: db, Inventory: inv, Fleet: fl})
	require.NoError(t, err)

	p, err := inv.CreateProduct(ctx, inventory.CreateProductRequest{
		Name:      "Widget",
		Positions: []inventory.PositionRequest{{Label: "A1", Units: 9}},
	})
	require.NoError(t, err)
	a1 := p.Positions[0].ID.String()
	forklift, err := fl.CreateForklift(ctx, fleet.CreateForkliftRequest{Name: "FL-pg"})
	require.NoError(t, err)

	tk, err := svc.CreateTask(ctx, task.CreateTaskRequest{Items: []task.ItemRequest{
		{ProductID: p.ID.String(), PositionID: a1, Quantity: 3, Direction: task.Out},
		{ProductID: p.ID.String(), PositionID: a1, Quantity: 2, Direction: task.In},
		{ProductID: p.ID.String(), PositionID: a1, Quantity: 9, Direction: task.Out},
	}})
	require.NoError(t, err)
	_, err = svc.AssignForklift(ctx, tk.ID.String(), forklift.ID.String())
	require.NoError(t, err)

	res, err := svc.CompleteTask(ctx, tk.ID.String())
	require.NoError(t, err)
	assert.Len(t, res.Completed, 2)
	require.Len(t, res.Failed, 1)
	assert.ErrorIs(t, res.Failed[0].Err, apperr.ErrProductError)

	got, err := inv.GetProduct(ctx, p.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 8, got.Quantity)

	_, err = svc.DeleteItem(ctx, tk.ID.String(), tk.Items[2].ID.String())
	require.NoError(t, err)
	loaded, err := svc.GetTask(ctx, tk.ID.String())
	require.NoError(t, err)
	assert.Equal(t, task.TaskFinished, loaded.State)

	f, err := fl.GetForklift(ctx, forklift.ID.String())
	require.NoError(t, err)
	assert.False(t, f.HasOngoingTask)

	require.NoError(t, svc.DeleteTask(ctx, tk.ID.String()))
	require.NoError(t, inv.DeleteProduct(ctx, p.ID.String()))
	require.NoError(t, fl.DeleteForklift(ctx, forklift.ID.String()))
}
