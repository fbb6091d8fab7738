package inventory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgemunganga/warehouse-backend/internal/apperr"
	"github.com/georgemunganga/warehouse-backend/internal/events"
	"github.com/georgemunganga/warehouse-backend/internal/modules/auth"
	"github.com/georgemunganga/warehouse-backend/internal/modules/inventory"
	"github.com/georgemunganga/warehouse-backend/internal/storage/memory"
)

type usageStub bool

func (u usageStub) HasOngoingItems(context.Context, uuid.UUID) (bool, error) { return bool(u), nil }

func newService(t *testing.T, usage inventory.UsageChecker) (inventory.Service, *events.Memory) {
	t.Helper()
	pub := &events.Memory{}
	svc, err := inventory.NewService(inventory.ServiceConfig{
		Repository: inventory.NewMemoryRepository(),
		Transactor: memory.Transactor{},
		Usage:      usage,
		Events:     pub,
	})
	require.NoError(t, err)
	return svc, pub
}

func intPtr(i int) *int { return &i }

func createWidget(t *testing.T, svc inventory.Service, positions ...inventory.PositionRequest) *inventory.Product {
	t.Helper()
	if len(positions) == 0 {
		positions = []inventory.PositionRequest{{Label: "A1", Units: 5}}
	}
	p, err := svc.CreateProduct(context.Background(), inventory.CreateProductRequest{
		Name:      "Widget",
		Threshold: intPtr(10),
		Positions: positions,
	})
	require.NoError(t, err)
	return p
}

func TestCreateProduct(t *testing.T) {
	tests := map[string]struct {
		req       inventory.CreateProductRequest
		expQty    int
		expStatus inventory.ThresholdStatus
		expErr    error
	}{
		"A product with one stocked position should derive its quantity.": {
			req: inventory.CreateProductRequest{
				Name: "Widget", Threshold: intPtr(10),
				Positions: []inventory.PositionRequest{{Label: "A1", Units: 5}},
			},
			expQty:    5,
			expStatus: inventory.StatusBelow,
		},
		"The default threshold should be used when missing.": {
			req: inventory.CreateProductRequest{
				Name:      "Bolt",
				Positions: []inventory.PositionRequest{{Label: "A1", Units: 9}, {Label: "A2", Units: 1}},
			},
			expQty:    10,
			expStatus: inventory.StatusOK,
		},
		"Without positions it should fail.": {
			req:    inventory.CreateProductRequest{Name: "Widget"},
			expErr: apperr.ErrInvalidInput,
		},
		"Without stocked positions it should fail.": {
			req: inventory.CreateProductRequest{
				Name:      "Widget",
				Positions: []inventory.PositionRequest{{Label: "A1", Units: 0}},
			},
			expErr: apperr.ErrInvalidInput,
		},
		"Positions without label should fail.": {
			req: inventory.CreateProductRequest{
				Name:      "Widget",
				Positions: []inventory.PositionRequest{{Units: 3}},
			},
			expErr: apperr.ErrInvalidInput,
		},
		"Positions over capacity should fail.": {
			req: inventory.CreateProductRequest{
				Name:      "Widget",
				Positions: []inventory.PositionRequest{{Label: "A1", Units: 10}},
			},
			expErr: apperr.ErrInvalidInput,
		},
		"A negative threshold should fail.": {
			req: inventory.CreateProductRequest{
				Name: "Widget", Threshold: intPtr(-1),
				Positions: []inventory.PositionRequest{{Label: "A1", Units: 1}},
			},
			expErr: apperr.ErrInvalidInput,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			svc, _ := newService(t, nil)
			p, err := svc.CreateProduct(context.Background(), test.req)
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expQty, p.Quantity)
			assert.Equal(t, test.expStatus, p.ThresholdStatus)

			got, err := svc.GetProduct(context.Background(), p.ID.String())
			require.NoError(t, err)
			assert.Equal(t, test.expQty, got.Quantity)
		})
	}
}

func TestUpdateQuantityScenarios(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)

	// Widget with A1 holding 5/9 and threshold 10.
	widget := createWidget(t, svc)
	a1 := widget.Positions[0].ID.String()
	assert.Equal(t, 5, widget.Quantity)
	assert.Equal(t, inventory.StatusBelow, widget.ThresholdStatus)

	// 5+6 leaves the position bounds.
	_, err := svc.UpdateQuantity(ctx, widget.ID.String(), a1, 6)
	assert.ErrorIs(t, err, apperr.ErrCapacityExceeded)
	got, err := svc.GetProduct(ctx, widget.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 5, got.Positions[0].Units)
	assert.Equal(t, 5, got.Quantity)

	// 5+4 fills it.
	got, err = svc.UpdateQuantity(ctx, widget.ID.String(), a1, 4)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Positions[0].Units)
	assert.Equal(t, 9, got.Quantity)
	assert.Equal(t, inventory.StatusBelow, got.ThresholdStatus)
	assert.Equal(t, "100", got.Positions[0].Percentage.String())
}

func TestUpdateQuantityErrors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)
	widget := createWidget(t, svc)
	other := createWidget(t, svc)

	_, err := svc.UpdateQuantity(ctx, widget.ID.String(), other.Positions[0].ID.String(), 1)
	assert.ErrorIs(t, err, apperr.ErrPositionNotFound)

	_, err = svc.UpdateQuantity(ctx, uuid.NewString(), widget.Positions[0].ID.String(), 1)
	assert.ErrorIs(t, err, apperr.ErrProductNotFound)

	_, err = svc.UpdateQuantity(ctx, "nope", widget.Positions[0].ID.String(), 1)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestUpdateQuantityConcurrent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)
	widget := createWidget(t, svc, inventory.PositionRequest{Label: "A1", Units: 0}, inventory.PositionRequest{Label: "B1", Units: 1})
	a1 := widget.Positions[0].ID.String()

	const workers = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.UpdateQuantity(ctx, widget.ID.String(), a1, 1)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			assert.ErrorIs(t, err, apperr.ErrCapacityExceeded)
			rejected++
		}()
	}
	wg.Wait()

	assert.Equal(t, 9, ok)
	assert.Equal(t, workers-9, rejected)
	got, err := svc.GetProduct(ctx, widget.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 9, got.Positions[0].Units)
	assert.Equal(t, 10, got.Quantity)
}

func TestPositionsLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)
	widget := createWidget(t, svc)

	pos, err := svc.AddPosition(ctx, widget.ID.String(), inventory.PositionRequest{Label: "B1", Units: 3})
	require.NoError(t, err)
	assert.Equal(t, "33.33", pos.Percentage.String())

	got, err := svc.GetProduct(ctx, widget.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 8, got.Quantity)

	pos, err = svc.SetPositionUnits(ctx, widget.ID.String(), pos.ID.String(), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, pos.Units)

	_, err = svc.SetPositionUnits(ctx, widget.ID.String(), pos.ID.String(), 10)
	assert.ErrorIs(t, err, apperr.ErrCapacityExceeded)

	got, err = svc.RemovePosition(ctx, widget.ID.String(), widget.Positions[0].ID.String())
	require.NoError(t, err)
	assert.Equal(t, 7, got.Quantity)
	require.Len(t, got.Positions, 1)

	_, err = svc.RemovePosition(ctx, widget.ID.String(), pos.ID.String())
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestMovementJournal(t *testing.T) {
	caller := auth.WithCaller(context.Background(), auth.Caller{ID: "u1"})
	svc, _ := newService(t, nil)
	widget := createWidget(t, svc)
	a1 := widget.Positions[0].ID.String()

	_, err := svc.UpdateQuantity(caller, widget.ID.String(), a1, 2)
	require.NoError(t, err)
	_, err = svc.UpdateQuantity(caller, widget.ID.String(), a1, 5)
	require.Error(t, err)
	_, err = svc.UpdateQuantity(caller, widget.ID.String(), a1, -1)
	require.NoError(t, err)

	ms, err := svc.ListMovements(context.Background(), widget.ID.String(), 0, 10)
	require.NoError(t, err)
	require.Len(t, ms, 3)
	assert.Equal(t, -1, ms[0].Delta)
	assert.Equal(t, 6, ms[0].UnitsAfter)
	assert.Equal(t, "u1", ms[0].Actor)
	assert.Equal(t, 2, ms[1].Delta)
	assert.Equal(t, 5, ms[2].Delta) // initial stock
	assert.Equal(t, auth.Anonymous.ID, ms[2].Actor)
}

func TestMoveFirstFit(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)
	widget := createWidget(t, svc, inventory.PositionRequest{Label: "A1", Units: 2}, inventory.PositionRequest{Label: "B1", Units: 6})

	changes, err := svc.Move(ctx, inventory.MoveRequest{ProductID: widget.ID, Delta: -4, Reason: inventory.ReasonTaskItem, Reference: "item-1"})
	require.NoError(t, err)
	assert.Len(t, changes, 2)

	got, err := svc.GetProduct(ctx, widget.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 0, got.Positions[0].Units)
	assert.Equal(t, 4, got.Positions[1].Units)

	_, err = svc.Move(ctx, inventory.MoveRequest{ProductID: widget.ID, Delta: -5})
	assert.ErrorIs(t, err, apperr.ErrCapacityExceeded)
}

func TestMoveRollsBackWithOuterTransaction(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)
	widget := createWidget(t, svc)

	err := memory.Transactor{}.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := svc.Move(ctx, inventory.MoveRequest{ProductID: widget.ID, Delta: 3}); err != nil {
			return err
		}
		return apperr.ErrAlreadyDone
	})
	require.ErrorIs(t, err, apperr.ErrAlreadyDone)

	got, err := svc.GetProduct(ctx, widget.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 5, got.Quantity)
	ms, err := svc.ListMovements(ctx, widget.ID.String(), 0, 10)
	require.NoError(t, err)
	assert.Len(t, ms, 1)
}

func TestLowStockEvent(t *testing.T) {
	ctx := context.Background()
	svc, pub := newService(t, nil)
	widget := createWidget(t, svc, inventory.PositionRequest{Label: "A1", Units: 9}, inventory.PositionRequest{Label: "B1", Units: 1})
	a1 := widget.Positions[0].ID.String()
	require.Equal(t, inventory.StatusOK, widget.ThresholdStatus)

	_, err := svc.UpdateQuantity(ctx, widget.ID.String(), a1, -1)
	require.NoError(t, err)
	_, err = svc.UpdateQuantity(ctx, widget.ID.String(), a1, -1)
	require.NoError(t, err)

	msgs := pub.Messages(events.SubjectLowStock)
	require.Len(t, msgs, 1)
	ev := msgs[0].Payload.(events.LowStock)
	assert.Equal(t, 9, ev.Quantity)
	assert.Equal(t, 10, ev.Threshold)
}

func TestProductMetadata(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)
	widget := createWidget(t, svc)

	code := "QR-001"
	got, err := svc.UpdateProduct(ctx, widget.ID.String(), inventory.UpdateProductRequest{Code: &code, Threshold: intPtr(5)})
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusOK, got.ThresholdStatus)

	got, err = svc.GetProductByCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, widget.ID, got.ID)

	other := createWidget(t, svc)
	_, err = svc.UpdateProduct(ctx, other.ID.String(), inventory.UpdateProductRequest{Code: &code})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	below := true
	list, err := svc.ListProducts(ctx, inventory.ListFilter{BelowThreshold: &below})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, other.ID, list[0].ID)

	_, err = svc.GetProductByCode(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrProductNotFound)
}

func TestNegativePagesAreRejected(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)
	widget := createWidget(t, svc)

	_, err := svc.ListProducts(ctx, inventory.ListFilter{Offset: -1})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = svc.ListMovements(ctx, widget.ID.String(), 0, -5)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	// Repositories clamp what reaches them directly.
	repo := inventory.NewMemoryRepository()
	stored := &inventory.Product{ID: uuid.New(), Name: "Bolt"}
	require.NoError(t, repo.Create(ctx, stored))
	ps, err := repo.List(ctx, inventory.ListFilter{Offset: -3})
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, stored.ID, ps[0].ID)
	ms, err := repo.ListMovements(ctx, stored.ID, -3, 0)
	require.NoError(t, err)
	assert.Empty(t, ms)
}

func TestDeleteProduct(t *testing.T) {
	ctx := context.Background()

	t.Run("Products in use cannot be deleted.", func(t *testing.T) {
		svc, _ := newService(t, usageStub(true))
		widget, err := svc.CreateProduct(ctx, inventory.CreateProductRequest{
			Code:      "WID-9",
			Name:      "Widget",
			Positions: []inventory.PositionRequest{{Label: "A1", Units: 5}},
		})
		require.NoError(t, err)

		err = svc.DeleteProduct(ctx, widget.ID.String())
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)

		// The rejected delete is rolled back.
		got, err := svc.GetProductByCode(ctx, "WID-9")
		require.NoError(t, err)
		assert.Equal(t, 5, got.Quantity)
	})

	t.Run("Unused products are deleted.", func(t *testing.T) {
		svc, _ := newService(t, usageStub(false))
		widget := createWidget(t, svc)
		require.NoError(t, svc.DeleteProduct(ctx, widget.ID.String()))
		_, err := svc.GetProduct(ctx, widget.ID.String())
		assert.ErrorIs(t, err, apperr.ErrProductNotFound)
		assert.ErrorIs(t, svc.DeleteProduct(ctx, widget.ID.String()), apperr.ErrProductNotFound)
	})
}
