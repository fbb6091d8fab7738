package seed_test

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgemunganga/warehouse-backend/internal/modules/fleet"
	"github.com/georgemunganga/warehouse-backend/internal/modules/inventory"
	"github.com/georgemunganga/warehouse-backend/internal/seed"
	"github.com/georgemunganga/warehouse-backend/internal/storage/memory"
)

const fixture = `
products:
  - code: WID-1
    name: Widget
    threshold: 10
    positions:
      - {label: A1, units: 5}
      - {label: A2, units: 9}
  - code: BOLT-7
    name: Bolt
    positions:
      - {label: B1, units: 2}
forklifts:
  - name: FL-1
    position_label: Dock 1
  - name: FL-2
    state: trouble
    last_maintenance: 2024-01-15T08:00:00Z
`

func TestLoad(t *testing.T) {
	tests := map[string]struct {
		content string
		expErr  bool
		expProd int
		expFork int
	}{
		"A valid fixture is loaded.": {
			content: fixture,
			expProd: 2,
			expFork: 2,
		},
		"Products without code are rejected.": {
			content: "products:\n  - name: Widget\n",
			expErr:  true,
		},
		"Repeated codes are rejected.": {
			content: "products:\n  - {code: A, name: x}\n  - {code: A, name: y}\n",
			expErr:  true,
		},
		"Forklifts without name are rejected.": {
			content: "forklifts:\n  - {state: sane}\n",
			expErr:  true,
		},
		"Malformed YAML is rejected.": {
			content: "products: [",
			expErr:  true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			fsys := fstest.MapFS{"seed.yaml": &fstest.MapFile{Data: []byte(test.content)}}

			f, err := seed.Load(fsys, "seed.yaml")
			if test.expErr {
				assert.Error(err)
				return
			}
			if assert.NoError(err) {
				assert.Len(f.Products, test.expProd)
				assert.Len(f.Forklifts, test.expFork)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := seed.Load(fstest.MapFS{}, "seed.yaml")
	assert.Error(t, err)
}

func TestApplyIsRepeatable(t *testing.T) {
	ctx := context.Background()
	inv, err := inventory.NewService(inventory.ServiceConfig{
		Repository: inventory.NewMemoryRepository(),
		Transactor: memory.Transactor{},
	})
	require.NoError(t, err)
	fl, err := fleet.NewService(fleet.ServiceConfig{
		Repository: fleet.NewMemoryRepository(),
		Transactor: memory.Transactor{},
	})
	require.NoError(t, err)

	f, err := seed.Load(fstest.MapFS{"seed.yaml": &fstest.MapFile{Data: []byte(fixture)}}, "seed.yaml")
	require.NoError(t, err)

	res, err := seed.Apply(ctx, f, inv, fl, nil)
	require.NoError(t, err)
	assert.Equal(t, seed.Result{ProductsCreated: 2, ForkliftsCreated: 2}, *res)

	widget, err := inv.GetProductByCode(ctx, "WID-1")
	require.NoError(t, err)
	assert.Equal(t, 14, widget.Quantity)
	assert.Equal(t, inventory.StatusOK, widget.ThresholdStatus)

	forklifts, err := fl.ListForklifts(ctx, fleet.ListFilter{})
	require.NoError(t, err)
	require.Len(t, forklifts, 2)

	res, err = seed.Apply(ctx, f, inv, fl, nil)
	require.NoError(t, err)
	assert.Equal(t, seed.Result{ProductsSkipped: 2, ForkliftsSkipped: 2}, *res)
}
