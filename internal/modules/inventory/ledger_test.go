package inventory

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgemunganga/warehouse-backend/internal/apperr"
)

func newProduct(t *testing.T, l Ledger, threshold int, units ...int) *Product {
	t.Helper()
	p := &Product{ID: uuid.New(), Name: "Widget", Threshold: threshold}
	for i, u := range units {
		_, err := l.NewPosition(p, string(rune('A'+i))+"1", u)
		require.NoError(t, err)
	}
	return p
}

func unitsOf(p *Product) []int {
	out := []int{}
	for _, pos := range p.Positions {
		out = append(out, pos.Units)
	}
	return out
}

func TestLedgerPercentage(t *testing.T) {
	tests := map[string]struct {
		capacity int
		units    int
		exp      string
	}{
		"Empty position.":                {capacity: 9, units: 0, exp: "0"},
		"Full position.":                 {capacity: 9, units: 9, exp: "100"},
		"Fractions are rounded to 2 dp.": {capacity: 9, units: 5, exp: "55.56"},
		"Other capacities.":              {capacity: 4, units: 1, exp: "25"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			l := NewLedger(test.capacity)
			assert.Equal(t, test.exp, l.Percentage(test.units).String())
		})
	}
}

func TestLedgerApply(t *testing.T) {
	tests := map[string]struct {
		units     []int
		threshold int
		delta     int
		expUnits  []int
		expQty    int
		expStatus ThresholdStatus
		expErr    error
	}{
		"Adding within capacity should succeed.": {
			units: []int{5}, threshold: 10, delta: 4,
			expUnits: []int{9}, expQty: 9, expStatus: StatusBelow,
		},
		"Adding over capacity should fail and keep the position.": {
			units: []int{5}, threshold: 10, delta: 6,
			expUnits: []int{5}, expQty: 5, expStatus: StatusBelow,
			expErr: apperr.ErrCapacityExceeded,
		},
		"Removing more than held should fail.": {
			units: []int{2, 9}, threshold: 1, delta: -3,
			expUnits: []int{2, 9}, expQty: 11, expStatus: StatusOK,
			expErr: apperr.ErrCapacityExceeded,
		},
		"Reaching the threshold should be ok.": {
			units: []int{5, 4}, threshold: 10, delta: 1,
			expUnits: []int{6, 4}, expQty: 10, expStatus: StatusOK,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			l := NewLedger(9)
			p := newProduct(t, l, test.threshold, test.units...)

			_, err := l.Apply(p, p.Positions[0].ID, test.delta)
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
			} else {
				assert.NoError(t, err)
			}
			l.Recompute(p)
			assert.Equal(t, test.expUnits, unitsOf(p))
			assert.Equal(t, test.expQty, p.Quantity)
			assert.Equal(t, test.expStatus, p.ThresholdStatus)
		})
	}
}

func TestLedgerApplyUnknownPosition(t *testing.T) {
	l := NewLedger(9)
	p := newProduct(t, l, 0, 1)
	_, err := l.Apply(p, uuid.New(), 1)
	assert.ErrorIs(t, err, apperr.ErrPositionNotFound)
}

func TestLedgerAllocate(t *testing.T) {
	tests := map[string]struct {
		units      []int
		delta      int
		expUnits   []int
		expChanges int
		expErr     error
	}{
		"Taking out drains positions in order.": {
			units: []int{2, 9, 4}, delta: -5,
			expUnits: []int{0, 6, 4}, expChanges: 2,
		},
		"Putting in fills free room in order.": {
			units: []int{9, 7, 0}, delta: 5,
			expUnits: []int{9, 9, 3}, expChanges: 2,
		},
		"Taking out more than the product holds applies nothing.": {
			units: []int{2, 3}, delta: -6,
			expUnits: []int{2, 3},
			expErr:   apperr.ErrCapacityExceeded,
		},
		"Putting in more than the free room applies nothing.": {
			units: []int{8, 8}, delta: 3,
			expUnits: []int{8, 8},
			expErr:   apperr.ErrCapacityExceeded,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			l := NewLedger(9)
			p := newProduct(t, l, 0, test.units...)

			changes, err := l.Allocate(p, test.delta)
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
			} else {
				require.NoError(t, err)
				assert.Len(t, changes, test.expChanges)
				total := 0
				for _, c := range changes {
					total += c.Delta
				}
				assert.Equal(t, test.delta, total)
			}
			assert.Equal(t, test.expUnits, unitsOf(p))
		})
	}
}

func TestLedgerPositions(t *testing.T) {
	l := NewLedger(9)

	t.Run("New positions need a label.", func(t *testing.T) {
		p := newProduct(t, l, 0, 1)
		_, err := l.NewPosition(p, "", 1)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
		assert.Len(t, p.Positions, 1)
	})

	t.Run("New positions must respect capacity.", func(t *testing.T) {
		p := newProduct(t, l, 0, 1)
		_, err := l.NewPosition(p, "B1", 10)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
		assert.ErrorIs(t, err, apperr.ErrCapacityExceeded)
	})

	t.Run("Set units returns the new percentage.", func(t *testing.T) {
		p := newProduct(t, l, 0, 1)
		c, err := l.SetUnits(p, p.Positions[0].ID, 9)
		require.NoError(t, err)
		assert.Equal(t, 8, c.Delta)
		assert.Equal(t, "100", p.Positions[0].Percentage.String())

		_, err = l.SetUnits(p, p.Positions[0].ID, -1)
		assert.ErrorIs(t, err, apperr.ErrCapacityExceeded)
		assert.Equal(t, 9, p.Positions[0].Units)
	})

	t.Run("Removing a position recomputes the quantity.", func(t *testing.T) {
		p := newProduct(t, l, 0, 3, 4)
		c, err := l.RemovePosition(p, p.Positions[0].ID)
		require.NoError(t, err)
		assert.Equal(t, -3, c.Delta)
		assert.Equal(t, 4, p.Quantity)
	})

	t.Run("The last position cannot be removed.", func(t *testing.T) {
		p := newProduct(t, l, 0, 3)
		_, err := l.RemovePosition(p, p.Positions[0].ID)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
		assert.Len(t, p.Positions, 1)
	})
}
