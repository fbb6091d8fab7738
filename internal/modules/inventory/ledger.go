package inventory

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/georgemunganga/warehouse-backend/internal/apperr"
)

// Change is the effect of a ledger operation on a single position.
type Change struct {
	PositionID uuid.UUID `json:"position_id"`
	Delta      int       `json:"delta"`
	UnitsAfter int       `json:"units_after"`
}

// Ledger holds the position and product stock rules. It mutates products in memory only;
// every method either applies its whole effect or leaves the product untouched.
type Ledger struct {
	capacity int
}

// NewLedger returns a ledger for positions of the given capacity.
func NewLedger(capacity int) Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return Ledger{capacity: capacity}
}

// Capacity is the maximum units of a position.
func (l Ledger) Capacity() int { return l.capacity }

// Percentage is units / capacity * 100 rounded to two decimals.
func (l Ledger) Percentage(units int) decimal.Decimal {
	return decimal.NewFromInt(int64(units)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(l.capacity)), 2)
}

// Recompute derives quantity, threshold status and position percentages.
func (l Ledger) Recompute(p *Product) {
	p.Quantity = quantityOf(p.Positions)
	p.ThresholdStatus = statusOf(p.Quantity, p.Threshold)
	for i := range p.Positions {
		p.Positions[i].Percentage = l.Percentage(p.Positions[i].Units)
	}
}

func quantityOf(positions []Position) int {
	total := 0
	for _, pos := range positions {
		total += pos.Units
	}
	return total
}

func statusOf(quantity, threshold int) ThresholdStatus {
	if quantity < threshold {
		return StatusBelow
	}
	return StatusOK
}

func (l Ledger) checkUnits(units int) error {
	if units < 0 || units > l.capacity {
		return fmt.Errorf("units %d outside [0, %d]: %w", units, l.capacity, apperr.ErrCapacityExceeded)
	}
	return nil
}

// NewPosition appends a position to p.
func (l Ledger) NewPosition(p *Product, label string, units int) (Position, error) {
	if label == "" {
		return Position{}, fmt.Errorf("position label is required: %w", apperr.ErrInvalidInput)
	}
	if err := l.checkUnits(units); err != nil {
		return Position{}, fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}

	pos := Position{
		ID:        uuid.New(),
		ProductID: p.ID,
		Label:     label,
		Units:     units,
	}
	p.Positions = append(p.Positions, pos)
	l.Recompute(p)
	return p.Positions[len(p.Positions)-1], nil
}

// SetUnits sets the position to exactly units.
func (l Ledger) SetUnits(p *Product, positionID uuid.UUID, units int) (Change, error) {
	i, ok := p.position(positionID)
	if !ok {
		return Change{}, fmt.Errorf("position %s of product %s: %w", positionID, p.ID, apperr.ErrPositionNotFound)
	}
	if err := l.checkUnits(units); err != nil {
		return Change{}, fmt.Errorf("position %s: %w", p.Positions[i].Label, err)
	}

	delta := units - p.Positions[i].Units
	p.Positions[i].Units = units
	l.Recompute(p)
	return Change{PositionID: positionID, Delta: delta, UnitsAfter: units}, nil
}

// Apply adds delta to a single position.
func (l Ledger) Apply(p *Product, positionID uuid.UUID, delta int) (Change, error) {
	i, ok := p.position(positionID)
	if !ok {
		return Change{}, fmt.Errorf("position %s of product %s: %w", positionID, p.ID, apperr.ErrPositionNotFound)
	}
	units := p.Positions[i].Units + delta
	if err := l.checkUnits(units); err != nil {
		return Change{}, fmt.Errorf("position %s holds %d, cannot apply %+d: %w",
			p.Positions[i].Label, p.Positions[i].Units, delta, apperr.ErrCapacityExceeded)
	}

	p.Positions[i].Units = units
	l.Recompute(p)
	return Change{PositionID: positionID, Delta: delta, UnitsAfter: units}, nil
}

// Allocate spreads delta first-fit over the positions in creation order: a negative delta
// drains positions holding units, a positive one fills positions with free room. When the
// positions cannot absorb the whole delta nothing is applied.
func (l Ledger) Allocate(p *Product, delta int) ([]Change, error) {
	var changes []Change
	remaining := delta
	for _, pos := range p.Positions {
		if remaining == 0 {
			break
		}
		var step int
		if remaining > 0 {
			step = min(remaining, l.capacity-pos.Units)
		} else {
			step = -min(-remaining, pos.Units)
		}
		if step == 0 {
			continue
		}
		changes = append(changes, Change{PositionID: pos.ID, Delta: step, UnitsAfter: pos.Units + step})
		remaining -= step
	}
	if remaining != 0 {
		if delta < 0 {
			return nil, fmt.Errorf("product %s holds %d units, cannot take out %d: %w",
				p.Name, quantityOf(p.Positions), -delta, apperr.ErrCapacityExceeded)
		}
		return nil, fmt.Errorf("product %s has room for %d units, cannot put in %d: %w",
			p.Name, len(p.Positions)*l.capacity-quantityOf(p.Positions), delta, apperr.ErrCapacityExceeded)
	}

	for _, c := range changes {
		i, _ := p.position(c.PositionID)
		p.Positions[i].Units = c.UnitsAfter
	}
	l.Recompute(p)
	return changes, nil
}

// RemovePosition drops a position. The last position of a product cannot be removed.
func (l Ledger) RemovePosition(p *Product, positionID uuid.UUID) (Change, error) {
	i, ok := p.position(positionID)
	if !ok {
		return Change{}, fmt.Errorf("position %s of product %s: %w", positionID, p.ID, apperr.ErrPositionNotFound)
	}
	if len(p.Positions) == 1 {
		return Change{}, fmt.Errorf("cannot remove the last position of a product: %w", apperr.ErrInvalidInput)
	}

	removed := p.Positions[i]
	p.Positions = append(p.Positions[:i], p.Positions[i+1:]...)
	l.Recompute(p)
	return Change{PositionID: removed.ID, Delta: -removed.Units, UnitsAfter: 0}, nil
}
