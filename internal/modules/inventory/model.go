package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultCapacity is the number of units a position holds unless configured otherwise.
const DefaultCapacity = 9

// ThresholdStatus tells whether a product quantity is under its reorder threshold.
type ThresholdStatus string

const (
	StatusBelow ThresholdStatus = "below"
	StatusOK    ThresholdStatus = "ok"
)

// Product is a stocked article. Quantity and ThresholdStatus are derived from the positions
// and never stored.
type Product struct {
	ID              uuid.UUID       `json:"id"`
	Code            string          `json:"code,omitempty"` // QR code payload
	Name            string          `json:"name"`
	ImageURL        string          `json:"image_url,omitempty"`
	Threshold       int             `json:"threshold"`
	Quantity        int             `json:"quantity"`
	ThresholdStatus ThresholdStatus `json:"threshold_status"`
	Positions       []Position      `json:"positions"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Position is a capacity bounded storage slot owned by one product.
type Position struct {
	ID         uuid.UUID       `json:"id"`
	ProductID  uuid.UUID       `json:"product_id"`
	Label      string          `json:"label"` // e.g. Shelf-A1
	Units      int             `json:"units"`
	Percentage decimal.Decimal `json:"percentage"`
}

func (p *Product) position(id uuid.UUID) (int, bool) {
	for i := range p.Positions {
		if p.Positions[i].ID == id {
			return i, true
		}
	}
	return 0, false
}

func (p *Product) clone() *Product {
	cp := *p
	cp.Positions = append([]Position(nil), p.Positions...)
	return &cp
}

// MovementReason tells why a position changed.
type MovementReason string

const (
	ReasonManual          MovementReason = "manual"
	ReasonTaskItem        MovementReason = "task_item"
	ReasonSetUnits        MovementReason = "set_units"
	ReasonPositionRemoved MovementReason = "position_removed"
)

// Movement is one journal entry of a stock change.
type Movement struct {
	ID         string         `json:"id"` // ULID, sorts by time
	ProductID  uuid.UUID      `json:"product_id"`
	PositionID uuid.UUID      `json:"position_id"`
	Delta      int            `json:"delta"`
	UnitsAfter int            `json:"units_after"`
	Reason     MovementReason `json:"reason"`
	Reference  string         `json:"reference,omitempty"` // task item id
	Actor      string         `json:"actor,omitempty"`
	At         time.Time      `json:"at"`
}

// ListFilter narrows ListProducts.
type ListFilter struct {
	BelowThreshold *bool
	Offset         int
	Limit          int
}
