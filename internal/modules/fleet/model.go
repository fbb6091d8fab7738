package fleet

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/georgemunganga/warehouse-backend/internal/apperr"
)

// State is the operational state reported for a forklift.
type State string

const (
	StateSane    State = "sane"
	StateTrouble State = "trouble"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool { return s == StateSane || s == StateTrouble }

// UnmarshalText rejects unknown states.
func (s *State) UnmarshalText(b []byte) error {
	v := State(b)
	if !v.Valid() {
		return fmt.Errorf("unknown forklift state %q: %w", b, apperr.ErrInvalidInput)
	}
	*s = v
	return nil
}

// Forklift is a piece of mobile equipment of the fleet.
type Forklift struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	PositionLabel   string    `json:"position_label,omitempty"` // free text, not an inventory position
	ImageURL        string    `json:"image_url,omitempty"`
	VideoURL        string    `json:"video_url,omitempty"`
	State           State     `json:"state"`
	HasOngoingTask  bool      `json:"has_ongoing_task"`
	CurrentTaskID   string    `json:"current_task_id,omitempty"`
	LastMaintenance time.Time `json:"last_maintenance"`
	NextMaintenance time.Time `json:"next_maintenance"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (f *Forklift) clone() *Forklift {
	cp := *f
	return &cp
}

// Summary aggregates the fleet.
type Summary struct {
	Total   int `json:"total"`
	Sane    int `json:"sane"`
	Trouble int `json:"trouble"`
	Free    int `json:"free"`
	Busy    int `json:"busy"`
	// ClosestMaintenance is the soonest next maintenance, nil for an empty fleet.
	ClosestMaintenance *time.Time `json:"closest_maintenance"`
}

// ListFilter narrows ListForklifts.
type ListFilter struct {
	State  *State
	Offset int
	Limit  int
}
