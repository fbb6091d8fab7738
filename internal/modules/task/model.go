package task

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/georgemunganga/warehouse-backend/internal/apperr"
)

// Direction is the closed set of item types: stock coming in or going out.
type Direction string

const (
	In  Direction = "in"
	Out Direction = "out"
)

// ParseDirection validates s.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case In, Out:
		return d, nil
	}
	return "", fmt.Errorf("unknown task type %q, expected in or out: %w", s, apperr.ErrInvalidInput)
}

// UnmarshalText rejects anything but in and out.
func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Sign is the effect of the direction on stock: +1 in, -1 out.
func (d Direction) Sign() int {
	if d == Out {
		return -1
	}
	return 1
}

// ItemState is the lifecycle state of a task item. ongoing -> done is one way.
type ItemState string

const (
	ItemOngoing ItemState = "ongoing"
	ItemDone    ItemState = "done"
)

// OverallState is derived from the items of a task.
type OverallState string

const (
	TaskOngoing  OverallState = "ongoing"
	TaskFinished OverallState = "finished"
)

// Task is a unit of warehouse work made of items.
type Task struct {
	ID          uuid.UUID    `json:"id"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	CreatedBy   string       `json:"created_by,omitempty"`
	ForkliftID  *uuid.UUID   `json:"forklift_id,omitempty"`
	State       OverallState `json:"overall_state"`
	Items       []Item       `json:"items"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Item is one line of work moving a quantity of a product in one direction.
type Item struct {
	ID        uuid.UUID `json:"id"`
	TaskID    uuid.UUID `json:"task_id"`
	ProductID uuid.UUID `json:"product_id"`
	// PositionID pins the item to one position; nil spreads it over the product positions.
	PositionID  *uuid.UUID `json:"position_id,omitempty"`
	Quantity    int        `json:"quantity_needed"`
	Direction   Direction  `json:"task_type"`
	State       ItemState  `json:"state"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Derive sets the overall state: finished iff every item is done.
func (t *Task) Derive() {
	t.State = overallState(t.Items)
}

func overallState(items []Item) OverallState {
	for _, it := range items {
		if it.State != ItemDone {
			return TaskOngoing
		}
	}
	return TaskFinished
}

func (t *Task) item(id uuid.UUID) (int, bool) {
	for i := range t.Items {
		if t.Items[i].ID == id {
			return i, true
		}
	}
	return 0, false
}

func (t *Task) clone() *Task {
	cp := *t
	cp.Items = append([]Item(nil), t.Items...)
	return &cp
}

// ListFilter narrows ListTasks.
type ListFilter struct {
	State  *OverallState
	Offset int
	Limit  int
}
