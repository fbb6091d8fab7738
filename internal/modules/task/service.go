package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/georgemunganga/warehouse-backend/internal/apperr"
	"github.com/georgemunganga/warehouse-backend/internal/events"
	"github.com/georgemunganga/warehouse-backend/internal/log"
	"github.com/georgemunganga/warehouse-backend/internal/metrics"
	"github.com/georgemunganga/warehouse-backend/internal/modules/auth"
	"github.com/georgemunganga/warehouse-backend/internal/modules/fleet"
	"github.com/georgemunganga/warehouse-backend/internal/modules/inventory"
	"github.com/georgemunganga/warehouse-backend/internal/storage"
)

// Inventory is the part of the inventory module tasks depend on.
type Inventory interface {
	// LockProduct keeps the product from being deleted until the transaction ends.
	LockProduct(ctx context.Context, id string) (*inventory.Product, error)
	Move(ctx context.Context, req inventory.MoveRequest) ([]inventory.Change, error)
}

// Fleet is the part of the fleet module tasks depend on.
type Fleet interface {
	GetForklift(ctx context.Context, id string) (*fleet.Forklift, error)
	AssignTask(ctx context.Context, id, taskID string) (*fleet.Forklift, error)
	CompleteTask(ctx context.Context, id, taskID string) (*fleet.Forklift, error)
}

// Service defines the task workflow operations.
type Service interface {
	CreateTask(ctx context.Context, req CreateTaskRequest) (*Task, error)
	ListTasks(ctx context.Context, f ListFilter) ([]*Task, error)
	GetTask(ctx context.Context, id string) (*Task, error)
	UpdateTask(ctx context.Context, id string, req UpdateTaskRequest) (*Task, error)
	DeleteTask(ctx context.Context, id string) error

	AddItem(ctx context.Context, taskID string, req ItemRequest) (*Task, error)
	UpdateItem(ctx context.Context, taskID, itemID string, req UpdateItemRequest) (*Task, error)
	DeleteItem(ctx context.Context, taskID, itemID string) (*Task, error)

	// CompleteItem flips an ongoing item to done and applies its stock change atomically.
	CompleteItem(ctx context.Context, taskID, itemID string) (*Task, error)
	// CompleteTask completes every ongoing item on its own, reporting per item outcomes.
	CompleteTask(ctx context.Context, taskID string) (*BatchResult, error)

	AssignForklift(ctx context.Context, taskID, forkliftID string) (*Task, error)
}

// CreateTaskRequest holds data for creating a task.
type CreateTaskRequest struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Items       []ItemRequest `json:"items"`
}

// ItemRequest holds data for a new task item.
type ItemRequest struct {
	ProductID  string    `json:"product_id"`
	PositionID string    `json:"position_id"`
	Quantity   int       `json:"quantity_needed"`
	Direction  Direction `json:"task_type"`
}

// UpdateTaskRequest holds the task metadata to change; nil fields are kept.
type UpdateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// UpdateItemRequest holds the item fields to change; nil fields are kept. An empty
// PositionID unpins the item.
type UpdateItemRequest struct {
	PositionID *string    `json:"position_id"`
	Quantity   *int       `json:"quantity_needed"`
	Direction  *Direction `json:"task_type"`
}

// BatchResult reports the outcome of CompleteTask.
type BatchResult struct {
	Task      *Task         `json:"task"`
	Completed []uuid.UUID   `json:"completed"`
	Failed    []ItemFailure `json:"failed"`
}

// ItemFailure is an item CompleteTask could not complete.
type ItemFailure struct {
	ItemID uuid.UUID `json:"item_id"`
	Error  string    `json:"error"`
	Err    error     `json:"-"`
}

// ServiceConfig is the configuration of the task service.
type ServiceConfig struct {
	Repository Repository
	Transactor storage.Transactor
	Inventory  Inventory
	// Fleet links forklifts to tasks. Optional.
	Fleet   Fleet
	Events  events.Publisher
	Metrics metrics.Recorder
	Logger  log.Logger
	Now     func() time.Time
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Transactor == nil {
		return fmt.Errorf("transactor is required")
	}
	if c.Inventory == nil {
		return fmt.Errorf("inventory is required")
	}
	if c.Events == nil {
		c.Events = events.Noop
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NoopRecorder{}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "task.Service"})
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

type service struct {
	repo      Repository
	tx        storage.Transactor
	inventory Inventory
	fleet     Fleet
	events    events.Publisher
	metrics   metrics.Recorder
	logger    log.Logger
	now       func() time.Time
}

// NewService creates a new task service.
func NewService(cfg ServiceConfig) (Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &service{
		repo:      cfg.Repository,
		tx:        cfg.Transactor,
		inventory: cfg.Inventory,
		fleet:     cfg.Fleet,
		events:    cfg.Events,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}, nil
}

// ── tasks ──

func (s *service) CreateTask(ctx context.Context, req CreateTaskRequest) (*Task, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("a task needs at least one item: %w", apperr.ErrInvalidInput)
	}

	now := s.now().UTC()
	t := &Task{
		ID:          uuid.New(),
		Title:       req.Title,
		Description: req.Description,
		CreatedBy:   auth.CallerID(ctx),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var products []uuid.UUID
		for _, ir := range req.Items {
			if pid, err := uuid.Parse(ir.ProductID); err == nil {
				products = append(products, pid)
			}
		}
		if err := s.lockProducts(ctx, products); err != nil {
			return err
		}

		for i, ir := range req.Items {
			it, err := s.newItem(ctx, t.ID, ir)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			t.Items = append(t.Items, it)
		}
		return s.repo.Create(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	t.Derive()

	s.logger.WithValues(log.Kv{"task": t.ID, "items": len(t.Items)}).Infof("Task created")
	return t, nil
}

func (s *service) ListTasks(ctx context.Context, f ListFilter) ([]*Task, error) {
	if f.State != nil && *f.State != TaskOngoing && *f.State != TaskFinished {
		return nil, fmt.Errorf("unknown task state %q: %w", *f.State, apperr.ErrInvalidInput)
	}
	if f.Offset < 0 || f.Limit < 0 {
		return nil, fmt.Errorf("offset and limit must not be negative: %w", apperr.ErrInvalidInput)
	}
	ts, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	for _, t := range ts {
		t.Derive()
	}
	return ts, nil
}

func (s *service) GetTask(ctx context.Context, id string) (*Task, error) {
	tid, err := parseID(id, apperr.ErrTaskNotFound)
	if err != nil {
		return nil, err
	}
	t, err := s.repo.GetByID(ctx, tid)
	if err != nil {
		return nil, err
	}
	t.Derive()
	return t, nil
}

func (s *service) UpdateTask(ctx context.Context, id string, req UpdateTaskRequest) (*Task, error) {
	return s.update(ctx, id, func(ctx context.Context, t *Task) error {
		if req.Title != nil {
			t.Title = *req.Title
		}
		if req.Description != nil {
			t.Description = *req.Description
		}
		return nil
	})
}

func (s *service) DeleteTask(ctx context.Context, id string) error {
	tid, err := parseID(id, apperr.ErrTaskNotFound)
	if err != nil {
		return err
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := s.repo.Delete(ctx, tid)
		if err != nil {
			return err
		}
		var products []uuid.UUID
		for _, it := range t.Items {
			if it.State == ItemOngoing {
				products = append(products, it.ProductID)
			}
		}
		if err := s.lockProducts(ctx, products); err != nil {
			return err
		}
		if t.ForkliftID != nil && overallState(t.Items) == TaskOngoing {
			return s.releaseForklift(ctx, t)
		}
		return nil
	})
}

// ── items ──

func (s *service) AddItem(ctx context.Context, taskID string, req ItemRequest) (*Task, error) {
	return s.update(ctx, taskID, func(ctx context.Context, t *Task) error {
		it, err := s.newItem(ctx, t.ID, req)
		if err != nil {
			return err
		}
		t.Items = append(t.Items, it)
		return nil
	})
}

func (s *service) UpdateItem(ctx context.Context, taskID, itemID string, req UpdateItemRequest) (*Task, error) {
	iid, err := parseID(itemID, apperr.ErrItemNotFound)
	if err != nil {
		return nil, err
	}
	if req.Quantity != nil && *req.Quantity <= 0 {
		return nil, fmt.Errorf("quantity_needed must be positive: %w", apperr.ErrInvalidInput)
	}
	if req.Direction != nil {
		if _, err := ParseDirection(string(*req.Direction)); err != nil {
			return nil, err
		}
	}

	return s.update(ctx, taskID, func(ctx context.Context, t *Task) error {
		i, ok := t.item(iid)
		if !ok {
			return fmt.Errorf("item %s of task %s: %w", iid, t.ID, apperr.ErrItemNotFound)
		}
		it := t.Items[i]
		if it.State == ItemDone {
			return fmt.Errorf("item %s is done and cannot change: %w", iid, apperr.ErrAlreadyDone)
		}
		if req.Quantity != nil {
			it.Quantity = *req.Quantity
		}
		if req.Direction != nil {
			it.Direction = *req.Direction
		}
		if req.PositionID != nil {
			pos, err := s.resolvePosition(ctx, it.ProductID, *req.PositionID)
			if err != nil {
				return err
			}
			it.PositionID = pos
		}
		t.Items[i] = it
		return nil
	})
}

func (s *service) DeleteItem(ctx context.Context, taskID, itemID string) (*Task, error) {
	iid, err := parseID(itemID, apperr.ErrItemNotFound)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, taskID, func(ctx context.Context, t *Task) error {
		i, ok := t.item(iid)
		if !ok {
			return fmt.Errorf("item %s of task %s: %w", iid, t.ID, apperr.ErrItemNotFound)
		}
		if len(t.Items) == 1 {
			return fmt.Errorf("cannot delete the last item of a task, delete the task instead: %w", apperr.ErrInvalidInput)
		}
		if t.Items[i].State == ItemOngoing {
			if err := s.lockProducts(ctx, []uuid.UUID{t.Items[i].ProductID}); err != nil {
				return err
			}
		}
		t.Items = append(t.Items[:i], t.Items[i+1:]...)
		return nil
	})
}

func (s *service) CompleteItem(ctx context.Context, taskID, itemID string) (*Task, error) {
	iid, err := parseID(itemID, apperr.ErrItemNotFound)
	if err != nil {
		return nil, err
	}

	var direction Direction
	t, err := s.update(ctx, taskID, func(ctx context.Context, t *Task) error {
		i, ok := t.item(iid)
		if !ok {
			return fmt.Errorf("item %s of task %s: %w", iid, t.ID, apperr.ErrItemNotFound)
		}
		it := t.Items[i]
		if it.State == ItemDone {
			return fmt.Errorf("item %s: %w", iid, apperr.ErrAlreadyDone)
		}
		direction = it.Direction

		_, err := s.inventory.Move(ctx, inventory.MoveRequest{
			ProductID:  it.ProductID,
			PositionID: it.PositionID,
			Delta:      it.Direction.Sign() * it.Quantity,
			Reason:     inventory.ReasonTaskItem,
			Reference:  it.ID.String(),
		})
		if err != nil {
			return fmt.Errorf("completing item %s: %w: %w", iid, apperr.ErrProductError, err)
		}

		done := s.now().UTC()
		it.State = ItemDone
		it.CompletedAt = &done
		t.Items[i] = it
		return nil
	})
	if direction != "" {
		s.metrics.IncTaskItemCompleted(string(direction), err == nil)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *service) CompleteTask(ctx context.Context, taskID string) (*BatchResult, error) {
	t, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	res := &BatchResult{Task: t, Completed: []uuid.UUID{}, Failed: []ItemFailure{}}
	for _, it := range t.Items {
		if it.State == ItemDone {
			continue
		}
		updated, err := s.CompleteItem(ctx, taskID, it.ID.String())
		if err != nil {
			res.Failed = append(res.Failed, ItemFailure{ItemID: it.ID, Error: err.Error(), Err: err})
			continue
		}
		res.Completed = append(res.Completed, it.ID)
		res.Task = updated
	}

	if len(res.Failed) > 0 {
		s.logger.WithValues(log.Kv{"task": t.ID, "completed": len(res.Completed), "failed": len(res.Failed)}).
			Warningf("Task partially completed")
		// Reload so the result reflects items completed concurrently as well.
		if latest, err := s.GetTask(ctx, taskID); err == nil {
			res.Task = latest
		}
	}
	return res, nil
}

func (s *service) AssignForklift(ctx context.Context, taskID, forkliftID string) (*Task, error) {
	if s.fleet == nil {
		return nil, fmt.Errorf("forklift linkage is not configured: %w", apperr.ErrInvalidInput)
	}
	fid, err := parseID(forkliftID, apperr.ErrForkliftNotFound)
	if err != nil {
		return nil, err
	}

	return s.update(ctx, taskID, func(ctx context.Context, t *Task) error {
		if overallState(t.Items) == TaskFinished {
			return fmt.Errorf("task %s is finished: %w", t.ID, apperr.ErrAlreadyDone)
		}
		if t.ForkliftID != nil {
			linked, err := s.linkedForklift(ctx, t)
			if err != nil {
				return err
			}
			if linked {
				return fmt.Errorf("task %s already has forklift %s: %w", t.ID, t.ForkliftID, apperr.ErrAlreadyBusy)
			}
			t.ForkliftID = nil
		}
		if _, err := s.fleet.AssignTask(ctx, fid.String(), t.ID.String()); err != nil {
			return err
		}
		t.ForkliftID = &fid
		return nil
	})
}

// update runs fn on the locked task inside a transaction. When the change finishes the task,
// the linked forklift is released in the same transaction and the finished event is raised
// after commit.
func (s *service) update(ctx context.Context, id string, fn func(ctx context.Context, t *Task) error) (*Task, error) {
	tid, err := parseID(id, apperr.ErrTaskNotFound)
	if err != nil {
		return nil, err
	}

	var t *Task
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var before OverallState
		var err error
		t, err = s.repo.Update(ctx, tid, func(t *Task) error {
			before = overallState(t.Items)
			if err := fn(ctx, t); err != nil {
				return err
			}
			t.UpdatedAt = s.now().UTC()
			return nil
		})
		if err != nil {
			return err
		}

		t.Derive()
		if before == TaskOngoing && t.State == TaskFinished {
			return s.finished(ctx, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *service) finished(ctx context.Context, t *Task) error {
	if t.ForkliftID != nil {
		if err := s.releaseForklift(ctx, t); err != nil {
			return err
		}
	}

	ev := events.TaskFinished{TaskID: t.ID.String(), At: t.UpdatedAt}
	if t.ForkliftID != nil {
		ev.ForkliftID = t.ForkliftID.String()
	}
	storage.AfterCommit(ctx, func() {
		s.metrics.IncTaskFinished()
		s.logger.WithValues(log.Kv{"task": ev.TaskID}).Infof("Task finished")
		if err := s.events.Publish(context.WithoutCancel(ctx), events.SubjectTaskFinished, ev); err != nil {
			s.logger.Errorf("could not publish task finished event: %s", err)
		}
	})
	return nil
}

// linkedForklift reports whether the forklift of t is still busy with t. Forklifts released
// or deleted through the fleet leave a stale link behind.
func (s *service) linkedForklift(ctx context.Context, t *Task) (bool, error) {
	f, err := s.fleet.GetForklift(ctx, t.ForkliftID.String())
	if errors.Is(err, apperr.ErrForkliftNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return f.HasOngoingTask && f.CurrentTaskID == t.ID.String(), nil
}

// releaseForklift frees the forklift of t. A forklift released by hand or gone meanwhile is
// not an error.
func (s *service) releaseForklift(ctx context.Context, t *Task) error {
	if s.fleet == nil || t.ForkliftID == nil {
		return nil
	}
	_, err := s.fleet.CompleteTask(ctx, t.ForkliftID.String(), t.ID.String())
	if errors.Is(err, apperr.ErrNotBusy) || errors.Is(err, apperr.ErrForkliftNotFound) {
		s.logger.WithValues(log.Kv{"task": t.ID, "forklift": t.ForkliftID}).Debugf("forklift already released: %s", err)
		return nil
	}
	return err
}

func (s *service) newItem(ctx context.Context, taskID uuid.UUID, req ItemRequest) (Item, error) {
	if req.Quantity <= 0 {
		return Item{}, fmt.Errorf("quantity_needed must be positive: %w", apperr.ErrInvalidInput)
	}
	direction, err := ParseDirection(string(req.Direction))
	if err != nil {
		return Item{}, err
	}
	pid, err := uuid.Parse(req.ProductID)
	if err != nil {
		return Item{}, fmt.Errorf("invalid product id %q: %w", req.ProductID, apperr.ErrInvalidInput)
	}
	pos, err := s.resolvePosition(ctx, pid, req.PositionID)
	if err != nil {
		return Item{}, err
	}

	return Item{
		ID:         uuid.New(),
		TaskID:     taskID,
		ProductID:  pid,
		PositionID: pos,
		Quantity:   req.Quantity,
		Direction:  direction,
		State:      ItemOngoing,
	}, nil
}

// resolvePosition checks the product exists and owns positionID, when given.
func (s *service) resolvePosition(ctx context.Context, productID uuid.UUID, positionID string) (*uuid.UUID, error) {
	p, err := s.inventory.LockProduct(ctx, productID.String())
	if err != nil {
		return nil, productRefError(err)
	}
	if positionID == "" {
		return nil, nil
	}
	posID, err := uuid.Parse(positionID)
	if err == nil {
		for _, pos := range p.Positions {
			if pos.ID == posID {
				return &posID, nil
			}
		}
	}
	return nil, fmt.Errorf("position %s does not belong to product %s: %w", positionID, p.Name, apperr.ErrInvalidInput)
}

// lockProducts locks the products in id order so concurrent tasks never wait on each other in
// a cycle.
func (s *service) lockProducts(ctx context.Context, ids []uuid.UUID) error {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for i, id := range ids {
		if i > 0 && ids[i-1] == id {
			continue
		}
		if _, err := s.inventory.LockProduct(ctx, id.String()); err != nil {
			return productRefError(err)
		}
	}
	return nil
}

func productRefError(err error) error {
	if errors.Is(err, apperr.ErrProductNotFound) {
		return fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}
	return err
}

func parseID(id string, notFound error) (uuid.UUID, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%q: %w", id, notFound)
	}
	return uid, nil
}
