package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/georgemunganga/warehouse-backend/internal/apperr"
	"github.com/georgemunganga/warehouse-backend/internal/events"
	"github.com/georgemunganga/warehouse-backend/internal/log"
	"github.com/georgemunganga/warehouse-backend/internal/metrics"
	"github.com/georgemunganga/warehouse-backend/internal/modules/auth"
	"github.com/georgemunganga/warehouse-backend/internal/storage"
)

// Service defines inventory business logic for products and their positions.
type Service interface {
	// Product operations
	CreateProduct(ctx context.Context, req CreateProductRequest) (*Product, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
	GetProductByCode(ctx context.Context, code string) (*Product, error)
	ListProducts(ctx context.Context, f ListFilter) ([]*Product, error)
	UpdateProduct(ctx context.Context, id string, req UpdateProductRequest) (*Product, error)
	DeleteProduct(ctx context.Context, id string) error
	// LockProduct returns the product and keeps it from being deleted until the transaction
	// in ctx ends.
	LockProduct(ctx context.Context, id string) (*Product, error)

	// Stock operations
	UpdateQuantity(ctx context.Context, productID, positionID string, delta int) (*Product, error)
	AddPosition(ctx context.Context, productID string, req PositionRequest) (*Position, error)
	SetPositionUnits(ctx context.Context, productID, positionID string, units int) (*Position, error)
	RemovePosition(ctx context.Context, productID, positionID string) (*Product, error)
	ListMovements(ctx context.Context, productID string, offset, limit int) ([]Movement, error)

	// Move applies a stock change on behalf of another module, joining the transaction in ctx.
	Move(ctx context.Context, req MoveRequest) ([]Change, error)
}

// CreateProductRequest holds data for creating a product.
type CreateProductRequest struct {
	Code      string            `json:"code"`
	Name      string            `json:"name"`
	ImageURL  string            `json:"image_url"`
	Threshold *int              `json:"threshold"`
	Positions []PositionRequest `json:"positions"`
}

// PositionRequest holds data for a new position.
type PositionRequest struct {
	Label string `json:"label"`
	Units int    `json:"units"`
}

// UpdateProductRequest holds the product metadata to change; nil fields are kept.
type UpdateProductRequest struct {
	Code      *string `json:"code"`
	Name      *string `json:"name"`
	ImageURL  *string `json:"image_url"`
	Threshold *int    `json:"threshold"`
}

// MoveRequest is a stock change requested by another module. A nil PositionID spreads the
// delta first-fit over the product positions.
type MoveRequest struct {
	ProductID  uuid.UUID
	PositionID *uuid.UUID
	Delta      int
	Reason     MovementReason
	Reference  string
}

// DefaultThreshold is the low stock threshold of products created without one.
const DefaultThreshold = 10

// ServiceConfig is the configuration of the inventory service.
type ServiceConfig struct {
	Repository Repository
	Transactor storage.Transactor
	// Usage blocks deleting products still referenced by ongoing work. Optional.
	Usage    UsageChecker
	Capacity int
	Events   events.Publisher
	Metrics  metrics.Recorder
	Logger   log.Logger
	Now      func() time.Time
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Transactor == nil {
		return fmt.Errorf("transactor is required")
	}
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "inventory.Service"})
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

type service struct {
	repo    Repository
	tx      storage.Transactor
	usage   UsageChecker
	ledger  Ledger
	events  events.Publisher
	metrics metrics.Recorder
	logger  log.Logger
	now     func() time.Time
}

// NewService creates a new inventory service.
func NewService(cfg ServiceConfig) (Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &service{
		repo:    cfg.Repository,
		tx:      cfg.Transactor,
		usage:   cfg.Usage,
		ledger:  NewLedger(cfg.Capacity),
		events:  cfg.Events,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}, nil
}

// ── products ──

func (s *service) CreateProduct(ctx context.Context, req CreateProductRequest) (*Product, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("product name is required: %w", apperr.ErrInvalidInput)
	}
	threshold := DefaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	if threshold < 0 {
		return nil, fmt.Errorf("threshold must not be negative: %w", apperr.ErrInvalidInput)
	}
	if len(req.Positions) == 0 {
		return nil, fmt.Errorf("at least one position is required: %w", apperr.ErrInvalidInput)
	}
	stocked := false
	for _, pos := range req.Positions {
		if pos.Units > 0 {
			stocked = true
		}
	}
	if !stocked {
		return nil, fmt.Errorf("at least one position must hold units: %w", apperr.ErrInvalidInput)
	}

	now := s.now().UTC()
	p := &Product{
		ID:        uuid.New(),
		Code:      req.Code,
		Name:      req.Name,
		ImageURL:  req.ImageURL,
		Threshold: threshold,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, pos := range req.Positions {
		if _, err := s.ledger.NewPosition(p, pos.Label, pos.Units); err != nil {
			return nil, err
		}
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, p); err != nil {
			return err
		}
		var ms []Movement
		for _, pos := range p.Positions {
			if pos.Units > 0 {
				ms = append(ms, s.movement(ctx, p.ID, Change{PositionID: pos.ID, Delta: pos.Units, UnitsAfter: pos.Units}, ReasonManual, ""))
			}
		}
		return s.repo.AppendMovements(ctx, ms)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithValues(log.Kv{"product": p.ID, "quantity": p.Quantity}).Infof("Product created")
	return p, nil
}

func (s *service) GetProduct(ctx context.Context, id string) (*Product, error) {
	pid, err := parseID(id, "product")
	if err != nil {
		return nil, err
	}
	p, err := s.repo.GetByID(ctx, pid)
	if err != nil {
		return nil, err
	}
	s.ledger.Recompute(p)
	return p, nil
}

func (s *service) GetProductByCode(ctx context.Context, code string) (*Product, error) {
	if code == "" {
		return nil, fmt.Errorf("product code is required: %w", apperr.ErrInvalidInput)
	}
	p, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	s.ledger.Recompute(p)
	return p, nil
}

func (s *service) ListProducts(ctx context.Context, f ListFilter) ([]*Product, error) {
	if err := checkPage(f.Offset, f.Limit); err != nil {
		return nil, err
	}
	products, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		s.ledger.Recompute(p)
	}
	return products, nil
}

func (s *service) UpdateProduct(ctx context.Context, id string, req UpdateProductRequest) (*Product, error) {
	pid, err := parseID(id, "product")
	if err != nil {
		return nil, err
	}
	if req.Name != nil && *req.Name == "" {
		return nil, fmt.Errorf("product name must not be empty: %w", apperr.ErrInvalidInput)
	}
	if req.Threshold != nil && *req.Threshold < 0 {
		return nil, fmt.Errorf("threshold must not be negative: %w", apperr.ErrInvalidInput)
	}

	var p *Product
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.update(ctx, pid, func(p *Product) error {
			if req.Code != nil {
				p.Code = *req.Code
			}
			if req.Name != nil {
				p.Name = *req.Name
			}
			if req.ImageURL != nil {
				p.ImageURL = *req.ImageURL
			}
			if req.Threshold != nil {
				p.Threshold = *req.Threshold
			}
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *service) DeleteProduct(ctx context.Context, id string) error {
	pid, err := parseID(id, "product")
	if err != nil {
		return err
	}
	// The delete holds the product row until the end of the transaction, so the usage check
	// sees every reference taken under LockProduct.
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Delete(ctx, pid); err != nil {
			return err
		}
		if s.usage == nil {
			return nil
		}
		used, err := s.usage.HasOngoingItems(ctx, pid)
		if err != nil {
			return err
		}
		if used {
			return fmt.Errorf("product %s is referenced by ongoing task items: %w", pid, apperr.ErrInvalidInput)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.WithValues(log.Kv{"product": pid}).Infof("Product deleted")
	return nil
}

func (s *service) LockProduct(ctx context.Context, id string) (*Product, error) {
	pid, err := parseID(id, "product")
	if err != nil {
		return nil, err
	}
	if err := s.repo.Lock(ctx, pid); err != nil {
		return nil, err
	}
	p, err := s.repo.GetByID(ctx, pid)
	if err != nil {
		return nil, err
	}
	s.ledger.Recompute(p)
	return p, nil
}

// ── stock ──

func (s *service) UpdateQuantity(ctx context.Context, productID, positionID string, delta int) (*Product, error) {
	pid, err := parseID(productID, "product")
	if err != nil {
		return nil, err
	}
	posID, err := parsePositionID(positionID)
	if err != nil {
		return nil, err
	}

	var p *Product
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var change Change
		var err error
		p, err = s.update(ctx, pid, func(p *Product) error {
			var applyErr error
			change, applyErr = s.ledger.Apply(p, posID, delta)
			return applyErr
		})
		if err != nil {
			return err
		}
		return s.journal(ctx, pid, ReasonManual, "", change)
	})
	if err != nil {
		s.countRejection(err)
		return nil, err
	}
	return p, nil
}

func (s *service) AddPosition(ctx context.Context, productID string, req PositionRequest) (*Position, error) {
	pid, err := parseID(productID, "product")
	if err != nil {
		return nil, err
	}

	var pos Position
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		_, err := s.update(ctx, pid, func(p *Product) error {
			var newErr error
			pos, newErr = s.ledger.NewPosition(p, req.Label, req.Units)
			return newErr
		})
		if err != nil {
			return err
		}
		if pos.Units == 0 {
			return nil
		}
		return s.journal(ctx, pid, ReasonManual, "", Change{PositionID: pos.ID, Delta: pos.Units, UnitsAfter: pos.Units})
	})
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

func (s *service) SetPositionUnits(ctx context.Context, productID, positionID string, units int) (*Position, error) {
	pid, err := parseID(productID, "product")
	if err != nil {
		return nil, err
	}
	posID, err := parsePositionID(positionID)
	if err != nil {
		return nil, err
	}

	var pos Position
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var change Change
		p, err := s.update(ctx, pid, func(p *Product) error {
			var setErr error
			change, setErr = s.ledger.SetUnits(p, posID, units)
			return setErr
		})
		if err != nil {
			return err
		}
		i, _ := p.position(posID)
		pos = p.Positions[i]
		return s.journal(ctx, pid, ReasonSetUnits, "", change)
	})
	if err != nil {
		s.countRejection(err)
		return nil, err
	}
	return &pos, nil
}

func (s *service) RemovePosition(ctx context.Context, productID, positionID string) (*Product, error) {
	pid, err := parseID(productID, "product")
	if err != nil {
		return nil, err
	}
	posID, err := parsePositionID(positionID)
	if err != nil {
		return nil, err
	}

	var p *Product
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var change Change
		var err error
		p, err = s.update(ctx, pid, func(p *Product) error {
			var removeErr error
			change, removeErr = s.ledger.RemovePosition(p, posID)
			return removeErr
		})
		if err != nil {
			return err
		}
		return s.journal(ctx, pid, ReasonPositionRemoved, "", change)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *service) ListMovements(ctx context.Context, productID string, offset, limit int) ([]Movement, error) {
	if err := checkPage(offset, limit); err != nil {
		return nil, err
	}
	pid, err := parseID(productID, "product")
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetByID(ctx, pid); err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, pid, offset, limit)
}

func (s *service) Move(ctx context.Context, req MoveRequest) ([]Change, error) {
	if req.Delta == 0 {
		return nil, fmt.Errorf("stock move needs a non zero delta: %w", apperr.ErrInvalidInput)
	}
	if req.Reason == "" {
		req.Reason = ReasonManual
	}

	var changes []Change
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		_, err := s.update(ctx, req.ProductID, func(p *Product) error {
			if req.PositionID != nil {
				c, err := s.ledger.Apply(p, *req.PositionID, req.Delta)
				if err != nil {
					return err
				}
				changes = []Change{c}
				return nil
			}
			var allocErr error
			changes, allocErr = s.ledger.Allocate(p, req.Delta)
			return allocErr
		})
		if err != nil {
			return err
		}
		return s.journal(ctx, req.ProductID, req.Reason, req.Reference, changes...)
	})
	if err != nil {
		s.countRejection(err)
		return nil, err
	}
	return changes, nil
}

// update runs fn on the locked product, recomputes the derived fields and raises the low
// stock event once the transaction commits if the product just dropped below its threshold.
func (s *service) update(ctx context.Context, id uuid.UUID, fn func(p *Product) error) (*Product, error) {
	var before ThresholdStatus
	p, err := s.repo.Update(ctx, id, func(p *Product) error {
		s.ledger.Recompute(p)
		before = p.ThresholdStatus
		if err := fn(p); err != nil {
			return err
		}
		s.ledger.Recompute(p)
		p.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.ledger.Recompute(p)

	if before == StatusOK && p.ThresholdStatus == StatusBelow {
		ev := events.LowStock{ProductID: p.ID.String(), Name: p.Name, Quantity: p.Quantity, Threshold: p.Threshold, At: p.UpdatedAt}
		storage.AfterCommit(ctx, func() {
			s.metrics.IncLowStock()
			s.logger.WithValues(log.Kv{"product": ev.ProductID, "quantity": ev.Quantity}).Warningf("Product below threshold")
			if err := s.events.Publish(context.WithoutCancel(ctx), events.SubjectLowStock, ev); err != nil {
				s.logger.Errorf("could not publish low stock event: %s", err)
			}
		})
	}
	return p, nil
}

func (s *service) journal(ctx context.Context, productID uuid.UUID, reason MovementReason, reference string, changes ...Change) error {
	ms := make([]Movement, 0, len(changes))
	for _, c := range changes {
		ms = append(ms, s.movement(ctx, productID, c, reason, reference))
	}
	if err := s.repo.AppendMovements(ctx, ms); err != nil {
		return fmt.Errorf("could not journal stock movement: %w", err)
	}
	storage.AfterCommit(ctx, func() {
		for _, c := range changes {
			s.metrics.IncStockMovement(string(reason), c.Delta)
		}
	})
	return nil
}

func (s *service) movement(ctx context.Context, productID uuid.UUID, c Change, reason MovementReason, reference string) Movement {
	return Movement{
		ID:         ulid.Make().String(),
		ProductID:  productID,
		PositionID: c.PositionID,
		Delta:      c.Delta,
		UnitsAfter: c.UnitsAfter,
		Reason:     reason,
		Reference:  reference,
		Actor:      auth.CallerID(ctx),
		At:         s.now().UTC(),
	}
}

func (s *service) countRejection(err error) {
	if errors.Is(err, apperr.ErrCapacityExceeded) {
		s.metrics.IncCapacityRejection()
	}
}

func checkPage(offset, limit int) error {
	if offset < 0 || limit < 0 {
		return fmt.Errorf("offset and limit must not be negative: %w", apperr.ErrInvalidInput)
	}
	return nil
}

func parseID(id, kind string) (uuid.UUID, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q: %w", kind, id, apperr.ErrInvalidInput)
	}
	return uid, nil
}

func parsePositionID(id string) (uuid.UUID, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("position %q: %w", id, apperr.ErrPositionNotFound)
	}
	return uid, nil
}
