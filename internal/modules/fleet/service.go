package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/georgemunganga/warehouse-backend/internal/apperr"
	"github.com/georgemunganga/warehouse-backend/internal/log"
	"github.com/georgemunganga/warehouse-backend/internal/metrics"
	"github.com/georgemunganga/warehouse-backend/internal/storage"
)

// Service defines the fleet state machine operations.
type Service interface {
	CreateForklift(ctx context.Context, req CreateForkliftRequest) (*Forklift, error)
	ListForklifts(ctx context.Context, f ListFilter) ([]*Forklift, error)
	GetForklift(ctx context.Context, id string) (*Forklift, error)
	UpdateForklift(ctx context.Context, id string, req UpdateForkliftRequest) (*Forklift, error)
	DeleteForklift(ctx context.Context, id string) error

	RecordMaintenance(ctx context.Context, id string) (*Forklift, error)
	// AssignTask marks the forklift busy. taskID is optional.
	AssignTask(ctx context.Context, id, taskID string) (*Forklift, error)
	// CompleteTask frees the forklift. A non empty taskID must be the task it is busy with.
	CompleteTask(ctx context.Context, id, taskID string) (*Forklift, error)

	Summary(ctx context.Context) (*Summary, error)
	// DueForMaintenance lists forklifts whose next maintenance falls before now+window.
	DueForMaintenance(ctx context.Context, window time.Duration) ([]*Forklift, error)
}

// CreateForkliftRequest holds data for registering a forklift.
type CreateForkliftRequest struct {
	Name          string `json:"name"`
	PositionLabel string `json:"position_label"`
	ImageURL      string `json:"image_url"`
	VideoURL      string `json:"video_url"`
	State         State  `json:"state"`
	// LastMaintenance defaults to now.
	LastMaintenance *time.Time `json:"last_maintenance"`
}

// UpdateForkliftRequest holds the fields to change; nil fields are kept.
type UpdateForkliftRequest struct {
	Name            *string    `json:"name"`
	PositionLabel   *string    `json:"position_label"`
	ImageURL        *string    `json:"image_url"`
	VideoURL        *string    `json:"video_url"`
	State           *State     `json:"state"`
	LastMaintenance *time.Time `json:"last_maintenance"`
}

// ServiceConfig is the configuration of the fleet service.
type ServiceConfig struct {
	Repository          Repository
	Transactor          storage.Transactor
	MaintenanceInterval time.Duration
	Metrics             metrics.Recorder
	Logger              log.Logger
	Now                 func() time.Time
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Transactor == nil {
		return fmt.Errorf("transactor is required")
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = DefaultMaintenanceInterval
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NoopRecorder{}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "fleet.Service"})
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

type service struct {
	repo    Repository
	tx      storage.Transactor
	policy  MaintenancePolicy
	metrics metrics.Recorder
	logger  log.Logger
	now     func() time.Time
}

// NewService creates a new fleet service.
func NewService(cfg ServiceConfig) (Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &service{
		repo:    cfg.Repository,
		tx:      cfg.Transactor,
		policy:  MaintenancePolicy{Interval: cfg.MaintenanceInterval},
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}, nil
}

func (s *service) CreateForklift(ctx context.Context, req CreateForkliftRequest) (*Forklift, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("forklift name is required: %w", apperr.ErrInvalidInput)
	}
	state := req.State
	if state == "" {
		state = StateSane
	}
	if !state.Valid() {
		return nil, fmt.Errorf("unknown forklift state %q: %w", state, apperr.ErrInvalidInput)
	}

	now := s.now().UTC()
	last := now
	if req.LastMaintenance != nil {
		last = req.LastMaintenance.UTC()
	}
	f := &Forklift{
		ID:              uuid.New(),
		Name:            req.Name,
		PositionLabel:   req.PositionLabel,
		ImageURL:        req.ImageURL,
		VideoURL:        req.VideoURL,
		State:           state,
		LastMaintenance: last,
		NextMaintenance: s.policy.Next(last),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, f); err != nil {
		return nil, err
	}
	s.logger.WithValues(log.Kv{"forklift": f.ID}).Infof("Forklift registered")
	return f, nil
}

func (s *service) ListForklifts(ctx context.Context, f ListFilter) ([]*Forklift, error) {
	if f.State != nil && !f.State.Valid() {
		return nil, fmt.Errorf("unknown forklift state %q: %w", *f.State, apperr.ErrInvalidInput)
	}
	if f.Offset < 0 || f.Limit < 0 {
		return nil, fmt.Errorf("offset and limit must not be negative: %w", apperr.ErrInvalidInput)
	}
	return s.repo.List(ctx, f)
}

func (s *service) GetForklift(ctx context.Context, id string) (*Forklift, error) {
	fid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, fid)
}

func (s *service) UpdateForklift(ctx context.Context, id string, req UpdateForkliftRequest) (*Forklift, error) {
	if req.Name != nil && *req.Name == "" {
		return nil, fmt.Errorf("forklift name must not be empty: %w", apperr.ErrInvalidInput)
	}
	if req.State != nil && !req.State.Valid() {
		return nil, fmt.Errorf("unknown forklift state %q: %w", *req.State, apperr.ErrInvalidInput)
	}

	return s.update(ctx, id, "update", func(f *Forklift) error {
		if req.Name != nil {
			f.Name = *req.Name
		}
		if req.PositionLabel != nil {
			f.PositionLabel = *req.PositionLabel
		}
		if req.ImageURL != nil {
			f.ImageURL = *req.ImageURL
		}
		if req.VideoURL != nil {
			f.VideoURL = *req.VideoURL
		}
		if req.State != nil && *req.State != f.State {
			f.State = *req.State
			s.logger.WithValues(log.Kv{"forklift": f.ID, "state": f.State}).Infof("Forklift state reported")
		}
		if req.LastMaintenance != nil {
			f.LastMaintenance = req.LastMaintenance.UTC()
			f.NextMaintenance = s.policy.Next(f.LastMaintenance)
		}
		return nil
	})
}

func (s *service) DeleteForklift(ctx context.Context, id string) error {
	fid, err := parseID(id)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, fid, func(f *Forklift) error {
		if f.HasOngoingTask {
			return fmt.Errorf("forklift %s still has an ongoing task: %w", f.Name, apperr.ErrAlreadyBusy)
		}
		return nil
	})
}

func (s *service) RecordMaintenance(ctx context.Context, id string) (*Forklift, error) {
	return s.update(ctx, id, "maintenance", func(f *Forklift) error {
		s.policy.maintain(f, s.now().UTC())
		return nil
	})
}

func (s *service) AssignTask(ctx context.Context, id, taskID string) (*Forklift, error) {
	return s.update(ctx, id, "assign_task", func(f *Forklift) error {
		return assign(f, taskID)
	})
}

func (s *service) CompleteTask(ctx context.Context, id, taskID string) (*Forklift, error) {
	return s.update(ctx, id, "complete_task", func(f *Forklift) error {
		return release(f, taskID)
	})
}

func (s *service) Summary(ctx context.Context) (*Summary, error) {
	fs, err := s.repo.List(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	sum := summarize(fs)
	return &sum, nil
}

func (s *service) DueForMaintenance(ctx context.Context, window time.Duration) ([]*Forklift, error) {
	fs, err := s.repo.List(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	limit := s.now().Add(window)
	due := []*Forklift{}
	for _, f := range fs {
		if !f.NextMaintenance.After(limit) {
			due = append(due, f)
		}
	}
	return due, nil
}

func (s *service) update(ctx context.Context, id, event string, fn func(f *Forklift) error) (*Forklift, error) {
	fid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var f *Forklift
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		f, err = s.repo.Update(ctx, fid, func(f *Forklift) error {
			if err := fn(f); err != nil {
				return err
			}
			f.UpdatedAt = s.now().UTC()
			return nil
		})
		if err != nil {
			return err
		}
		storage.AfterCommit(ctx, func() { s.metrics.IncForkliftTransition(event) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func parseID(id string) (uuid.UUID, error) {
	fid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("forklift %q: %w", id, apperr.ErrForkliftNotFound)
	}
	return fid, nil
}
