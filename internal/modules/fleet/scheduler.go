package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/georgemunganga/warehouse-backend/internal/events"
	"github.com/georgemunganga/warehouse-backend/internal/log"
	"github.com/georgemunganga/warehouse-backend/internal/metrics"
)

// SweeperConfig is the configuration of the maintenance sweeper.
type SweeperConfig struct {
	Service Service
	// Interval between two sweeps.
	Interval time.Duration
	// Window ahead of now in which upcoming maintenance is reported.
	Window  time.Duration
	Events  events.Publisher
	Metrics metrics.Recorder
	Logger  log.Logger
	Now     func() time.Time
}

func (c *SweeperConfig) defaults() error {
	if c.Service == nil {
		return fmt.Errorf("fleet service is required")
	}
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.Window < 0 {
		return fmt.Errorf("window must not be negative")
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "fleet.MaintenanceSweeper"})
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

// MaintenanceSweeper periodically reports forklifts due for maintenance.
type MaintenanceSweeper struct {
	scheduler gocron.Scheduler
	cfg       SweeperConfig
}

// NewMaintenanceSweeper creates the sweeper and schedules its job.
func NewMaintenanceSweeper(cfg SweeperConfig) (*MaintenanceSweeper, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	m := &MaintenanceSweeper{scheduler: s, cfg: cfg}

	_, err = s.NewJob(
		gocron.DurationJob(cfg.Interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
			defer cancel()
			if _, err := m.Sweep(ctx); err != nil {
				cfg.Logger.Errorf("maintenance sweep failed: %s", err)
			}
		}),
		gocron.WithName("maintenance-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create maintenance sweep job: %w", err)
	}
	return m, nil
}

// Run starts the scheduler and blocks until ctx is done.
func (m *MaintenanceSweeper) Run(ctx context.Context) error {
	m.cfg.Logger.WithValues(log.Kv{"interval": m.cfg.Interval, "window": m.cfg.Window}).Infof("Starting maintenance sweeper")
	m.scheduler.Start()
	<-ctx.Done()
	m.cfg.Logger.Infof("Stopping maintenance sweeper")
	return m.scheduler.Shutdown()
}

// Sweep runs a single pass and returns the forklifts due.
func (m *MaintenanceSweeper) Sweep(ctx context.Context) ([]*Forklift, error) {
	due, err := m.cfg.Service.DueForMaintenance(ctx, m.cfg.Window)
	if err != nil {
		return nil, err
	}
	m.cfg.Metrics.SetForkliftsDue(len(due))

	now := m.cfg.Now()
	for _, f := range due {
		overdue := f.NextMaintenance.Before(now)
		m.cfg.Logger.WithValues(log.Kv{
			"forklift": f.ID,
			"next":     f.NextMaintenance.Format(time.RFC3339),
			"overdue":  overdue,
		}).Warningf("Forklift %s due for maintenance", f.Name)

		ev := events.MaintenanceDue{ForkliftID: f.ID.String(), Name: f.Name, NextMaintenance: f.NextMaintenance, Overdue: overdue}
		if err := m.cfg.Events.Publish(ctx, events.SubjectMaintenanceDue, ev); err != nil {
			m.cfg.Logger.Errorf("could not publish maintenance event: %s", err)
		}
	}
	return due, nil
}
