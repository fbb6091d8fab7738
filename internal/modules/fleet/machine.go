package fleet

import (
	"fmt"
	"time"

	"github.com/georgemunganga/warehouse-backend/internal/apperr"
)

// DefaultMaintenanceInterval is the cadence between two maintenances (90 days).
const DefaultMaintenanceInterval = 90 * 24 * time.Hour

// MaintenancePolicy schedules maintenance at a fixed cadence.
type MaintenancePolicy struct {
	Interval time.Duration
}

// Next returns the maintenance due after last.
func (p MaintenancePolicy) Next(last time.Time) time.Time {
	return last.Add(p.Interval)
}

// assign marks f busy with taskID.
func assign(f *Forklift, taskID string) error {
	if f.HasOngoingTask {
		return fmt.Errorf("forklift %s already has an ongoing task: %w", f.Name, apperr.ErrAlreadyBusy)
	}
	f.HasOngoingTask = true
	f.CurrentTaskID = taskID
	return nil
}

// release frees f. A non empty taskID must be the task f is busy with; a forklift made busy
// without a task is only freed by an untargeted release.
func release(f *Forklift, taskID string) error {
	if !f.HasOngoingTask {
		return fmt.Errorf("forklift %s has no ongoing task: %w", f.Name, apperr.ErrNotBusy)
	}
	if taskID != "" && f.CurrentTaskID != taskID {
		return fmt.Errorf("forklift %s is not busy with task %s: %w", f.Name, taskID, apperr.ErrNotBusy)
	}
	f.HasOngoingTask = false
	f.CurrentTaskID = ""
	return nil
}

// maintain records a maintenance done at now. Maintenance clears reported trouble.
func (p MaintenancePolicy) maintain(f *Forklift, now time.Time) {
	f.LastMaintenance = now
	f.NextMaintenance = p.Next(now)
	f.State = StateSane
}

func summarize(forklifts []*Forklift) Summary {
	var s Summary
	for _, f := range forklifts {
		s.Total++
		if f.State == StateTrouble {
			s.Trouble++
		} else {
			s.Sane++
		}
		if f.HasOngoingTask {
			s.Busy++
		} else {
			s.Free++
		}
		if s.ClosestMaintenance == nil || f.NextMaintenance.Before(*s.ClosestMaintenance) {
			next := f.NextMaintenance
			s.ClosestMaintenance = &next
		}
	}
	return s
}
