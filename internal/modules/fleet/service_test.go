package fleet_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgemunganga/warehouse-backend/internal/apperr"
	"github.com/georgemunganga/warehouse-backend/internal/modules/fleet"
	"github.com/georgemunganga/warehouse-backend/internal/storage/memory"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newService(t *testing.T, c *clock) fleet.Service {
	t.Helper()
	svc, err := fleet.NewService(fleet.ServiceConfig{
		Repository:          fleet.NewMemoryRepository(),
		Transactor:          memory.Transactor{},
		MaintenanceInterval: 90 * 24 * time.Hour,
		Now:                 c.Now,
	})
	require.NoError(t, err)
	return svc
}

func TestTaskBusyTransitions(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, &clock{now: t0})

	f, err := svc.CreateForklift(ctx, fleet.CreateForkliftRequest{Name: "FL-1"})
	require.NoError(t, err)
	assert.Equal(t, fleet.StateSane, f.State)
	assert.False(t, f.HasOngoingTask)

	f, err = svc.AssignTask(ctx, f.ID.String(), "")
	require.NoError(t, err)
	assert.True(t, f.HasOngoingTask)

	_, err = svc.AssignTask(ctx, f.ID.String(), "")
	assert.ErrorIs(t, err, apperr.ErrAlreadyBusy)

	f, err = svc.CompleteTask(ctx, f.ID.String(), "")
	require.NoError(t, err)
	assert.False(t, f.HasOngoingTask)

	_, err = svc.CompleteTask(ctx, f.ID.String(), "")
	assert.ErrorIs(t, err, apperr.ErrNotBusy)
}

func TestCompleteTaskChecksTheTask(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, &clock{now: t0})
	f, err := svc.CreateForklift(ctx, fleet.CreateForkliftRequest{Name: "FL-1"})
	require.NoError(t, err)

	_, err = svc.AssignTask(ctx, f.ID.String(), "task-1")
	require.NoError(t, err)

	_, err = svc.CompleteTask(ctx, f.ID.String(), "task-2")
	assert.ErrorIs(t, err, apperr.ErrNotBusy)

	got, err := svc.CompleteTask(ctx, f.ID.String(), "task-1")
	require.NoError(t, err)
	assert.Empty(t, got.CurrentTaskID)
}

func TestCompleteTaskKeepsUntargetedJobs(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, &clock{now: t0})
	f, err := svc.CreateForklift(ctx, fleet.CreateForkliftRequest{Name: "FL-3"})
	require.NoError(t, err)

	_, err = svc.AssignTask(ctx, f.ID.String(), "")
	require.NoError(t, err)

	_, err = svc.CompleteTask(ctx, f.ID.String(), "task-1")
	assert.ErrorIs(t, err, apperr.ErrNotBusy)
	got, err := svc.GetForklift(ctx, f.ID.String())
	require.NoError(t, err)
	assert.True(t, got.HasOngoingTask)

	got, err = svc.CompleteTask(ctx, f.ID.String(), "")
	require.NoError(t, err)
	assert.False(t, got.HasOngoingTask)
}

func TestStateAndBusyAreIndependent(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, &clock{now: t0})
	f, err := svc.CreateForklift(ctx, fleet.CreateForkliftRequest{Name: "FL-1"})
	require.NoError(t, err)

	_, err = svc.AssignTask(ctx, f.ID.String(), "")
	require.NoError(t, err)
	trouble := fleet.StateTrouble
	got, err := svc.UpdateForklift(ctx, f.ID.String(), fleet.UpdateForkliftRequest{State: &trouble})
	require.NoError(t, err)
	assert.Equal(t, fleet.StateTrouble, got.State)
	assert.True(t, got.HasOngoingTask)
}

func TestMaintenance(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: t0}
	svc := newService(t, c)

	last := t0.Add(-100 * 24 * time.Hour)
	f, err := svc.CreateForklift(ctx, fleet.CreateForkliftRequest{Name: "FL-1", State: fleet.StateTrouble, LastMaintenance: &last})
	require.NoError(t, err)
	assert.Equal(t, last.Add(90*24*time.Hour), f.NextMaintenance)

	due, err := svc.DueForMaintenance(ctx, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)

	c.now = t0.Add(time.Hour)
	f, err = svc.RecordMaintenance(ctx, f.ID.String())
	require.NoError(t, err)
	assert.Equal(t, c.now, f.LastMaintenance)
	assert.Equal(t, c.now.Add(90*24*time.Hour), f.NextMaintenance)
	assert.Equal(t, fleet.StateSane, f.State)

	due, err = svc.DueForMaintenance(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, due)

	// Moving the last maintenance recomputes the next one.
	moved := t0.Add(-80 * 24 * time.Hour)
	f, err = svc.UpdateForklift(ctx, f.ID.String(), fleet.UpdateForkliftRequest{LastMaintenance: &moved})
	require.NoError(t, err)
	assert.Equal(t, moved.Add(90*24*time.Hour), f.NextMaintenance)

	due, err = svc.DueForMaintenance(ctx, 14*24*time.Hour)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, &clock{now: t0})

	sum, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Total)
	assert.Nil(t, sum.ClosestMaintenance)

	early := t0.Add(-30 * 24 * time.Hour)
	_, err = svc.CreateForklift(ctx, fleet.CreateForkliftRequest{Name: "FL-1"})
	require.NoError(t, err)
	f2, err := svc.CreateForklift(ctx, fleet.CreateForkliftRequest{Name: "FL-2", State: fleet.StateTrouble, LastMaintenance: &early})
	require.NoError(t, err)
	_, err = svc.AssignTask(ctx, f2.ID.String(), "")
	require.NoError(t, err)

	sum, err = svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, fleet.Summary{
		Total:              2,
		Sane:               1,
		Trouble:            1,
		Free:               1,
		Busy:               1,
		ClosestMaintenance: &f2.NextMaintenance,
	}, *sum)
}

func TestForkliftErrors(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, &clock{now: t0})

	tests := map[string]struct {
		run    func() error
		expErr error
	}{
		"Creating without name should fail.": {
			run: func() error {
				_, err := svc.CreateForklift(ctx, fleet.CreateForkliftRequest{})
				return err
			},
			expErr: apperr.ErrInvalidInput,
		},
		"Creating with an unknown state should fail.": {
			run: func() error {
				_, err := svc.CreateForklift(ctx, fleet.CreateForkliftRequest{Name: "x", State: "broken"})
				return err
			},
			expErr: apperr.ErrInvalidInput,
		},
		"Unknown forklifts should not be found.": {
			run: func() error {
				_, err := svc.RecordMaintenance(ctx, uuid.NewString())
				return err
			},
			expErr: apperr.ErrForkliftNotFound,
		},
		"Busy forklifts cannot be deleted.": {
			run: func() error {
				f, err := svc.CreateForklift(ctx, fleet.CreateForkliftRequest{Name: "FL"})
				require.NoError(t, err)
				_, err = svc.AssignTask(ctx, f.ID.String(), "")
				require.NoError(t, err)
				return svc.DeleteForklift(ctx, f.ID.String())
			},
			expErr: apperr.ErrAlreadyBusy,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, test.run(), test.expErr)
		})
	}
}

func TestDeleteForklift(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, &clock{now: t0})
	f, err := svc.CreateForklift(ctx, fleet.CreateForkliftRequest{Name: "FL-1"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteForklift(ctx, f.ID.String()))
	_, err = svc.GetForklift(ctx, f.ID.String())
	assert.ErrorIs(t, err, apperr.ErrForkliftNotFound)
}

func TestListForklifts(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, &clock{now: t0})
	for _, state := range []fleet.State{fleet.StateSane, fleet.StateTrouble, fleet.StateSane} {
		_, err := svc.CreateForklift(ctx, fleet.CreateForkliftRequest{Name: "FL", State: state})
		require.NoError(t, err)
	}

	sane := fleet.StateSane
	fs, err := svc.ListForklifts(ctx, fleet.ListFilter{State: &sane})
	require.NoError(t, err)
	assert.Len(t, fs, 2)

	fs, err = svc.ListForklifts(ctx, fleet.ListFilter{Offset: 1, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, fs, 1)

	_, err = svc.ListForklifts(ctx, fleet.ListFilter{Offset: -1})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	fs, err = fleet.NewMemoryRepository().List(ctx, fleet.ListFilter{Offset: -2})
	require.NoError(t, err)
	assert.Empty(t, fs)
}
