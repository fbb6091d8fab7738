package fleet

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/georgemunganga/warehouse-backend/internal/apperr"
	"github.com/georgemunganga/warehouse-backend/internal/storage/postgres"
)

type postgresRepository struct{ db *postgres.DB }

// NewPostgresRepository returns a Repository backed by postgres.
func NewPostgresRepository(db *postgres.DB) Repository { return &postgresRepository{db: db} }

const forkliftColumns = `id,name,position_label,image_url,video_url,state,has_ongoing_task,current_task_id,
last_maintenance,next_maintenance,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanForklift(row rowScanner) (*Forklift, error) {
	f := &Forklift{}
	err := row.Scan(&f.ID, &f.Name, &f.PositionLabel, &f.ImageURL, &f.VideoURL, &f.State,
		&f.HasOngoingTask, &f.CurrentTaskID, &f.LastMaintenance, &f.NextMaintenance,
		&f.CreatedAt, &f.UpdatedAt)
	return f, err
}

func (r *postgresRepository) Create(ctx context.Context, f *Forklift) error {
	_, err := r.db.Conn(ctx).ExecContext(ctx, `
INSERT INTO forklifts (`+forkliftColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		f.ID, f.Name, f.PositionLabel, f.ImageURL, f.VideoURL, f.State, f.HasOngoingTask,
		f.CurrentTaskID, f.LastMaintenance, f.NextMaintenance, f.CreatedAt, f.UpdatedAt)
	return postgres.MapError(err, nil)
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Forklift, error) {
	f, err := scanForklift(r.db.Conn(ctx).QueryRowContext(ctx, `
SELECT `+forkliftColumns+` FROM forklifts WHERE id=$1`, id))
	if err != nil {
		return nil, postgres.MapError(err, fmt.Errorf("forklift %s: %w", id, apperr.ErrForkliftNotFound))
	}
	return f, nil
}

func (r *postgresRepository) List(ctx context.Context, lf ListFilter) ([]*Forklift, error) {
	query := `SELECT ` + forkliftColumns + ` FROM forklifts WHERE ($1 = '' OR state = $1)
ORDER BY created_at, id OFFSET $2`
	var state string
	if lf.State != nil {
		state = string(*lf.State)
	}
	args := []any{state, lf.Offset}
	if lf.Limit > 0 {
		query += ` LIMIT $3`
		args = append(args, lf.Limit)
	}

	rows, err := r.db.Conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	fs := []*Forklift{}
	for rows.Next() {
		f, err := scanForklift(rows)
		if err != nil {
			return nil, err
		}
		fs = append(fs, f)
	}
	return fs, rows.Err()
}

func (r *postgresRepository) Update(ctx context.Context, id uuid.UUID, fn func(f *Forklift) error) (*Forklift, error) {
	var updated *Forklift
	err := r.db.WithinTx(ctx, func(ctx context.Context) error {
		f, err := r.lock(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			return err
		}

		_, err = r.db.Conn(ctx).ExecContext(ctx, `
UPDATE forklifts SET name=$2,position_label=$3,image_url=$4,video_url=$5,state=$6,has_ongoing_task=$7,
current_task_id=$8,last_maintenance=$9,next_maintenance=$10,updated_at=$11 WHERE id=$1`,
			f.ID, f.Name, f.PositionLabel, f.ImageURL, f.VideoURL, f.State, f.HasOngoingTask,
			f.CurrentTaskID, f.LastMaintenance, f.NextMaintenance, f.UpdatedAt)
		if err != nil {
			return postgres.MapError(err, nil)
		}
		updated = f
		return nil
	})
	return updated, err
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID, check func(f *Forklift) error) error {
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		f, err := r.lock(ctx, id)
		if err != nil {
			return err
		}
		if err := check(f); err != nil {
			return err
		}
		_, err = r.db.Conn(ctx).ExecContext(ctx, `DELETE FROM forklifts WHERE id=$1`, id)
		return err
	})
}

func (r *postgresRepository) lock(ctx context.Context, id uuid.UUID) (*Forklift, error) {
	f, err := scanForklift(r.db.Conn(ctx).QueryRowContext(ctx, `
SELECT `+forkliftColumns+` FROM forklifts WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return nil, postgres.MapError(err, fmt.Errorf("forklift %s: %w", id, apperr.ErrForkliftNotFound))
	}
	return f, nil
}
