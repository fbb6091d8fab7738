package task

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/georgemunganga/warehouse-backend/internal/apperr"
	"github.com/georgemunganga/warehouse-backend/internal/storage/postgres"
)

type postgresRepository struct{ db *postgres.DB }

// NewPostgresRepository returns a Repository backed by postgres.
func NewPostgresRepository(db *postgres.DB) Repository { return &postgresRepository{db: db} }

const taskColumns = `id,title,description,created_by,forklift_id,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	t := &Task{}
	var forklift string
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.CreatedBy, &forklift, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.ForkliftID = optionalID(forklift)
	return t, nil
}

func optionalID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}

func idString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

// ── tasks ──

func (r *postgresRepository) Create(ctx context.Context, t *Task) error {
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		_, err := r.db.Conn(ctx).ExecContext(ctx, `
INSERT INTO tasks (`+taskColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			t.ID, t.Title, t.Description, t.CreatedBy, idString(t.ForkliftID), t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return postgres.MapError(err, nil)
		}
		return r.saveItems(ctx, t)
	})
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Task, error) {
	t, err := scanTask(r.db.Conn(ctx).QueryRowContext(ctx, `
SELECT `+taskColumns+` FROM tasks WHERE id=$1`, id))
	if err != nil {
		return nil, postgres.MapError(err, fmt.Errorf("task %s: %w", id, apperr.ErrTaskNotFound))
	}
	return t, r.loadItems(ctx, t)
}

func (r *postgresRepository) List(ctx context.Context, f ListFilter) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks t`
	if f.State != nil {
		cond := `EXISTS`
		if *f.State == TaskFinished {
			cond = `NOT EXISTS`
		}
		query += ` WHERE ` + cond + ` (SELECT 1 FROM task_items i WHERE i.task_id = t.id AND i.state = 'ongoing')`
	}
	query += ` ORDER BY created_at DESC, id DESC OFFSET $1`
	args := []any{f.Offset}
	if f.Limit > 0 {
		query += ` LIMIT $2`
		args = append(args, f.Limit)
	}

	rows, err := r.db.Conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []*Task{}
	byID := map[uuid.UUID]*Task{}
	ids := []string{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
		byID[t.ID] = t
		ids = append(ids, t.ID.String())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return tasks, nil
	}

	irows, err := r.db.Conn(ctx).QueryContext(ctx, `
SELECT `+itemColumns+` FROM task_items WHERE task_id = ANY($1) ORDER BY task_id, ordinal`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer irows.Close()
	for irows.Next() {
		it, err := scanItem(irows)
		if err != nil {
			return nil, err
		}
		t := byID[it.TaskID]
		t.Items = append(t.Items, it)
	}
	return tasks, irows.Err()
}

func (r *postgresRepository) Update(ctx context.Context, id uuid.UUID, fn func(t *Task) error) (*Task, error) {
	var updated *Task
	err := r.db.WithinTx(ctx, func(ctx context.Context) error {
		t, err := scanTask(r.db.Conn(ctx).QueryRowContext(ctx, `
SELECT `+taskColumns+` FROM tasks WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return postgres.MapError(err, fmt.Errorf("task %s: %w", id, apperr.ErrTaskNotFound))
		}
		if err := r.loadItems(ctx, t); err != nil {
			return err
		}

		if err := fn(t); err != nil {
			return err
		}

		_, err = r.db.Conn(ctx).ExecContext(ctx, `
UPDATE tasks SET title=$2,description=$3,forklift_id=$4,updated_at=$5 WHERE id=$1`,
			t.ID, t.Title, t.Description, idString(t.ForkliftID), t.UpdatedAt)
		if err != nil {
			return err
		}
		if err := r.saveItems(ctx, t); err != nil {
			return err
		}
		updated = t
		return nil
	})
	return updated, err
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) (*Task, error) {
	var deleted *Task
	err := r.db.WithinTx(ctx, func(ctx context.Context) error {
		t, err := scanTask(r.db.Conn(ctx).QueryRowContext(ctx, `
DELETE FROM tasks WHERE id=$1 RETURNING `+taskColumns, id))
		if err != nil {
			return postgres.MapError(err, fmt.Errorf("task %s: %w", id, apperr.ErrTaskNotFound))
		}
		deleted = t
		return nil
	})
	return deleted, err
}

func (r *postgresRepository) HasOngoingItems(ctx context.Context, productID uuid.UUID) (bool, error) {
	var used bool
	err := r.db.Conn(ctx).QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM task_items WHERE product_id=$1 AND state='ongoing')`, productID).Scan(&used)
	return used, err
}

// ── items ──

const itemColumns = `id,task_id,product_id,position_id,direction,quantity,state,completed_at`

func scanItem(row rowScanner) (Item, error) {
	var (
		it       Item
		position string
		done     sql.NullTime
	)
	err := row.Scan(&it.ID, &it.TaskID, &it.ProductID, &position, &it.Direction, &it.Quantity, &it.State, &done)
	if err != nil {
		return Item{}, err
	}
	it.PositionID = optionalID(position)
	if done.Valid {
		it.CompletedAt = &done.Time
	}
	return it, nil
}

func (r *postgresRepository) loadItems(ctx context.Context, t *Task) error {
	rows, err := r.db.Conn(ctx).QueryContext(ctx, `
SELECT `+itemColumns+` FROM task_items WHERE task_id=$1 ORDER BY ordinal`, t.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	t.Items = nil
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return err
		}
		t.Items = append(t.Items, it)
	}
	return rows.Err()
}

// saveItems makes the stored items match t.Items.
func (r *postgresRepository) saveItems(ctx context.Context, t *Task) error {
	conn := r.db.Conn(ctx)
	keep := make([]string, 0, len(t.Items))
	for _, it := range t.Items {
		keep = append(keep, it.ID.String())
	}
	_, err := conn.ExecContext(ctx, `
DELETE FROM task_items WHERE task_id=$1 AND NOT (id = ANY($2))`, t.ID, pq.Array(keep))
	if err != nil {
		return err
	}

	for i, it := range t.Items {
		var done sql.NullTime
		if it.CompletedAt != nil {
			done = sql.NullTime{Time: *it.CompletedAt, Valid: true}
		}
		_, err := conn.ExecContext(ctx, `
INSERT INTO task_items (`+itemColumns+`,ordinal) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET position_id=EXCLUDED.position_id, direction=EXCLUDED.direction,
quantity=EXCLUDED.quantity, state=EXCLUDED.state, completed_at=EXCLUDED.completed_at, ordinal=EXCLUDED.ordinal`,
			it.ID, t.ID, it.ProductID, idString(it.PositionID), it.Direction, it.Quantity, it.State, done, i)
		if err != nil {
			return postgres.MapError(err, nil)
		}
	}
	return nil
}
