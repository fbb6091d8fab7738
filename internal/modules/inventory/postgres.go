package inventory

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

const productColumns = `id,code,name,image_url,threshold,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*Product, error) {
	p := &Product{}
	var code sql.NullString
	err := row.Scan(&p.ID, &code, &p.Name, &p.ImageURL, &p.Threshold, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Code = code.String
	return p, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ── products ──

func (r *postgresRepository) Create(ctx context.Context, p *Product) error {
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		_, err := r.db.Conn(ctx).ExecContext(ctx, `
INSERT INTO products (`+productColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			p.ID, nullable(p.Code), p.Name, p.ImageURL, p.Threshold, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return postgres.MapError(err, nil)
		}
		return r.savePositions(ctx, p)
	})
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	p, err := scanProduct(r.db.Conn(ctx).QueryRowContext(ctx, `
SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if err != nil {
		return nil, postgres.MapError(err, fmt.Errorf("product %s: %w", id, apperr.ErrProductNotFound))
	}
	return p, r.loadPositions(ctx, p)
}

func (r *postgresRepository) GetByCode(ctx context.Context, code string) (*Product, error) {
	p, err := scanProduct(r.db.Conn(ctx).QueryRowContext(ctx, `
SELECT `+productColumns+` FROM products WHERE code=$1`, code))
	if err != nil {
		return nil, postgres.MapError(err, fmt.Errorf("product with code %q: %w", code, apperr.ErrProductNotFound))
	}
	return p, r.loadPositions(ctx, p)
}

func (r *postgresRepository) List(ctx context.Context, f ListFilter) ([]*Product, error) {
	query := `
SELECT p.id,p.code,p.name,p.image_url,p.threshold,p.created_at,p.updated_at
FROM products p
LEFT JOIN product_positions pp ON pp.product_id = p.id
GROUP BY p.id`
	args := []any{}
	if f.BelowThreshold != nil {
		op := ">="
		if *f.BelowThreshold {
			op = "<"
		}
		query += ` HAVING COALESCE(SUM(pp.units),0) ` + op + ` p.threshold`
	}
	query += ` ORDER BY p.created_at, p.id OFFSET $1`
	args = append(args, f.Offset)
	if f.Limit > 0 {
		query += ` LIMIT $2`
		args = append(args, f.Limit)
	}

	rows, err := r.db.Conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []*Product{}
	byID := map[uuid.UUID]*Product{}
	ids := []string{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
		byID[p.ID] = p
		ids = append(ids, p.ID.String())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return products, nil
	}

	prows, err := r.db.Conn(ctx).QueryContext(ctx, `
SELECT id,product_id,label,units FROM product_positions
WHERE product_id = ANY($1) ORDER BY product_id, ordinal`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer prows.Close()
	for prows.Next() {
		var pos Position
		if err := prows.Scan(&pos.ID, &pos.ProductID, &pos.Label, &pos.Units); err != nil {
			return nil, err
		}
		p := byID[pos.ProductID]
		p.Positions = append(p.Positions, pos)
	}
	return products, prows.Err()
}

func (r *postgresRepository) Update(ctx context.Context, id uuid.UUID, fn func(p *Product) error) (*Product, error) {
	var updated *Product
	err := r.db.WithinTx(ctx, func(ctx context.Context) error {
		p, err := scanProduct(r.db.Conn(ctx).QueryRowContext(ctx, `
SELECT `+productColumns+` FROM products WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return postgres.MapError(err, fmt.Errorf("product %s: %w", id, apperr.ErrProductNotFound))
		}
		if err := r.loadPositions(ctx, p); err != nil {
			return err
		}

		if err := fn(p); err != nil {
			return err
		}

		_, err = r.db.Conn(ctx).ExecContext(ctx, `
UPDATE products SET code=$2,name=$3,image_url=$4,threshold=$5,updated_at=$6 WHERE id=$1`,
			p.ID, nullable(p.Code), p.Name, p.ImageURL, p.Threshold, p.UpdatedAt)
		if err != nil {
			return postgres.MapError(err, nil)
		}
		if err := r.savePositions(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	return updated, err
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.Conn(ctx).ExecContext(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("product %s: %w", id, apperr.ErrProductNotFound)
	}
	return nil
}

func (r *postgresRepository) Lock(ctx context.Context, id uuid.UUID) error {
	var locked uuid.UUID
	err := r.db.Conn(ctx).QueryRowContext(ctx, `SELECT id FROM products WHERE id=$1 FOR SHARE`, id).Scan(&locked)
	return postgres.MapError(err, fmt.Errorf("product %s: %w", id, apperr.ErrProductNotFound))
}

// ── positions ──

func (r *postgresRepository) loadPositions(ctx context.Context, p *Product) error {
	rows, err := r.db.Conn(ctx).QueryContext(ctx, `
SELECT id,product_id,label,units FROM product_positions WHERE product_id=$1 ORDER BY ordinal`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	p.Positions = nil
	for rows.Next() {
		var pos Position
		if err := rows.Scan(&pos.ID, &pos.ProductID, &pos.Label, &pos.Units); err != nil {
			return err
		}
		p.Positions = append(p.Positions, pos)
	}
	return rows.Err()
}

// savePositions makes the stored positions match p.Positions.
func (r *postgresRepository) savePositions(ctx context.Context, p *Product) error {
	conn := r.db.Conn(ctx)
	keep := make([]string, 0, len(p.Positions))
	for _, pos := range p.Positions {
		keep = append(keep, pos.ID.String())
	}
	_, err := conn.ExecContext(ctx, `
DELETE FROM product_positions WHERE product_id=$1 AND NOT (id = ANY($2))`, p.ID, pq.Array(keep))
	if err != nil {
		return err
	}

	for i, pos := range p.Positions {
		_, err := conn.ExecContext(ctx, `
INSERT INTO product_positions (id,product_id,label,units,ordinal) VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET label=EXCLUDED.label, units=EXCLUDED.units, ordinal=EXCLUDED.ordinal`,
			pos.ID, p.ID, pos.Label, pos.Units, i)
		if err != nil {
			return postgres.MapError(err, nil)
		}
	}
	return nil
}

// ── movements ──

func (r *postgresRepository) AppendMovements(ctx context.Context, ms []Movement) error {
	conn := r.db.Conn(ctx)
	for _, m := range ms {
		_, err := conn.ExecContext(ctx, `
INSERT INTO stock_movements (id,product_id,position_id,delta,units_after,reason,reference,actor,created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			m.ID, m.ProductID, m.PositionID, m.Delta, m.UnitsAfter, m.Reason, m.Reference, m.Actor, m.At)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *postgresRepository) ListMovements(ctx context.Context, productID uuid.UUID, offset, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Conn(ctx).QueryContext(ctx, `
SELECT id,product_id,position_id,delta,units_after,reason,reference,actor,created_at
FROM stock_movements WHERE product_id=$1 ORDER BY id DESC OFFSET $2 LIMIT $3`, productID, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ms := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.PositionID, &m.Delta, &m.UnitsAfter,
			&m.Reason, &m.Reference, &m.Actor, &m.At); err != nil {
			return nil, err
		}
		ms = append(ms, m)
	}
	return ms, rows.Err()
}
