package dispute

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo stores disputes and their comment threads.
//
// Assumed tables:
//   - bill_disputes (id PK, partial unique index on (bill_id, disputed_by)
//     WHERE status IN ('open', 'under_review'))
//   - dispute_comments (id PK, parent_id nullable self-reference)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const disputeColumns = `id, cluster_id, bill_id, disputed_by, reason, status,
admin_notes, resolution_notes, resolved_by, resolved_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDispute(row rowScanner) (Dispute, error) {
	var d Dispute
	var resolvedAt sql.NullTime
	err := row.Scan(
		&d.ID, &d.ClusterID, &d.BillID, &d.DisputedBy, &d.Reason, &d.Status,
		&d.AdminNotes, &d.ResolutionNotes, &d.ResolvedBy, &resolvedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Dispute{}, ErrNotFound
		}
		return Dispute{}, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		d.ResolvedAt = &t
	}
	return d, nil
}

func (r *PostgresRepo) Create(ctx context.Context, d Dispute) error {
	const q = `
INSERT INTO bill_disputes (` + disputeColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`
	var resolvedAt any
	if d.ResolvedAt != nil {
		resolvedAt = *d.ResolvedAt
	}
	_, err := r.db.ExecContext(ctx, q,
		d.ID, d.ClusterID, d.BillID, d.DisputedBy, d.Reason, d.Status,
		d.AdminNotes, d.ResolutionNotes, d.ResolvedBy, resolvedAt, d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, clusterID, disputeID string) (Dispute, error) {
	const q = `
SELECT ` + disputeColumns + `
FROM bill_disputes
WHERE cluster_id = $1 AND id = $2
`
	return scanDispute(r.db.QueryRowContext(ctx, q, clusterID, disputeID))
}

func (r *PostgresRepo) Update(ctx context.Context, d Dispute) error {
	const q = `
UPDATE bill_disputes
SET status = $3, admin_notes = $4, resolution_notes = $5, resolved_by = $6, resolved_at = $7, updated_at = $8
WHERE cluster_id = $1 AND id = $2
`
	var resolvedAt any
	if d.ResolvedAt != nil {
		resolvedAt = *d.ResolvedAt
	}
	res, err := r.db.ExecContext(ctx, q,
		d.ClusterID, d.ID,
		d.Status, d.AdminNotes, d.ResolutionNotes, d.ResolvedBy, resolvedAt, d.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) ListByBill(ctx context.Context, clusterID, billID string) ([]Dispute, error) {
	const q = `
SELECT ` + disputeColumns + `
FROM bill_disputes
WHERE cluster_id = $1 AND bill_id = $2
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, clusterID, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) FindActiveByBillAndUser(ctx context.Context, clusterID, billID, userID string) (Dispute, bool, error) {
	const q = `
SELECT ` + disputeColumns + `
FROM bill_disputes
WHERE cluster_id = $1 AND bill_id = $2 AND disputed_by = $3 AND status IN ($4, $5)
LIMIT 1
`
	d, err := scanDispute(r.db.QueryRowContext(ctx, q, clusterID, billID, userID, StatusOpen, StatusUnderReview))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Dispute{}, false, nil
		}
		return Dispute{}, false, err
	}
	return d, true, nil
}

func (r *PostgresRepo) AddComment(ctx context.Context, c Comment) error {
	const q = `
INSERT INTO dispute_comments (id, dispute_id, parent_id, author_id, body, created_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
`
	_, err := r.db.ExecContext(ctx, q, c.ID, c.DisputeID, c.ParentID, c.AuthorID, c.Body, c.CreatedAt)
	return err
}

func (r *PostgresRepo) ListComments(ctx context.Context, disputeID string) ([]Comment, error) {
	const q = `
SELECT id, dispute_id, COALESCE(parent_id, ''), author_id, body, created_at
FROM dispute_comments
WHERE dispute_id = $1
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, disputeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.DisputeID, &c.ParentID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
