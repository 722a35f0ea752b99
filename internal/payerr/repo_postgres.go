package payerr

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo stores payment error records.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const errColumns = `id, cluster_id, txn_id, user_id, type, severity, provider_error_code,
provider_error_message, user_message, can_retry, retry_count, max_retries,
resolved, resolved_at, resolution_method, user_notified, admin_notified, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanError(row rowScanner) (Error, error) {
	var e Error
	var resolvedAt sql.NullTime
	err := row.Scan(
		&e.ID, &e.ClusterID, &e.TxnID, &e.UserID, &e.Type, &e.Severity, &e.ProviderErrorCode,
		&e.ProviderErrorMessage, &e.UserMessage, &e.CanRetry, &e.RetryCount, &e.MaxRetries,
		&e.Resolved, &resolvedAt, &e.ResolutionMethod, &e.UserNotified, &e.AdminNotified, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Error{}, ErrNotFound
		}
		return Error{}, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		e.ResolvedAt = &t
	}
	return e, nil
}

func (r *PostgresRepo) Create(ctx context.Context, e Error) error {
	const q = `
INSERT INTO payment_errors (` + errColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
`
	var resolvedAt any
	if e.ResolvedAt != nil {
		resolvedAt = *e.ResolvedAt
	}
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.ClusterID, e.TxnID, e.UserID, e.Type, e.Severity, e.ProviderErrorCode,
		e.ProviderErrorMessage, e.UserMessage, e.CanRetry, e.RetryCount, e.MaxRetries,
		e.Resolved, resolvedAt, e.ResolutionMethod, e.UserNotified, e.AdminNotified, e.CreatedAt, e.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, clusterID, errorID string) (Error, error) {
	const q = `
SELECT ` + errColumns + `
FROM payment_errors
WHERE cluster_id = $1 AND id = $2
`
	return scanError(r.db.QueryRowContext(ctx, q, clusterID, errorID))
}

func (r *PostgresRepo) Update(ctx context.Context, e Error) error {
	const q = `
UPDATE payment_errors
SET retry_count = $3, resolved = $4, resolved_at = $5, resolution_method = $6,
    user_notified = $7, admin_notified = $8, updated_at = $9
WHERE cluster_id = $1 AND id = $2
`
	var resolvedAt any
	if e.ResolvedAt != nil {
		resolvedAt = *e.ResolvedAt
	}
	res, err := r.db.ExecContext(ctx, q,
		e.ClusterID, e.ID,
		e.RetryCount, e.Resolved, resolvedAt, e.ResolutionMethod,
		e.UserNotified, e.AdminNotified, e.UpdatedAt,
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

func (r *PostgresRepo) ListByTxn(ctx context.Context, clusterID, txnID string) ([]Error, error) {
	const q = `
SELECT ` + errColumns + `
FROM payment_errors
WHERE cluster_id = $1 AND txn_id = $2
ORDER BY created_at ASC
`
	return r.list(ctx, q, clusterID, txnID)
}

func (r *PostgresRepo) ListUnresolved(ctx context.Context, clusterID string) ([]Error, error) {
	const q = `
SELECT ` + errColumns + `
FROM payment_errors
WHERE cluster_id = $1 AND resolved = FALSE
ORDER BY created_at ASC
`
	return r.list(ctx, q, clusterID)
}

func (r *PostgresRepo) list(ctx context.Context, q string, args ...any) ([]Error, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Error
	for rows.Next() {
		e, err := scanError(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
