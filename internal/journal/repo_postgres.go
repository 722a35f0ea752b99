package journal

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo stores journal entries in the transactions table.
//
// Assumed constraint for replay protection:
// UNIQUE (wallet_id, idempotency_key) WHERE idempotency_key <> ”
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const txnColumns = `id, reference, cluster_id, wallet_id, type, amount_minor, currency, status,
idempotency_key, description, bill_id, initiated_by, provider, utility_provider_id,
customer_id, provider_response, failure_reason, processed_at, failed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTxn(row rowScanner) (Transaction, error) {
	var t Transaction
	var processed, failed sql.NullTime
	err := row.Scan(
		&t.ID, &t.Reference, &t.ClusterID, &t.WalletID, &t.Type, &t.AmountMinor, &t.Currency, &t.Status,
		&t.IdempotencyKey, &t.Description, &t.BillID, &t.InitiatedBy, &t.Provider, &t.UtilityProviderID,
		&t.CustomerID, &t.ProviderResponse, &t.FailureReason, &processed, &failed, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	if processed.Valid {
		v := processed.Time
		t.ProcessedAt = &v
	}
	if failed.Valid {
		v := failed.Time
		t.FailedAt = &v
	}
	return t, nil
}

func (r *PostgresRepo) Create(ctx context.Context, t Transaction) error {
	const q = `
INSERT INTO transactions (` + txnColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
`
	_, err := r.db.ExecContext(ctx, q,
		t.ID, t.Reference, t.ClusterID, t.WalletID, t.Type, t.AmountMinor, t.Currency, t.Status,
		t.IdempotencyKey, t.Description, t.BillID, t.InitiatedBy, t.Provider, t.UtilityProviderID,
		t.CustomerID, t.ProviderResponse, t.FailureReason, nullTime(t.ProcessedAt), nullTime(t.FailedAt), t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, clusterID, txnID string) (Transaction, error) {
	const q = `
SELECT ` + txnColumns + `
FROM transactions
WHERE cluster_id = $1 AND id = $2
`
	return scanTxn(r.db.QueryRowContext(ctx, q, clusterID, txnID))
}

func (r *PostgresRepo) FindByIdempotencyKey(ctx context.Context, clusterID, walletID, key string) (Transaction, bool, error) {
	const q = `
SELECT ` + txnColumns + `
FROM transactions
WHERE cluster_id = $1 AND wallet_id = $2 AND idempotency_key = $3
LIMIT 1
`
	t, err := scanTxn(r.db.QueryRowContext(ctx, q, clusterID, walletID, key))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Transaction{}, false, nil
		}
		return Transaction{}, false, err
	}
	return t, true, nil
}

func (r *PostgresRepo) Update(ctx context.Context, t Transaction) error {
	const q = `
UPDATE transactions
SET status = $3, provider_response = $4, failure_reason = $5,
    processed_at = $6, failed_at = $7, updated_at = $8
WHERE cluster_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q,
		t.ClusterID, t.ID,
		t.Status, t.ProviderResponse, t.FailureReason,
		nullTime(t.ProcessedAt), nullTime(t.FailedAt), t.UpdatedAt,
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

func (r *PostgresRepo) ListByWallet(ctx context.Context, clusterID, walletID string, limit int) ([]Transaction, error) {
	q := `
SELECT ` + txnColumns + `
FROM transactions
WHERE cluster_id = $1 AND wallet_id = $2
ORDER BY created_at DESC
`
	args := []any{clusterID, walletID}
	if limit > 0 {
		q += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) SumCompletedForBill(ctx context.Context, clusterID, billID, payerID string) (int64, error) {
	q := `
SELECT COALESCE(SUM(amount_minor), 0)
FROM transactions
WHERE cluster_id = $1 AND bill_id = $2 AND type = $3 AND status = $4
`
	args := []any{clusterID, billID, TypeBillPayment, StatusCompleted}
	if payerID != "" {
		q += ` AND initiated_by = $5`
		args = append(args, payerID)
	}
	var total int64
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
