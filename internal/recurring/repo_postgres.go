package recurring

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo stores recurring payments in the recurring_payments table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const recurringColumns = `id, cluster_id, user_id, wallet_id, bill_id, utility_provider_id, customer_id,
title, amount_minor, currency, frequency, status, start_date, end_date, next_payment_date,
last_payment_date, total_payments, failed_attempts, max_failed_attempts, spending_limit_minor,
created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecurring(row rowScanner) (RecurringPayment, error) {
	var rp RecurringPayment
	var end, last sql.NullTime
	err := row.Scan(
		&rp.ID, &rp.ClusterID, &rp.UserID, &rp.WalletID, &rp.BillID, &rp.UtilityProviderID, &rp.CustomerID,
		&rp.Title, &rp.AmountMinor, &rp.Currency, &rp.Frequency, &rp.Status, &rp.StartDate, &end, &rp.NextPaymentDate,
		&last, &rp.TotalPayments, &rp.FailedAttempts, &rp.MaxFailedAttempts, &rp.SpendingLimitMinor,
		&rp.CreatedAt, &rp.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RecurringPayment{}, ErrNotFound
		}
		return RecurringPayment{}, err
	}
	if end.Valid {
		v := end.Time
		rp.EndDate = &v
	}
	if last.Valid {
		v := last.Time
		rp.LastPaymentDate = &v
	}
	return rp, nil
}

func (r *PostgresRepo) Create(ctx context.Context, rp RecurringPayment) error {
	const q = `
INSERT INTO recurring_payments (` + recurringColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
`
	_, err := r.db.ExecContext(ctx, q,
		rp.ID, rp.ClusterID, rp.UserID, rp.WalletID, rp.BillID, rp.UtilityProviderID, rp.CustomerID,
		rp.Title, rp.AmountMinor, rp.Currency, rp.Frequency, rp.Status, rp.StartDate, nullTime(rp.EndDate), rp.NextPaymentDate,
		nullTime(rp.LastPaymentDate), rp.TotalPayments, rp.FailedAttempts, rp.MaxFailedAttempts, rp.SpendingLimitMinor,
		rp.CreatedAt, rp.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, clusterID, id string) (RecurringPayment, error) {
	const q = `
SELECT ` + recurringColumns + `
FROM recurring_payments
WHERE cluster_id = $1 AND id = $2
`
	return scanRecurring(r.db.QueryRowContext(ctx, q, clusterID, id))
}

func (r *PostgresRepo) Update(ctx context.Context, rp RecurringPayment) error {
	const q = `
UPDATE recurring_payments
SET status = $3, next_payment_date = $4, last_payment_date = $5, total_payments = $6,
    failed_attempts = $7, end_date = $8, updated_at = $9
WHERE cluster_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q,
		rp.ClusterID, rp.ID,
		rp.Status, rp.NextPaymentDate, nullTime(rp.LastPaymentDate), rp.TotalPayments,
		rp.FailedAttempts, nullTime(rp.EndDate), rp.UpdatedAt,
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

func (r *PostgresRepo) ListByUser(ctx context.Context, clusterID, userID string) ([]RecurringPayment, error) {
	const q = `
SELECT ` + recurringColumns + `
FROM recurring_payments
WHERE cluster_id = $1 AND user_id = $2
ORDER BY created_at
`
	return r.list(ctx, q, clusterID, userID)
}

func (r *PostgresRepo) ListDue(ctx context.Context, clusterID string, before time.Time) ([]RecurringPayment, error) {
	const q = `
SELECT ` + recurringColumns + `
FROM recurring_payments
WHERE cluster_id = $1 AND status = $2 AND next_payment_date <= $3
ORDER BY next_payment_date
`
	return r.list(ctx, q, clusterID, StatusActive, before)
}

func (r *PostgresRepo) list(ctx context.Context, q string, args ...any) ([]RecurringPayment, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RecurringPayment
	for rows.Next() {
		rp, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rp)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
