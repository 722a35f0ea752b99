package billing

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo stores bills and their acknowledgment sets.
//
// Assumed tables:
// - bills (id PK, unique number)
// - bill_acknowledgments (bill_id, user_id) PK
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const billColumns = `id, number, cluster_id, target_user_id, title, description, type, category,
utility_provider_id, customer_id, amount_minor, currency, due_date, allow_payment_after_due,
paid_amount_minor, paid_at, payment_txn_id, created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(row rowScanner) (Bill, error) {
	var b Bill
	var paidAt sql.NullTime
	err := row.Scan(
		&b.ID, &b.Number, &b.ClusterID, &b.TargetUserID, &b.Title, &b.Description, &b.Type, &b.Category,
		&b.UtilityProviderID, &b.CustomerID, &b.AmountMinor, &b.Currency, &b.DueDate, &b.AllowPaymentAfterDue,
		&b.PaidAmountMinor, &paidAt, &b.PaymentTxnID, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Bill{}, ErrNotFound
		}
		return Bill{}, err
	}
	if paidAt.Valid {
		t := paidAt.Time
		b.PaidAt = &t
	}
	return b, nil
}

func (r *PostgresRepo) Create(ctx context.Context, b Bill) error {
	const q = `
INSERT INTO bills (` + billColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
`
	var paidAt any
	if b.PaidAt != nil {
		paidAt = *b.PaidAt
	}
	_, err := r.db.ExecContext(ctx, q,
		b.ID, b.Number, b.ClusterID, b.TargetUserID, b.Title, b.Description, b.Type, b.Category,
		b.UtilityProviderID, b.CustomerID, b.AmountMinor, b.Currency, b.DueDate, b.AllowPaymentAfterDue,
		b.PaidAmountMinor, paidAt, b.PaymentTxnID, b.CreatedBy, b.CreatedAt, b.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, clusterID, billID string) (Bill, error) {
	const q = `
SELECT ` + billColumns + `
FROM bills
WHERE cluster_id = $1 AND id = $2
`
	b, err := scanBill(r.db.QueryRowContext(ctx, q, clusterID, billID))
	if err != nil {
		return Bill{}, err
	}
	acks, err := r.loadAcks(ctx, billID)
	if err != nil {
		return Bill{}, err
	}
	b.Acknowledgments = acks
	return b, nil
}

func (r *PostgresRepo) Update(ctx context.Context, b Bill) error {
	const q = `
UPDATE bills
SET title = $3, description = $4, due_date = $5, allow_payment_after_due = $6,
    paid_amount_minor = $7, paid_at = $8, payment_txn_id = $9, updated_at = $10
WHERE cluster_id = $1 AND id = $2
`
	var paidAt any
	if b.PaidAt != nil {
		paidAt = *b.PaidAt
	}
	res, err := r.db.ExecContext(ctx, q,
		b.ClusterID, b.ID,
		b.Title, b.Description, b.DueDate, b.AllowPaymentAfterDue,
		b.PaidAmountMinor, paidAt, b.PaymentTxnID, b.UpdatedAt,
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
	return r.syncAcks(ctx, b.ID, b.Acknowledgments)
}

func (r *PostgresRepo) List(ctx context.Context, clusterID string, f ListFilter) ([]Bill, error) {
	q := `
SELECT ` + billColumns + `
FROM bills
WHERE cluster_id = $1
`
	args := []any{clusterID}
	if f.Category != "" {
		args = append(args, f.Category)
		q += ` AND category = $2`
	}
	if f.TargetUserID != "" {
		args = append(args, f.TargetUserID)
		q += ` AND (target_user_id = '' OR target_user_id = $` + itoa(len(args)) + `)`
	}
	if f.UnpaidOnly {
		q += ` AND paid_at IS NULL`
	}
	q += ` ORDER BY due_date ASC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) loadAcks(ctx context.Context, billID string) ([]Acknowledgment, error) {
	const q = `
SELECT user_id, acknowledged_at
FROM bill_acknowledgments
WHERE bill_id = $1
ORDER BY acknowledged_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Acknowledgment
	for rows.Next() {
		var a Acknowledgment
		if err := rows.Scan(&a.UserID, &a.At); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) syncAcks(ctx context.Context, billID string, acks []Acknowledgment) error {
	existing, err := r.loadAcks(ctx, billID)
	if err != nil {
		return err
	}
	have := make(map[string]time.Time, len(existing))
	for _, a := range existing {
		have[a.UserID] = a.At
	}
	want := make(map[string]struct{}, len(acks))
	for _, a := range acks {
		want[a.UserID] = struct{}{}
		if _, ok := have[a.UserID]; !ok {
			const ins = `INSERT INTO bill_acknowledgments (bill_id, user_id, acknowledged_at) VALUES ($1, $2, $3)`
			if _, err := r.db.ExecContext(ctx, ins, billID, a.UserID, a.At); err != nil {
				return err
			}
		}
	}
	for userID := range have {
		if _, ok := want[userID]; !ok {
			const del = `DELETE FROM bill_acknowledgments WHERE bill_id = $1 AND user_id = $2`
			if _, err := r.db.ExecContext(ctx, del, billID, userID); err != nil {
				return err
			}
		}
	}
	return nil
}

func itoa(n int) string {
	// Positional SQL placeholders only reach single digits here.
	return string(rune('0' + n))
}
