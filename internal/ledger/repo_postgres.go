package ledger

import (
	"context"
	"database/sql"
	"errors"

	"estate-platform/pkg/utils"
)

// PostgresRepo stores wallets and reservations in Postgres.
//
// Assumed tables:
// - wallets (id PK, unique (cluster_id, owner_id))
// - wallet_reservations (wallet_id, txn_id) PK
//
// Update serializes per wallet with SELECT ... FOR UPDATE on the wallet row.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const walletColumns = `id, cluster_id, owner_id, currency, balance_minor, available_minor, status, last_transaction_at, created_at, updated_at`

func scanWallet(row *sql.Row) (Wallet, error) {
	var w Wallet
	var last sql.NullTime
	err := row.Scan(
		&w.ID,
		&w.ClusterID,
		&w.OwnerID,
		&w.Currency,
		&w.BalanceMinor,
		&w.AvailableMinor,
		&w.Status,
		&last,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}
	if last.Valid {
		t := last.Time
		w.LastTransactionAt = &t
	}
	return w, nil
}

func (r *PostgresRepo) Get(ctx context.Context, clusterID, walletID string) (Wallet, error) {
	const q = `
SELECT ` + walletColumns + `
FROM wallets
WHERE cluster_id = $1 AND id = $2
`
	return scanWallet(r.db.QueryRowContext(ctx, q, clusterID, walletID))
}

func (r *PostgresRepo) FindByOwner(ctx context.Context, clusterID, ownerID string) (Wallet, bool, error) {
	const q = `
SELECT ` + walletColumns + `
FROM wallets
WHERE cluster_id = $1 AND owner_id = $2
`
	w, err := scanWallet(r.db.QueryRowContext(ctx, q, clusterID, ownerID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Wallet{}, false, nil
		}
		return Wallet{}, false, err
	}
	return w, true, nil
}

func (r *PostgresRepo) Create(ctx context.Context, w Wallet) error {
	const q = `
INSERT INTO wallets (` + walletColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`
	var last any
	if w.LastTransactionAt != nil {
		last = *w.LastTransactionAt
	}
	_, err := r.db.ExecContext(ctx, q,
		w.ID, w.ClusterID, w.OwnerID, w.Currency,
		w.BalanceMinor, w.AvailableMinor, w.Status,
		last, w.CreatedAt, w.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Update(ctx context.Context, clusterID, walletID string, fn func(*State) error) (Wallet, error) {
	var out Wallet
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		st, err := loadStateForUpdate(ctx, tx, clusterID, walletID)
		if err != nil {
			return err
		}

		before := make(map[string]Reservation, len(st.Reservations))
		for k, v := range st.Reservations {
			before[k] = v
		}

		if err := fn(&st); err != nil {
			return err
		}

		if err := saveWallet(ctx, tx, st.Wallet); err != nil {
			return err
		}
		if err := syncReservations(ctx, tx, walletID, before, st.Reservations); err != nil {
			return err
		}
		out = st.Wallet
		return nil
	})
	if err != nil {
		return Wallet{}, err
	}
	return out, nil
}

func loadStateForUpdate(ctx context.Context, tx *sql.Tx, clusterID, walletID string) (State, error) {
	const qWallet = `
SELECT ` + walletColumns + `
FROM wallets
WHERE cluster_id = $1 AND id = $2
FOR UPDATE
`
	w, err := scanWallet(tx.QueryRowContext(ctx, qWallet, clusterID, walletID))
	if err != nil {
		return State{}, err
	}

	const qRes = `
SELECT txn_id, wallet_id, amount_minor, created_at
FROM wallet_reservations
WHERE wallet_id = $1
`
	rows, err := tx.QueryContext(ctx, qRes, walletID)
	if err != nil {
		return State{}, err
	}
	defer rows.Close()

	st := State{Wallet: w, Reservations: make(map[string]Reservation)}
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.TxnID, &res.WalletID, &res.AmountMinor, &res.CreatedAt); err != nil {
			return State{}, err
		}
		st.Reservations[res.TxnID] = res
	}
	return st, rows.Err()
}

func saveWallet(ctx context.Context, tx *sql.Tx, w Wallet) error {
	const q = `
UPDATE wallets
SET balance_minor = $3, available_minor = $4, status = $5, last_transaction_at = $6, updated_at = $7
WHERE cluster_id = $1 AND id = $2
`
	var last any
	if w.LastTransactionAt != nil {
		last = *w.LastTransactionAt
	}
	_, err := tx.ExecContext(ctx, q,
		w.ClusterID, w.ID,
		w.BalanceMinor, w.AvailableMinor, w.Status, last, w.UpdatedAt,
	)
	return err
}

func syncReservations(ctx context.Context, tx *sql.Tx, walletID string, before, after map[string]Reservation) error {
	for txnID := range before {
		if _, kept := after[txnID]; !kept {
			const q = `DELETE FROM wallet_reservations WHERE wallet_id = $1 AND txn_id = $2`
			if _, err := tx.ExecContext(ctx, q, walletID, txnID); err != nil {
				return err
			}
		}
	}
	for txnID, res := range after {
		if _, existed := before[txnID]; !existed {
			const q = `
INSERT INTO wallet_reservations (txn_id, wallet_id, amount_minor, created_at)
VALUES ($1, $2, $3, $4)
`
			if _, err := tx.ExecContext(ctx, q, txnID, walletID, res.AmountMinor, res.CreatedAt); err != nil {
				return err
			}
		}
	}
	return nil
}
