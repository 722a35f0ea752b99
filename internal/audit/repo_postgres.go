package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends audit events to the audit_events table. The table is
// INSERT-only; no update or delete paths exist.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events
(id, cluster_id, type, actor_user_id, actor_role, ip_address, wallet_id, bill_id, dispute_id, txn_id, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.ClusterID, e.Type, e.ActorUserID, e.ActorRole, e.IPAddress,
		e.WalletID, e.BillID, e.DisputeID, e.TxnID, e.Message, e.Metadata, e.CreatedAt,
	)
	return err
}
