package ledger

import "time"

type WalletStatus string

const (
	WalletStatusActive    WalletStatus = "active"
	WalletStatusSuspended WalletStatus = "suspended"
	WalletStatusClosed    WalletStatus = "closed"
)

// Wallet holds both the settled balance and the spendable balance.
//
// AvailableMinor = BalanceMinor - sum(outstanding reservations).
// A cluster's pooled wallet is the wallet whose OwnerID equals its ClusterID.
type Wallet struct {
	ID                string       `json:"id"`
	ClusterID         string       `json:"cluster_id"`
	OwnerID           string       `json:"owner_id"`
	Currency          string       `json:"currency"`
	BalanceMinor      int64        `json:"balance_minor"`
	AvailableMinor    int64        `json:"available_minor"`
	Status            WalletStatus `json:"status"`
	LastTransactionAt *time.Time   `json:"last_transaction_at,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

func (w Wallet) IsActive() bool { return w.Status == WalletStatusActive }

// Reservation is a hold placed on a wallet's available balance while a
// transaction is in flight. It is keyed by the owning transaction id, which
// is what makes release idempotent.
type Reservation struct {
	TxnID       string    `json:"txn_id"`
	WalletID    string    `json:"wallet_id"`
	AmountMinor int64     `json:"amount_minor"`
	CreatedAt   time.Time `json:"created_at"`
}

// State is the unit of mutation handed to Repository.Update callbacks.
// Repositories guarantee the callback runs while the wallet is exclusively
// held (row lock or per-wallet mutex), so money math inside it is serial.
type State struct {
	Wallet       Wallet
	Reservations map[string]Reservation // keyed by txn id
}

func (s *State) reservedTotal() int64 {
	var total int64
	for _, r := range s.Reservations {
		total += r.AmountMinor
	}
	return total
}
