package ledger

import "context"

// Repository persists wallets and their outstanding reservations.
//
// Update must serialize concurrent callers per wallet: the callback observes
// a consistent State and its mutations are applied atomically, or not at all
// when it returns an error.
type Repository interface {
	Get(ctx context.Context, clusterID, walletID string) (Wallet, error)
	FindByOwner(ctx context.Context, clusterID, ownerID string) (Wallet, bool, error)
	Create(ctx context.Context, w Wallet) error
	Update(ctx context.Context, clusterID, walletID string, fn func(*State) error) (Wallet, error)
}
