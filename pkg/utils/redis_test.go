package utils

import "testing"

func TestWalletLockScriptsCompile(t *testing.T) {
	// Compile-time smoke test: scripts should be initialized.
	if walletLockAcquireScript == nil || walletLockReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestWalletLockKey(t *testing.T) {
	if got := walletLockKey("w-1"); got != "wallet_lock:w-1" {
		t.Fatalf("unexpected key: %q", got)
	}
}
