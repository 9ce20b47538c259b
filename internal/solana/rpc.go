package solana

import "context"

// RPCClient defines the Solana JSON-RPC calls used by the trader.
type RPCClient interface {
	// GetBalance returns the lamport balance of an account.
	GetBalance(ctx context.Context, pubkey string) (uint64, error)

	// GetSignatureStatuses returns one status per signature, nil where the
	// cluster has no record of it.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (int64, error)
}
