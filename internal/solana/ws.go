package solana

import "context"

// WSClient defines the Solana WebSocket subscriptions used by the trader.
type WSClient interface {
	// SubscribeSignature waits for signature to reach commitment. The channel
	// delivers exactly one result and is then closed. Closed without a value
	// if the connection drops first.
	SubscribeSignature(ctx context.Context, signature string, commitment Commitment) (<-chan SignatureResult, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureResult is the payload of a signatureNotification.
type SignatureResult struct {
	Signature string
	Slot      int64
	Err       interface{} // nil when the transaction succeeded
}
