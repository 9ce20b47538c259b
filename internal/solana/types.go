package solana

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// Commitment levels accepted by the cluster.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// rank orders commitments so a status can be compared with a target.
func (c Commitment) rank() int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	default:
		return 0
	}
}

// SignatureStatus from getSignatureStatuses.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *uint64 // nil once rooted
	Err                interface{}
	ConfirmationStatus Commitment
}

// Reached reports whether the status meets the target commitment.
func (s *SignatureStatus) Reached(target Commitment) bool {
	return s != nil && s.ConfirmationStatus.rank() >= target.rank()
}

// Failed reports whether the transaction landed with an error.
func (s *SignatureStatus) Failed() bool {
	return s != nil && s.Err != nil
}

// LamportsToSOL converts lamports to SOL exactly.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), 0).Shift(-9)
}

// SOLToLamports converts SOL to lamports, truncating sub-lamport precision.
func SOLToLamports(sol decimal.Decimal) uint64 {
	return uint64(sol.Shift(9).Truncate(0).IntPart())
}
