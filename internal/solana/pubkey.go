package solana

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Sizes of decoded base58 values.
const (
	PublicKeySize = 32
	SignatureSize = 64
)

var (
	ErrInvalidPubkey    = errors.New("invalid public key")
	ErrInvalidSignature = errors.New("invalid signature")
)

// ValidatePubkey checks that s is a base58 32-byte public key. Program
// derived addresses and token mints pass; see IsOnCurve for wallet keys.
func ValidatePubkey(s string) error {
	b, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidPubkey, s, err)
	}
	if len(b) != PublicKeySize {
		return fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidPubkey, s, len(b))
	}
	return nil
}

// ValidateWallet checks that s is a public key on the ed25519 curve, i.e. an
// address that can sign.
func ValidateWallet(s string) error {
	if err := ValidatePubkey(s); err != nil {
		return err
	}
	if !IsOnCurve(s) {
		return fmt.Errorf("%w: %q is not on the ed25519 curve", ErrInvalidPubkey, s)
	}
	return nil
}

// IsOnCurve reports whether the base58 key decodes to a valid ed25519 point.
func IsOnCurve(s string) bool {
	b, err := base58.Decode(s)
	if err != nil || len(b) != PublicKeySize {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// ValidateSignature checks that s is a base58 64-byte transaction signature.
func ValidateSignature(s string) error {
	b, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(b) != SignatureSize {
		return fmt.Errorf("%w: decodes to %d bytes", ErrInvalidSignature, len(b))
	}
	return nil
}
