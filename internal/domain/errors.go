package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ConfigError reports malformed or inconsistent configuration.
// Fatal at startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// PersistenceError reports that the ledger store could not complete an operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// CollaboratorError reports a failed or timed-out call to an external service.
// Scoped to a single asset within a tick.
type CollaboratorError struct {
	Collaborator string // "execution" | "discovery" | "model"
	Op           string
	Asset        string
	Err          error
}

func (e *CollaboratorError) Error() string {
	if e.Asset == "" {
		return fmt.Sprintf("%s %s: %v", e.Collaborator, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s [%s]: %v", e.Collaborator, e.Op, e.Asset, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// InsufficientBalanceError means sizing could not produce a tradable amount.
// The entry is skipped and not retried.
type InsufficientBalanceError struct {
	Balance decimal.Decimal
	Minimum decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: %s below minimum %s", e.Balance, e.Minimum)
}

// IsInsufficientBalance reports whether err is an InsufficientBalanceError.
func IsInsufficientBalance(err error) bool {
	var ib *InsufficientBalanceError
	return errors.As(err, &ib)
}

// IsPersistence reports whether err is a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
