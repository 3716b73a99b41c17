package domain

import (
	"errors"
	"fmt"
)

// Error categories. Every ledger error matches exactly one or two of these via errors.Is.
var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidState          = errors.New("invalid state")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrValidation            = errors.New("validation failed")
	ErrInvariant             = errors.New("ledger invariant violated")
)

var (
	ErrTradeNotFound        = categorized("trade not found", ErrNotFound)
	ErrReceiptNotFound      = categorized("receipt not found", ErrNotFound)
	ErrPositionNotFound     = categorized("position not found", ErrNotFound)
	ErrCounterpartyNotFound = categorized("counterparty not found", ErrNotFound)
	ErrBankAccountNotFound  = categorized("bank account not found", ErrNotFound)
	ErrEntryNotFound        = categorized("journal entry not found", ErrNotFound)

	ErrReceiptAlreadyDeleted      = categorized("receipt already deleted", ErrInvalidState)
	ErrReceiptNotDeleted          = categorized("receipt is not deleted", ErrInvalidState)
	ErrReceiptAlreadyProcessed    = categorized("receipt already has settlement allocations", ErrInvalidState)
	ErrInsufficientPositionAmount = categorized("amount exceeds position remaining amount", ErrInvalidState, ErrInsufficientInventory)
	ErrPositionCurrencyMismatch   = categorized("position currency does not match trade base currency", ErrInvalidState)
	ErrInsufficientPool           = categorized("not enough inventory in open positions", ErrInsufficientInventory)

	ErrUnbalancedEntry = categorized("journal entry is not balanced", ErrInvariant)
)

type categorizedError struct {
	msg   string
	kinds []error
}

func categorized(msg string, kinds ...error) error {
	return &categorizedError{msg: msg, kinds: kinds}
}

func (e *categorizedError) Error() string {
	return e.msg
}

func (e *categorizedError) Is(target error) bool {
	for _, kind := range e.kinds {
		if target == kind {
			return true
		}
	}
	return false
}

// Invalid builds a validation error for a bad request field
func Invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
