package apperrors

import (
	"errors"
)

// Kind groups errors by how a caller should react to them
type Kind int

const (
	KindUnknown Kind = iota

	// Bad input: rejected immediately, no state change
	KindValidation

	// Valid input that clashes with current state: rejected, state unchanged
	KindConflict

	// Referenced entity does not exist
	KindResource

	// Caller is not allowed to perform the operation
	KindPermission

	// Internal error; must never be shown to users as a validation problem
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindResource:
		return "resource"
	case KindPermission:
		return "permission"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// kindError is a sentinel bound to its kind
type kindError struct {
	kind Kind
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func newError(kind Kind, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

var (
	ErrInvalidAmount      = newError(KindValidation, "invalid amount")
	ErrInvalidAccountID   = newError(KindValidation, "invalid account id")
	ErrSelfReferral       = newError(KindValidation, "account can not refer itself")
	ErrInvalidCode        = newError(KindValidation, "invalid redeem code")
	ErrInvalidDestination = newError(KindValidation, "invalid payment destination")
	ErrInvalidStatus      = newError(KindValidation, "invalid withdrawal status")

	ErrCodeAlreadyUsed     = newError(KindConflict, "redeem code already used")
	ErrAlreadyReferred     = newError(KindConflict, "account already referred")
	ErrAlreadyCounted      = newError(KindConflict, "referral already counted")
	ErrNoPendingWithdrawal = newError(KindConflict, "no pending withdrawal")
	ErrNoActiveFlow        = newError(KindConflict, "no active withdrawal flow")
	ErrCooldownActive      = newError(KindConflict, "cooldown is active")
	ErrBelowMinimum        = newError(KindConflict, "balance below minimum withdrawal")
	ErrInsufficientBalance = newError(KindConflict, "insufficient balance")
	ErrWithdrawalResolved  = newError(KindConflict, "withdrawal already resolved")

	ErrUnknownAccount    = newError(KindResource, "account not found")
	ErrUnknownReferrer   = newError(KindResource, "referrer not found")
	ErrNoCodeAvailable   = newError(KindResource, "no redeem code available")
	ErrUnknownWithdrawal = newError(KindResource, "withdrawal not found")

	ErrNotMember = newError(KindPermission, "membership required")
	ErrNotAdmin  = newError(KindPermission, "admin rights required")

	ErrInvariantViolation = newError(KindInvariant, "ledger invariant violated")
)

// KindOf returns the kind of the first known sentinel in err's chain
// Errors not produced by this package are KindUnknown
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindUnknown
}
