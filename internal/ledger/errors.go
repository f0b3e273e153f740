package ledger

import "errors"

// Kind classifies ledger failures so transports can map them to status
// codes without matching individual sentinels.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindUnauthorized
	KindConflict
	KindInsufficientPayment
	KindInvalidState
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindInsufficientPayment:
		return "insufficient_payment"
	case KindInvalidState:
		return "invalid_state"
	case KindInvalidArgument:
		return "invalid_argument"
	default:
		return "internal"
	}
}

// Error is a ledger failure with a stable machine-readable code.
type Error struct {
	Kind Kind
	Code string
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

var (
	ErrLocationNotFound    = newError(KindNotFound, "LOCATION_NOT_FOUND", "location not found")
	ErrSpotNotFound        = newError(KindNotFound, "SPOT_NOT_FOUND", "spot not found")
	ErrReservationNotFound = newError(KindNotFound, "RESERVATION_NOT_FOUND", "reservation not found")

	// ErrUnauthorized is returned for owner-only operations and for calls
	// that carry no caller identity at all.
	ErrUnauthorized = newError(KindUnauthorized, "UNAUTHORIZED", "caller is not authorized")
	ErrNotOwner     = newError(KindUnauthorized, "NOT_OWNER", "caller does not own this reservation")

	ErrSpotUnavailable = newError(KindConflict, "SPOT_UNAVAILABLE", "spot is not available for the requested window")
	ErrWindowConflict  = newError(KindConflict, "WINDOW_CONFLICT", "extension overlaps another reservation")
	ErrDuplicateSpot   = newError(KindConflict, "DUPLICATE_SPOT", "spot id already exists in this location")
	ErrSpotInUse       = newError(KindConflict, "SPOT_IN_USE", "spot has active reservations")

	ErrInsufficientPayment  = newError(KindInsufficientPayment, "INSUFFICIENT_PAYMENT", "payment does not cover the cost")
	ErrInsufficientFunds    = newError(KindInsufficientPayment, "INSUFFICIENT_FUNDS", "wallet balance is lower than the payment")
	ErrTreasuryInsufficient = newError(KindInsufficientPayment, "TREASURY_INSUFFICIENT", "withdrawal exceeds the unescrowed treasury balance")

	ErrLocationInactive     = newError(KindInvalidState, "LOCATION_INACTIVE", "location is not active")
	ErrReservationNotActive = newError(KindInvalidState, "RESERVATION_NOT_ACTIVE", "reservation is not active")
	ErrAlreadyCancelled     = newError(KindInvalidState, "ALREADY_CANCELLED", "reservation already cancelled")
	ErrAlreadyCompleted     = newError(KindInvalidState, "ALREADY_COMPLETED", "reservation already completed")
	ErrWindowNotElapsed     = newError(KindInvalidState, "WINDOW_NOT_ELAPSED", "reservation window has not ended yet")

	ErrInvalidDuration = newError(KindInvalidArgument, "INVALID_DURATION", "duration must be a positive number of hours")
	ErrInvalidAmount   = newError(KindInvalidArgument, "INVALID_AMOUNT", "amount must be positive")
	ErrInvalidRate     = newError(KindInvalidArgument, "INVALID_RATE", "hourly rate must be positive")
	ErrInvalidSpotID   = newError(KindInvalidArgument, "INVALID_SPOT_ID", "spot id must be 1-32 characters of letters, digits, '-' or '_'")
	ErrInvalidSpotType = newError(KindInvalidArgument, "INVALID_SPOT_TYPE", "spot type must be standard, handicap or electric")
	ErrInvalidName     = newError(KindInvalidArgument, "INVALID_NAME", "name is required and at most 255 characters")
	ErrInvalidAddress  = newError(KindInvalidArgument, "INVALID_ADDRESS", "malformed wallet address")
	ErrInvalidStart    = newError(KindInvalidArgument, "INVALID_START", "start time is out of range or the window has already ended")

	ErrInvalidPaymentMethod   = newError(KindInvalidArgument, "INVALID_PAYMENT_METHOD", "payment method must be at most 64 characters")
	ErrInvalidLocationAddress = newError(KindInvalidArgument, "INVALID_LOCATION_ADDRESS", "location address must be at most 255 characters")
)

// KindOf reports the kind of err, looking through wrapping. Errors that
// did not originate in the ledger are KindInternal.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindInternal
}

// CodeOf returns the stable code of a ledger error, or "INTERNAL".
func CodeOf(err error) string {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return "INTERNAL"
}
