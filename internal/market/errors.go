package market

import "errors"

// Reason is the logical name of a rejected trade or route operation.
type Reason string

const (
	ReasonUnknownMarketOrResource Reason = "UnknownMarketOrResource"
	ReasonInsufficientFunds       Reason = "InsufficientFunds"
	ReasonInsufficientResource    Reason = "InsufficientResource"
	ReasonStorageExceeded         Reason = "StorageExceeded"
	ReasonUnprofitableRoute       Reason = "UnprofitableRoute"
	ReasonMarginTooLow            Reason = "MarginTooLow"
	ReasonInvalidOrder            Reason = "InvalidOrder"
	ReasonUnknownRoute            Reason = "UnknownRoute"
)

// RejectionError is returned when an operation is refused. No state is
// changed when a RejectionError is returned.
type RejectionError struct {
	Reason Reason
}

func (e *RejectionError) Error() string {
	return "market: rejected: " + string(e.Reason)
}

// Is matches rejections by reason so errors.Is works with the sentinels below.
func (e *RejectionError) Is(target error) bool {
	t, ok := target.(*RejectionError)
	return ok && t.Reason == e.Reason
}

var (
	ErrUnknownMarketOrResource = &RejectionError{ReasonUnknownMarketOrResource}
	ErrInsufficientFunds       = &RejectionError{ReasonInsufficientFunds}
	ErrInsufficientResource    = &RejectionError{ReasonInsufficientResource}
	ErrStorageExceeded         = &RejectionError{ReasonStorageExceeded}
	ErrUnprofitableRoute       = &RejectionError{ReasonUnprofitableRoute}
	ErrMarginTooLow            = &RejectionError{ReasonMarginTooLow}
	ErrInvalidOrder            = &RejectionError{ReasonInvalidOrder}
	ErrUnknownRoute            = &RejectionError{ReasonUnknownRoute}
)

// ReasonOf extracts the rejection reason from err, or "" when err is not a rejection.
func ReasonOf(err error) Reason {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ""
}
