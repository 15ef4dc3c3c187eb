package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation             = errors.New("validation error")
	ErrInvalidAmount          = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrExceedsBalance         = errors.New("payment exceeds balance")
	ErrNotFound               = errors.New("not found")
	ErrDuplicate              = errors.New("duplicate record")
	ErrAlreadyPaid            = errors.New("already paid")
	ErrInvalidSlot            = errors.New("invalid slot")
	ErrMissingWinner          = errors.New("missing winner")
	ErrMemberInUse            = errors.New("member is referenced by payments or auctions")
	ErrIllegalStateTransition = errors.New("illegal state transition")
	ErrStorage                = errors.New("storage error")
)

// Invalid wraps ErrValidation with a formatted reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
