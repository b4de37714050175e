package quota

import (
	"errors"

	"github.com/dmitrymomot/saju/pkg/subscription"
)

var (
	// ErrQuotaExhausted is the sentinel every *ExhaustedError matches.
	ErrQuotaExhausted        = errors.New("generation quota exhausted")
	ErrReservationNotPending = errors.New("reservation already settled")
	ErrReservationNotFound   = errors.New("reservation not found")
	ErrUsageNotFound         = errors.New("usage record not found")
)

// ExhaustedError is returned by Ledger.Reserve when a generation is denied.
// It carries the status that caused the denial so callers can tell an
// expired subscription from a spent allowance.
type ExhaustedError struct {
	Status subscription.Status
}

func (e *ExhaustedError) Error() string {
	if e.Status.Kind == subscription.StatusPaidExpired {
		return "generation quota exhausted: subscription period has ended"
	}
	return "generation quota exhausted: no credits remaining"
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrQuotaExhausted }

// Expired reports whether the denial was caused by an ended paid period.
func (e *ExhaustedError) Expired() bool {
	return e.Status.Kind == subscription.StatusPaidExpired
}
