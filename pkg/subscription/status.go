package subscription

import "time"

// StatusKind is the derived subscription state.
type StatusKind string

const (
	StatusFree          StatusKind = "free"
	StatusPaidActive    StatusKind = "paid_active"
	StatusPaidCancelled StatusKind = "paid_cancelled"
	StatusPaidExpired   StatusKind = "paid_expired"
)

// Name implements statemachine.State.
func (k StatusKind) Name() string { return string(k) }

// Status is computed from an Account and a reference time. It is never stored.
type Status struct {
	Kind StatusKind
	// EndsAt, Remaining and TimeLeft are set only for paid_active and
	// paid_cancelled. Remaining is the number of credits still spendable in
	// the period; an expired period has none regardless of the stored count.
	EndsAt    *time.Time
	Remaining int
	TimeLeft  time.Duration
}

// Evaluate derives the status of acc at now. It is a pure function.
func Evaluate(acc *Account, now time.Time) Status {
	if acc.Tier != TierPaid {
		return Status{Kind: StatusFree}
	}
	if acc.PeriodEndsAt == nil || !acc.PeriodEndsAt.After(now) {
		return Status{Kind: StatusPaidExpired}
	}
	endsAt := *acc.PeriodEndsAt
	st := Status{
		Kind:      StatusPaidActive,
		EndsAt:    &endsAt,
		Remaining: acc.CreditsRemaining,
		TimeLeft:  endsAt.Sub(now),
	}
	if acc.CancelledAt != nil {
		st.Kind = StatusPaidCancelled
	}
	return st
}

// IsPaid reports whether paid entitlements are in effect.
func (s Status) IsPaid() bool {
	return s.Kind == StatusPaidActive || s.Kind == StatusPaidCancelled
}

// CanGenerate reports whether the status alone permits a reservation.
// Credits are checked separately.
func (s Status) CanGenerate() bool {
	return s.Kind != StatusPaidExpired
}
