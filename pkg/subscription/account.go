package subscription

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Account is the billing state of one user.
//
// Invariants: PeriodEndsAt is nil iff Tier is free; CancelledAt may be set
// only on paid accounts and not after PeriodEndsAt; CreditsRemaining stays
// between zero and the tier quota. Version
// increases by one on every successful write.
type Account struct {
	ID               uuid.UUID
	IdentityRef      string // stable id from the external identity provider
	Email            string
	DisplayName      string
	Tier             Tier
	PeriodEndsAt     *time.Time
	CancelledAt      *time.Time
	CreditsRemaining int
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewFreeAccount returns an unsaved free-tier account holding the free quota.
func NewFreeAccount(identityRef, email, displayName string, catalog Catalog, now time.Time) *Account {
	now = now.UTC().Truncate(time.Microsecond)
	return &Account{
		ID:               uuid.New(),
		IdentityRef:      identityRef,
		Email:            email,
		DisplayName:      displayName,
		Tier:             TierFree,
		CreditsRemaining: catalog.Quota(TierFree),
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.PeriodEndsAt != nil {
		t := *a.PeriodEndsAt
		c.PeriodEndsAt = &t
	}
	if a.CancelledAt != nil {
		t := *a.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}

// Validate checks the account invariants against the tier quotas of catalog.
func (a *Account) Validate(catalog Catalog) error {
	switch {
	case !a.Tier.Valid():
		return ErrInvalidAccount
	case a.Tier == TierFree && (a.PeriodEndsAt != nil || a.CancelledAt != nil):
		return ErrInvalidAccount
	case a.Tier == TierPaid && a.PeriodEndsAt == nil:
		return ErrInvalidAccount
	case a.CancelledAt != nil && a.CancelledAt.After(*a.PeriodEndsAt):
		return errors.Join(ErrInvalidAccount, errors.New("cancelled after the period end"))
	case a.CreditsRemaining < 0:
		return ErrInvalidAccount
	case a.CreditsRemaining > catalog.Quota(a.Tier):
		return errors.Join(ErrInvalidAccount, fmt.Errorf("%d credits exceed the %s quota", a.CreditsRemaining, a.Tier))
	}
	return nil
}

// timePtr normalises to UTC microseconds, the precision Postgres stores.
func timePtr(t time.Time) *time.Time {
	t = t.UTC().Truncate(time.Microsecond)
	return &t
}
