package quota

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/saju/pkg/subscription"
)

// ReservationState tracks the two-phase lifecycle of a credit.
type ReservationState string

const (
	ReservationPending   ReservationState = "pending"
	ReservationCommitted ReservationState = "committed"
	ReservationReleased  ReservationState = "released"
)

// Reservation is one credit taken from an account and not yet settled.
type Reservation struct {
	ID     uuid.UUID
	UserID uuid.UUID
	// Tier and PeriodEndsAt snapshot the account at reservation time. A
	// release only restores the credit into the same period.
	Tier         subscription.Tier
	PeriodEndsAt *time.Time
	Model        string
	State        ReservationState
	CreatedAt    time.Time
}

// Subject holds the input parameters of a reading.
type Subject struct {
	Name      string
	BirthDate string // YYYY-MM-DD
	BirthTime string // HH:MM, optional
	IsLunar   bool
	Gender    string
	TimeZone  string
	Note      string
}

// UsageRecord is one completed generation. It exists iff a credit was
// committed for it.
type UsageRecord struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	ReservationID uuid.UUID
	Subject       Subject
	Result        string
	Tier          subscription.Tier
	Model         string
	CreatedAt     time.Time
}

// ListOptions pages and filters usage history.
type ListOptions struct {
	Limit  int
	Offset int
	// Search matches subject names case-insensitively.
	Search string
}

// AccountReader loads accounts. subscription.Store satisfies it.
type AccountReader interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*subscription.Account, error)
}

// Store persists reservations and usage records. Every method is atomic.
type Store interface {
	// ReserveCredit decrements the account's credits iff at least one
	// remains and the account is free or its period ends after now, then
	// stores res as pending. res.Tier and res.PeriodEndsAt are set from the
	// row that was decremented. Returns ErrQuotaExhausted if the guard fails.
	ReserveCredit(ctx context.Context, res *Reservation, now time.Time) error
	// CommitReservation stores usage and marks res committed.
	// Returns ErrReservationNotPending if res was already settled.
	CommitReservation(ctx context.Context, res *Reservation, usage *UsageRecord) error
	// ReleaseReservation marks res released and gives the credit back if the
	// account still has the reserved tier and period, capped at maxCredits.
	ReleaseReservation(ctx context.Context, res *Reservation, maxCredits int) (restored bool, err error)
	// ListStaleReservations returns pending reservations created before the
	// given instant, oldest first.
	ListStaleReservations(ctx context.Context, before time.Time, limit int) ([]*Reservation, error)
	ListUsage(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]*UsageRecord, error)
	GetUsage(ctx context.Context, userID, usageID uuid.UUID) (*UsageRecord, error)
}
