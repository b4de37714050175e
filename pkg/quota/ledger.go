package quota

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/dmitrymomot/saju/pkg/logger"
	"github.com/dmitrymomot/saju/pkg/metrics"
	"github.com/dmitrymomot/saju/pkg/subscription"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
	reapBatchSize    = 100
)

// Ledger grants and settles generation credits. The decrement happens in the
// store under a conditional guard, so concurrent reservations never overdraw.
type Ledger struct {
	accounts AccountReader
	store    Store
	catalog  subscription.Catalog
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Ledger.
type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.logger = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// NewLedger panics if accounts or store is nil.
func NewLedger(accounts AccountReader, store Store, catalog subscription.Catalog, opts ...Option) *Ledger {
	if accounts == nil || store == nil {
		panic("quota: account reader and store are required")
	}
	l := &Ledger{
		accounts: accounts,
		store:    store,
		catalog:  catalog,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Reserve takes one credit from the account. It fails with an
// *ExhaustedError when the paid period has ended or no credits remain.
func (l *Ledger) Reserve(ctx context.Context, userID uuid.UUID) (*Reservation, error) {
	acc, err := l.accounts.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := l.now()
	st := subscription.Evaluate(acc, now)
	if !st.CanGenerate() || acc.CreditsRemaining <= 0 {
		l.metrics.Reservation(string(acc.Tier), "exhausted")
		return nil, &ExhaustedError{Status: st}
	}

	res := &Reservation{
		ID:        uuid.New(),
		UserID:    userID,
		State:     ReservationPending,
		CreatedAt: now,
	}
	if err := l.store.ReserveCredit(ctx, res, now); err != nil {
		if errors.Is(err, ErrQuotaExhausted) {
			l.metrics.Reservation(string(acc.Tier), "exhausted")
			return nil, &ExhaustedError{Status: st}
		}
		l.metrics.Reservation(string(acc.Tier), "error")
		return nil, err
	}
	res.Model = l.catalog.Model(res.Tier)

	l.metrics.Reservation(string(res.Tier), "granted")
	l.logger.DebugContext(ctx, "credit reserved",
		logger.UserID(userID), logger.ReservationID(res.ID), logger.Tier(string(res.Tier)))
	return res, nil
}

// Commit records usage against res. Valid once per reservation.
func (l *Ledger) Commit(ctx context.Context, res *Reservation, usage *UsageRecord) error {
	if usage.ID == uuid.Nil {
		usage.ID = uuid.New()
	}
	usage.UserID = res.UserID
	usage.ReservationID = res.ID
	usage.Tier = res.Tier
	if usage.Model == "" {
		usage.Model = res.Model
	}
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = l.now()
	}
	if err := l.store.CommitReservation(ctx, res, usage); err != nil {
		return err
	}
	res.State = ReservationCommitted
	l.metrics.Settlement("committed")
	return nil
}

// Release returns the credit of an unused reservation. Valid once per
// reservation and mutually exclusive with Commit.
func (l *Ledger) Release(ctx context.Context, res *Reservation) error {
	restored, err := l.store.ReleaseReservation(ctx, res, l.catalog.Quota(res.Tier))
	if err != nil {
		return err
	}
	res.State = ReservationReleased
	l.metrics.Settlement("released")
	l.logger.DebugContext(ctx, "credit released",
		logger.UserID(res.UserID), logger.ReservationID(res.ID), slog.Bool("restored", restored))
	return nil
}

// ReapStale releases reservations left pending for longer than olderThan,
// which happens when a process dies between Reserve and settlement.
func (l *Ledger) ReapStale(ctx context.Context, olderThan time.Duration) (int, error) {
	before := l.now().Add(-olderThan)
	released := 0
	for {
		batch, err := l.store.ListStaleReservations(ctx, before, reapBatchSize)
		if err != nil {
			return released, err
		}
		for _, res := range batch {
			err := l.Release(ctx, res)
			switch {
			case err == nil:
				released++
			case errors.Is(err, ErrReservationNotPending):
				// settled concurrently
			default:
				return released, err
			}
		}
		if len(batch) < reapBatchSize {
			break
		}
	}
	if released > 0 {
		l.logger.InfoContext(ctx, "stale reservations released", slog.Int("count", released))
	}
	return released, nil
}

// ListUsage returns the user's generations, newest first.
func (l *Ledger) ListUsage(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]*UsageRecord, error) {
	switch {
	case opts.Limit <= 0:
		opts.Limit = DefaultListLimit
	case opts.Limit > MaxListLimit:
		opts.Limit = MaxListLimit
	}
	opts.Offset = max(opts.Offset, 0)
	opts.Search = norm.NFC.String(strings.TrimSpace(opts.Search))
	return l.store.ListUsage(ctx, userID, opts)
}

// GetUsage returns ErrUsageNotFound unless the record belongs to userID.
func (l *Ledger) GetUsage(ctx context.Context, userID, usageID uuid.UUID) (*UsageRecord, error) {
	return l.store.GetUsage(ctx, userID, usageID)
}
