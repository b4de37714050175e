package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/saju/pkg/logger"
)

// SweepReport summarises one sweep run.
type SweepReport struct {
	Scanned    int
	Renewed    int
	Downgraded int
	Skipped    int
	Failed     int
}

type sweepResult string

const (
	sweepRenewed    sweepResult = "renewed"
	sweepDowngraded sweepResult = "downgraded"
	sweepSkipped    sweepResult = "skipped"
	sweepFailed     sweepResult = "failed"
)

// Sweeper processes paid accounts whose period has ended: it renews those
// with a billing token and no pending cancellation and downgrades the rest.
// Running it twice for the same instant charges and extends at most once.
type Sweeper struct {
	t          *transitioner
	gateway    Gateway
	reconciler *Reconciler
}

// NewSweeper panics if store or gateway is nil.
func NewSweeper(store Store, gateway Gateway, catalog Catalog, opts ...Option) *Sweeper {
	if store == nil {
		panic("subscription: store is required")
	}
	if gateway == nil {
		panic("subscription: gateway is required")
	}
	t := &transitioner{store: store, catalog: catalog, opts: newOptions(opts)}
	return &Sweeper{t: t, gateway: gateway, reconciler: &Reconciler{t: t}}
}

// Run processes every account due at now. A failure for one account is
// logged and counted; only listing errors abort the run.
func (s *Sweeper) Run(ctx context.Context, now time.Time) (SweepReport, error) {
	var report SweepReport
	log := s.t.opts.logger.With(logger.Component("renewal_sweep"))
	started := time.Now()

	cursor := uuid.Nil
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		batch, err := s.t.store.ListDueForRenewal(ctx, now, cursor, s.t.opts.batchSize)
		if err != nil {
			return report, err
		}
		for _, acc := range batch {
			cursor = acc.ID
			report.Scanned++

			result, err := s.process(ctx, acc.ID, now)
			if err != nil {
				log.ErrorContext(ctx, "renewal failed", logger.UserID(acc.ID), logger.Error(err))
			}
			s.t.opts.metrics.SweepAccount(string(result))
			switch result {
			case sweepRenewed:
				report.Renewed++
			case sweepDowngraded:
				report.Downgraded++
			case sweepSkipped:
				report.Skipped++
			default:
				report.Failed++
			}
		}
		if len(batch) < s.t.opts.batchSize {
			break
		}
	}

	log.InfoContext(ctx, "renewal sweep finished",
		"scanned", report.Scanned,
		"renewed", report.Renewed,
		"downgraded", report.Downgraded,
		"skipped", report.Skipped,
		"failed", report.Failed,
		logger.Duration(time.Since(started)),
	)
	return report, nil
}

func (s *Sweeper) process(ctx context.Context, userID uuid.UUID, now time.Time) (sweepResult, error) {
	acc, err := s.t.store.GetAccount(ctx, userID)
	if errors.Is(err, ErrAccountNotFound) {
		return sweepSkipped, nil
	}
	if err != nil {
		return sweepFailed, err
	}
	// Another run or the user got here first.
	if Evaluate(acc, now).Kind != StatusPaidExpired {
		return sweepSkipped, nil
	}
	if acc.CancelledAt != nil || acc.PeriodEndsAt == nil {
		return s.expire(ctx, userID, now)
	}

	token, err := s.t.store.GetBillingToken(ctx, userID)
	if errors.Is(err, ErrBillingTokenNotFound) {
		s.t.opts.logger.WarnContext(ctx, "no billing token on file, downgrading", logger.UserID(userID))
		return s.expire(ctx, userID, now)
	}
	if err != nil {
		return sweepFailed, err
	}

	amount := s.t.catalog.Paid().Price
	attempt := Attempt{
		Kind:           AttemptRenewal,
		IdempotencyKey: RenewalKey(userID, *acc.PeriodEndsAt),
		Amount:         amount,
		PeriodEndsAt:   acc.PeriodEndsAt,
	}

	chargeCtx, cancel := context.WithTimeout(ctx, s.t.opts.paymentTimeout)
	charge, err := s.gateway.ChargeWithToken(chargeCtx, token.Token, amount, attempt.IdempotencyKey)
	cancel()

	switch {
	case errors.Is(err, ErrPaymentDeclined):
		if _, rerr := s.reconciler.applyOutcome(ctx, userID, attempt, Outcome{}, now); rerr != nil && !errors.Is(rerr, ErrPaymentDeclined) {
			return sweepFailed, rerr
		}
		return s.expire(ctx, userID, now)
	case err != nil:
		// Outcome unknown; the next run retries with the same key.
		return sweepFailed, errors.Join(ErrPaymentUnavailable, err)
	}

	if _, err := s.reconciler.applyOutcome(ctx, userID, attempt, Outcome{Succeeded: true, PaymentRef: charge.PaymentRef}, now); err != nil {
		return sweepFailed, err
	}
	return sweepRenewed, nil
}

func (s *Sweeper) expire(ctx context.Context, userID uuid.UUID, now time.Time) (sweepResult, error) {
	_, err := s.t.apply(ctx, userID, EventExpire, now)
	switch {
	case err == nil:
		return sweepDowngraded, nil
	case errors.Is(err, ErrInvalidStateTransition), errors.Is(err, ErrAccountNotFound):
		return sweepSkipped, nil
	default:
		return sweepFailed, err
	}
}
