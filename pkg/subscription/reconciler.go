package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/saju/pkg/logger"
)

// Attempt describes the charge whose outcome is being applied.
type Attempt struct {
	Kind           AttemptKind
	IdempotencyKey string
	Amount         Money
	// PeriodEndsAt is the boundary a renewal was charged for.
	PeriodEndsAt *time.Time
}

// Outcome is the gateway result of an Attempt.
type Outcome struct {
	Succeeded  bool
	PaymentRef string
	Token      string
}

// Reconciler turns payment outcomes into account state. A successful charge
// and its tier change are persisted together or not at all.
type Reconciler struct {
	t *transitioner
}

// NewReconciler panics if store is nil.
func NewReconciler(store Store, catalog Catalog, opts ...Option) *Reconciler {
	if store == nil {
		panic("subscription: store is required")
	}
	return &Reconciler{t: &transitioner{store: store, catalog: catalog, opts: newOptions(opts)}}
}

// ApplyOutcome records the payment and, on success, applies the upgrade or
// renewal effect. Applying the same attempt twice is safe: the second call
// observes the recorded payment and returns the current account.
func (r *Reconciler) ApplyOutcome(ctx context.Context, userID uuid.UUID, a Attempt, o Outcome) (*Account, error) {
	return r.applyOutcome(ctx, userID, a, o, r.t.opts.now())
}

func (r *Reconciler) applyOutcome(ctx context.Context, userID uuid.UUID, a Attempt, o Outcome, now time.Time) (*Account, error) {
	if a.IdempotencyKey == "" {
		return nil, errors.Join(ErrInvalidPayment, errors.New("idempotency key is required"))
	}
	if a.Kind == AttemptRenewal && a.PeriodEndsAt == nil {
		return nil, errors.Join(ErrInvalidPayment, errors.New("renewal attempt without period boundary"))
	}

	payment := Payment{
		ID:         uuid.New(),
		UserID:     userID,
		OrderID:    a.IdempotencyKey,
		PaymentRef: o.PaymentRef,
		Kind:       a.Kind,
		Amount:     a.Amount,
		Outcome:    PaymentDone,
		CreatedAt:  now.UTC(),
	}
	log := r.t.opts.logger.With(logger.UserID(userID), logger.IdempotencyKey(a.IdempotencyKey))

	if !o.Succeeded {
		payment.Outcome = PaymentFailed
		if err := r.t.store.CommitPayment(ctx, PaymentCommit{Payment: payment}); err != nil && !errors.Is(err, ErrDuplicatePayment) {
			return nil, err
		}
		r.t.opts.metrics.Payment(string(a.Kind), string(PaymentFailed))
		log.WarnContext(ctx, "payment declined")
		return nil, ErrPaymentDeclined
	}

	event := EventUpgrade
	if a.Kind == AttemptRenewal {
		event = EventRenew
	}

	for attempt := 1; ; attempt++ {
		acc, err := r.t.store.GetAccount(ctx, userID)
		if err != nil {
			return nil, err
		}
		if a.Kind == AttemptRenewal && !sameInstant(acc.PeriodEndsAt, a.PeriodEndsAt) {
			// Boundary already moved: this renewal was applied or superseded.
			return acc, nil
		}

		next, _, err := r.t.fire(ctx, acc, event, now)
		if err != nil {
			if r.alreadyApplied(ctx, a.IdempotencyKey) {
				return acc, nil
			}
			return nil, r.recordRefundDue(ctx, payment, a.Kind, err, log.With(
				logger.Event(string(event)),
				logger.Status(string(Evaluate(acc, now).Kind)),
			))
		}

		commit := PaymentCommit{Payment: payment, Account: next, ExpectedVersion: acc.Version}
		if a.Kind == AttemptInitial && o.Token != "" {
			commit.Token = &BillingToken{UserID: userID, Token: o.Token, UpdatedAt: now.UTC()}
		}

		err = r.t.store.CommitPayment(ctx, commit)
		switch {
		case err == nil:
			r.t.opts.metrics.Payment(string(a.Kind), string(PaymentDone))
			r.t.opts.metrics.Transition(string(event))
			log.InfoContext(ctx, "payment applied", logger.Event(string(event)), logger.Tier(string(next.Tier)))
			return next, nil
		case errors.Is(err, ErrDuplicatePayment):
			return r.t.store.GetAccount(ctx, userID)
		case errors.Is(err, ErrConflict):
			r.t.opts.metrics.Conflict()
			if attempt >= r.t.opts.maxAttempts {
				return nil, errors.Join(ErrPersistenceConflict, err)
			}
		default:
			return nil, err
		}
	}
}

// recordRefundDue stores a captured charge that could not be applied to the
// account so that it is refunded rather than lost.
func (r *Reconciler) recordRefundDue(ctx context.Context, payment Payment, kind AttemptKind, cause error, log *slog.Logger) error {
	payment.RefundDue = true
	err := r.t.store.CommitPayment(ctx, PaymentCommit{Payment: payment})
	if err != nil && !errors.Is(err, ErrDuplicatePayment) {
		log.ErrorContext(ctx, "charge succeeded but could not be recorded", logger.Error(err))
		return errors.Join(cause, err)
	}
	r.t.opts.metrics.Payment(string(kind), "refund_due")
	log.ErrorContext(ctx, "charge succeeded but account cannot transition, refund required",
		slog.String("payment_ref", payment.PaymentRef), logger.Error(cause))
	return cause
}

func (r *Reconciler) alreadyApplied(ctx context.Context, orderID string) bool {
	p, err := r.t.store.GetPayment(ctx, orderID)
	return err == nil && p.Outcome == PaymentDone
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
