package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/saju/pkg/logger"
)

// UpgradeKey is the idempotency key of an initial charge. Concurrent or
// repeated upgrades of the same account version share a key, so the gateway
// charges at most once for them. declined counts initial charges already
// declined for the account; each decline yields a fresh key for the next card.
func UpgradeKey(userID uuid.UUID, version int64, declined int) string {
	if declined == 0 {
		return fmt.Sprintf("upgrade:%s:v%d", userID, version)
	}
	return fmt.Sprintf("upgrade:%s:v%d:r%d", userID, version, declined)
}

// RenewalKey is the idempotency key of the charge for the period ending at
// periodEndsAt.
func RenewalKey(userID uuid.UUID, periodEndsAt time.Time) string {
	return fmt.Sprintf("renew:%s:%d", userID, periodEndsAt.Unix())
}

// Engine performs user-initiated subscription transitions.
type Engine struct {
	t          *transitioner
	gateway    Gateway
	reconciler *Reconciler
}

// NewEngine panics if store or gateway is nil.
func NewEngine(store Store, gateway Gateway, catalog Catalog, opts ...Option) *Engine {
	if store == nil {
		panic("subscription: store is required")
	}
	if gateway == nil {
		panic("subscription: gateway is required")
	}
	t := &transitioner{store: store, catalog: catalog, opts: newOptions(opts)}
	return &Engine{
		t:          t,
		gateway:    gateway,
		reconciler: &Reconciler{t: t},
	}
}

// Status loads the account and evaluates it at the current time.
func (e *Engine) Status(ctx context.Context, userID uuid.UUID) (*Account, Status, error) {
	acc, err := e.t.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, Status{}, err
	}
	return acc, Evaluate(acc, e.t.opts.now()), nil
}

// Upgrade charges the paid price to method and starts a paid period.
// Allowed from free and paid_expired.
func (e *Engine) Upgrade(ctx context.Context, userID uuid.UUID, method PaymentMethod) (*Account, error) {
	if method.Ref == "" {
		return nil, errors.Join(ErrInvalidPayment, errors.New("payment method reference is required"))
	}
	acc, err := e.t.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, _, err := e.t.fire(ctx, acc, EventUpgrade, e.t.opts.now()); err != nil {
		return nil, err
	}

	declined, err := e.declinedInitialCharges(ctx, userID)
	if err != nil {
		return nil, err
	}
	key := UpgradeKey(acc.ID, acc.Version, declined)
	amount := e.t.catalog.Paid().Price
	attempt := Attempt{Kind: AttemptInitial, IdempotencyKey: key, Amount: amount}

	chargeCtx, cancel := context.WithTimeout(ctx, e.t.opts.paymentTimeout)
	charge, err := e.gateway.ChargeNewMethod(chargeCtx, method, amount, key)
	cancel()

	// The outcome must be recorded even if the caller went away meanwhile.
	recordCtx := context.WithoutCancel(ctx)
	switch {
	case errors.Is(err, ErrPaymentDeclined):
		_, rerr := e.reconciler.ApplyOutcome(recordCtx, userID, attempt, Outcome{})
		return nil, errors.Join(rerr, err)
	case errors.Is(err, ErrConflict):
		// Another upgrade holds the same key with different card details.
		return nil, err
	case err != nil:
		e.t.opts.logger.ErrorContext(ctx, "initial charge failed",
			logger.UserID(userID), logger.IdempotencyKey(key), logger.Error(err))
		return nil, errors.Join(ErrPaymentUnavailable, err)
	}
	return e.reconciler.ApplyOutcome(recordCtx, userID, attempt, Outcome{
		Succeeded:  true,
		PaymentRef: charge.PaymentRef,
		Token:      charge.Token,
	})
}

// Cancel stops renewal at the end of the current period. Cancelling an
// already cancelled subscription is a no-op.
func (e *Engine) Cancel(ctx context.Context, userID uuid.UUID) (*Account, error) {
	return e.t.apply(ctx, userID, EventCancel, e.t.opts.now())
}

// Resume undoes Cancel while the period is still running. Resuming an active
// subscription is a no-op.
func (e *Engine) Resume(ctx context.Context, userID uuid.UUID) (*Account, error) {
	return e.t.apply(ctx, userID, EventResume, e.t.opts.now())
}

func (e *Engine) declinedInitialCharges(ctx context.Context, userID uuid.UUID) (int, error) {
	payments, err := e.t.store.ListPayments(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range payments {
		if p.Kind == AttemptInitial && p.Outcome == PaymentFailed {
			n++
		}
	}
	return n, nil
}
