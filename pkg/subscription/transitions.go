package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/saju/pkg/logger"
	"github.com/dmitrymomot/saju/pkg/statemachine"
)

// Event drives the billing state machine.
type Event string

const (
	EventUpgrade Event = "upgrade"
	EventCancel  Event = "cancel"
	EventResume  Event = "resume"
	// EventRenew applies a successful recurring charge.
	EventRenew Event = "renew"
	// EventExpire ends a lapsed period: cancelled, unpaid, or without a token.
	EventExpire Event = "expire"
)

func (e Event) Name() string { return string(e) }

// change is the mutable payload actions operate on.
type change struct {
	acc     *Account
	now     time.Time
	catalog Catalog
	changed bool
}

func payload(data any) *change { return data.(*change) }

func startPeriod(_ context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	c := payload(data)
	paid := c.catalog.Paid()
	c.acc.Tier = TierPaid
	c.acc.PeriodEndsAt = timePtr(c.now.Add(paid.Period))
	c.acc.CancelledAt = nil
	c.acc.CreditsRemaining = paid.Quota
	c.changed = true
	return nil
}

// extendPeriod moves the boundary forward by one period from the old boundary.
// If that is still in the past (sweep ran very late) the new period starts now.
func extendPeriod(_ context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	c := payload(data)
	paid := c.catalog.Paid()
	next := c.acc.PeriodEndsAt.Add(paid.Period)
	if !next.After(c.now) {
		next = c.now.Add(paid.Period)
	}
	c.acc.PeriodEndsAt = timePtr(next)
	c.acc.CancelledAt = nil
	c.acc.CreditsRemaining = paid.Quota
	c.changed = true
	return nil
}

func markCancelled(_ context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	c := payload(data)
	c.acc.CancelledAt = timePtr(c.now)
	c.changed = true
	return nil
}

func clearCancelled(_ context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	c := payload(data)
	c.acc.CancelledAt = nil
	c.changed = true
	return nil
}

func downgrade(_ context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	c := payload(data)
	c.acc.Tier = TierFree
	c.acc.PeriodEndsAt = nil
	c.acc.CancelledAt = nil
	c.acc.CreditsRemaining = c.catalog.Quota(TierFree)
	c.changed = true
	return nil
}

func notCancelled(_ context.Context, _ statemachine.State, _ statemachine.Event, data any) bool {
	c := payload(data)
	return c.acc.CancelledAt == nil && c.acc.PeriodEndsAt != nil
}

func action(fns ...statemachine.Action) []statemachine.Action { return fns }

// billingMachine is the transition table. Rows without actions are
// idempotent no-ops.
var billingMachine = statemachine.MustNew(
	statemachine.Transition{From: StatusFree, To: StatusPaidActive, Event: EventUpgrade, Actions: action(startPeriod)},
	statemachine.Transition{From: StatusPaidExpired, To: StatusPaidActive, Event: EventUpgrade, Actions: action(startPeriod)},
	statemachine.Transition{From: StatusPaidActive, To: StatusPaidCancelled, Event: EventCancel, Actions: action(markCancelled)},
	statemachine.Transition{From: StatusPaidCancelled, To: StatusPaidCancelled, Event: EventCancel},
	statemachine.Transition{From: StatusPaidCancelled, To: StatusPaidActive, Event: EventResume, Actions: action(clearCancelled)},
	statemachine.Transition{From: StatusPaidActive, To: StatusPaidActive, Event: EventResume},
	statemachine.Transition{
		From: StatusPaidExpired, To: StatusPaidActive, Event: EventRenew,
		Guards:  []statemachine.Guard{notCancelled},
		Actions: action(extendPeriod),
	},
	statemachine.Transition{From: StatusPaidExpired, To: StatusFree, Event: EventExpire, Actions: action(downgrade)},
)

// transitioner applies machine events to stored accounts with optimistic
// concurrency. It is shared by Engine, Reconciler and Sweeper.
type transitioner struct {
	store   Store
	catalog Catalog
	opts    options
}

// fire computes the account that results from event at now without writing
// it. changed is false for no-op transitions.
func (t *transitioner) fire(ctx context.Context, acc *Account, event Event, now time.Time) (*Account, bool, error) {
	c := &change{acc: acc.Clone(), now: now, catalog: t.catalog}
	from := Evaluate(acc, now).Kind
	if _, err := billingMachine.Fire(ctx, from, event, c); err != nil {
		if statemachine.IsNoTransitionAvailableError(err) || statemachine.IsTransitionRejectedError(err) {
			return nil, false, errors.Join(ErrInvalidStateTransition, err)
		}
		return nil, false, err
	}
	if c.changed {
		c.acc.UpdatedAt = now.UTC()
	}
	return c.acc, c.changed, nil
}

// apply runs a read, fire, compare-and-set loop bounded by maxAttempts.
func (t *transitioner) apply(ctx context.Context, userID uuid.UUID, event Event, now time.Time) (*Account, error) {
	for attempt := 1; ; attempt++ {
		acc, err := t.store.GetAccount(ctx, userID)
		if err != nil {
			return nil, err
		}
		next, changed, err := t.fire(ctx, acc, event, now)
		if err != nil {
			return nil, err
		}
		if !changed {
			return acc, nil
		}

		err = t.store.UpdateAccount(ctx, next, acc.Version)
		if err == nil {
			t.opts.metrics.Transition(string(event))
			t.opts.logger.InfoContext(ctx, "subscription transition applied",
				logger.UserID(userID),
				logger.Event(string(event)),
				logger.Status(string(Evaluate(next, now).Kind)),
			)
			return next, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
		t.opts.metrics.Conflict()
		if attempt >= t.opts.maxAttempts {
			return nil, errors.Join(ErrPersistenceConflict, err)
		}
		t.opts.logger.DebugContext(ctx, "version conflict, retrying",
			logger.UserID(userID), logger.Event(string(event)), logger.Attempt(attempt))
	}
}
