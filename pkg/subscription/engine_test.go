package subscription_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/saju/pkg/storage/memory"
	"github.com/dmitrymomot/saju/pkg/subscription"
)

func TestEngine_Upgrade(t *testing.T) {
	t.Parallel()

	t.Run("free to paid", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		paid := f.newPaidAccount(t, "alice")

		assert.Equal(t, subscription.TierPaid, paid.Tier)
		assert.Equal(t, 10, paid.CreditsRemaining)
		require.NotNil(t, paid.PeriodEndsAt)
		assert.Equal(t, t0.Add(30*24*time.Hour), *paid.PeriodEndsAt)
		assert.Nil(t, paid.CancelledAt)
		assert.Equal(t, int64(2), paid.Version)

		st := subscription.Evaluate(paid, f.clock.Now())
		assert.Equal(t, subscription.StatusPaidActive, st.Kind)
		assert.Equal(t, f.catalog.Quota(subscription.TierPaid), st.Remaining)
		assert.Equal(t, t0.Add(30*24*time.Hour), *st.EndsAt)

		stored := f.account(t, paid)
		assert.Equal(t, paid, stored)

		token, err := f.store.GetBillingToken(context.Background(), paid.ID)
		require.NoError(t, err)
		assert.Equal(t, "cus_alice/pm_alice", token.Token)

		payments, err := f.store.ListPayments(context.Background(), paid.ID)
		require.NoError(t, err)
		require.Len(t, payments, 1)
		assert.Equal(t, subscription.PaymentDone, payments[0].Outcome)
		assert.Equal(t, subscription.AttemptInitial, payments[0].Kind)
		assert.Equal(t, "pi_alice", payments[0].PaymentRef)
		assert.Equal(t, subscription.UpgradeKey(paid.ID, 1, 0), payments[0].OrderID)

		f.gateway.AssertExpectations(t)
	})

	t.Run("declined leaves account untouched", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		acc := f.newFreeAccount(t, "bob")
		method := subscription.PaymentMethod{Ref: "pm_bad"}
		f.gateway.On("ChargeNewMethod", mock.Anything, method, f.catalog.Paid().Price, mock.Anything).
			Return(nil, subscription.ErrPaymentDeclined).Once()

		_, err := f.engine.Upgrade(context.Background(), acc.ID, method)
		require.ErrorIs(t, err, subscription.ErrPaymentDeclined)

		assert.Equal(t, acc, f.account(t, acc))
		payments, err := f.store.ListPayments(context.Background(), acc.ID)
		require.NoError(t, err)
		require.Len(t, payments, 1)
		assert.Equal(t, subscription.PaymentFailed, payments[0].Outcome)

		_, err = f.store.GetBillingToken(context.Background(), acc.ID)
		require.ErrorIs(t, err, subscription.ErrBillingTokenNotFound)
	})

	t.Run("retry after decline uses a fresh key", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		acc := f.newFreeAccount(t, "bea")
		f.gateway.On("ChargeNewMethod", mock.Anything, subscription.PaymentMethod{Ref: "pm_bad"}, mock.Anything,
			subscription.UpgradeKey(acc.ID, acc.Version, 0)).
			Return(nil, subscription.ErrPaymentDeclined).Once()
		f.gateway.On("ChargeNewMethod", mock.Anything, subscription.PaymentMethod{Ref: "pm_good"}, mock.Anything,
			subscription.UpgradeKey(acc.ID, acc.Version, 1)).
			Return(&subscription.Charge{PaymentRef: "pi_bea", Token: "cus_bea/pm_good"}, nil).Once()

		_, err := f.engine.Upgrade(context.Background(), acc.ID, subscription.PaymentMethod{Ref: "pm_bad"})
		require.ErrorIs(t, err, subscription.ErrPaymentDeclined)

		paid, err := f.engine.Upgrade(context.Background(), acc.ID, subscription.PaymentMethod{Ref: "pm_good"})
		require.NoError(t, err)
		assert.Equal(t, subscription.TierPaid, paid.Tier)

		payments, err := f.store.ListPayments(context.Background(), acc.ID)
		require.NoError(t, err)
		assert.Len(t, payments, 2)
		f.gateway.AssertExpectations(t)
	})

	t.Run("idempotency key reused with other card", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		acc := f.newFreeAccount(t, "cid")
		f.gateway.On("ChargeNewMethod", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, subscription.ErrConflict).Once()

		_, err := f.engine.Upgrade(context.Background(), acc.ID, subscription.PaymentMethod{Ref: "pm_x"})
		require.ErrorIs(t, err, subscription.ErrConflict)
		assert.Equal(t, acc, f.account(t, acc))
	})

	t.Run("gateway unavailable records nothing", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		acc := f.newFreeAccount(t, "carol")
		f.gateway.On("ChargeNewMethod", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, context.DeadlineExceeded).Once()

		_, err := f.engine.Upgrade(context.Background(), acc.ID, subscription.PaymentMethod{Ref: "pm_x"})
		require.ErrorIs(t, err, subscription.ErrPaymentUnavailable)
		require.ErrorIs(t, err, context.DeadlineExceeded)

		assert.Equal(t, acc, f.account(t, acc))
		payments, err := f.store.ListPayments(context.Background(), acc.ID)
		require.NoError(t, err)
		assert.Empty(t, payments)
	})

	t.Run("rejected while paid", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		paid := f.newPaidAccount(t, "dave")

		_, err := f.engine.Upgrade(context.Background(), paid.ID, subscription.PaymentMethod{Ref: "pm_other"})
		require.ErrorIs(t, err, subscription.ErrInvalidStateTransition)
		f.gateway.AssertNumberOfCalls(t, "ChargeNewMethod", 1)
	})

	t.Run("allowed after expiry", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		paid := f.newPaidAccount(t, "erin")
		f.clock.Advance(31 * 24 * time.Hour)

		method := subscription.PaymentMethod{Ref: "pm_new"}
		f.gateway.On("ChargeNewMethod", mock.Anything, method, mock.Anything, subscription.UpgradeKey(paid.ID, paid.Version, 0)).
			Return(&subscription.Charge{PaymentRef: "pi_2", Token: "cus_2/pm_new"}, nil).Once()

		again, err := f.engine.Upgrade(context.Background(), paid.ID, method)
		require.NoError(t, err)
		assert.Equal(t, f.clock.Now().Add(30*24*time.Hour), *again.PeriodEndsAt)

		token, err := f.store.GetBillingToken(context.Background(), paid.ID)
		require.NoError(t, err)
		assert.Equal(t, "cus_2/pm_new", token.Token)
	})

	t.Run("missing method", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		acc := f.newFreeAccount(t, "frank")
		_, err := f.engine.Upgrade(context.Background(), acc.ID, subscription.PaymentMethod{})
		require.ErrorIs(t, err, subscription.ErrInvalidPayment)
	})

	t.Run("unknown account", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.engine.Upgrade(context.Background(), uuid.New(), subscription.PaymentMethod{Ref: "pm"})
		require.ErrorIs(t, err, subscription.ErrAccountNotFound)
	})
}

// Scenario: cancel then resume within the period.
func TestEngine_CancelResume(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	paid := f.newPaidAccount(t, "gina")
	endsAt := *paid.PeriodEndsAt

	f.clock.Advance(10 * 24 * time.Hour)
	cancelled, err := f.engine.Cancel(context.Background(), paid.ID)
	require.NoError(t, err)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, f.clock.Now(), *cancelled.CancelledAt)
	assert.Equal(t, endsAt, *cancelled.PeriodEndsAt)
	assert.Equal(t, subscription.StatusPaidCancelled, subscription.Evaluate(cancelled, f.clock.Now()).Kind)

	again, err := f.engine.Cancel(context.Background(), paid.ID)
	require.NoError(t, err)
	assert.Equal(t, cancelled.Version, again.Version, "second cancel is a no-op")

	f.clock.Advance(24 * time.Hour)
	resumed, err := f.engine.Resume(context.Background(), paid.ID)
	require.NoError(t, err)
	assert.Nil(t, resumed.CancelledAt)
	assert.Equal(t, endsAt, *resumed.PeriodEndsAt)
	assert.Equal(t, 10, resumed.CreditsRemaining)
	assert.Equal(t, subscription.StatusPaidActive, subscription.Evaluate(resumed, f.clock.Now()).Kind)

	noop, err := f.engine.Resume(context.Background(), paid.ID)
	require.NoError(t, err)
	assert.Equal(t, resumed.Version, noop.Version)

	_, st, err := f.engine.Status(context.Background(), paid.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPaidActive, st.Kind)
	assert.Equal(t, 10, st.Remaining)
	assert.Equal(t, 19*24*time.Hour, st.TimeLeft)
}

func TestEngine_InvalidTransitions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	free := f.newFreeAccount(t, "hank")

	_, err := f.engine.Cancel(context.Background(), free.ID)
	require.ErrorIs(t, err, subscription.ErrInvalidStateTransition)
	_, err = f.engine.Resume(context.Background(), free.ID)
	require.ErrorIs(t, err, subscription.ErrInvalidStateTransition)

	paid := f.newPaidAccount(t, "ivy")
	f.clock.Advance(31 * 24 * time.Hour)
	_, err = f.engine.Cancel(context.Background(), paid.ID)
	require.ErrorIs(t, err, subscription.ErrInvalidStateTransition)
	_, err = f.engine.Resume(context.Background(), paid.ID)
	require.ErrorIs(t, err, subscription.ErrInvalidStateTransition)
}

// conflictingStore fails the first n UpdateAccount calls with ErrConflict.
type conflictingStore struct {
	*memory.Store
	remaining atomic.Int32
	calls     atomic.Int32
}

func (s *conflictingStore) UpdateAccount(ctx context.Context, acc *subscription.Account, expectedVersion int64) error {
	s.calls.Add(1)
	if s.remaining.Add(-1) >= 0 {
		return subscription.ErrConflict
	}
	return s.Store.UpdateAccount(ctx, acc, expectedVersion)
}

func TestEngine_ConflictRetry(t *testing.T) {
	t.Parallel()

	setup := func(t *testing.T, conflicts int32) (*conflictingStore, *subscription.Engine, uuid.UUID) {
		t.Helper()
		f := newFixture(t)
		paid := f.newPaidAccount(t, "jack")
		store := &conflictingStore{Store: f.store}
		store.remaining.Store(conflicts)
		engine := subscription.NewEngine(store, f.gateway, f.catalog,
			subscription.WithClock(f.clock.Now),
			subscription.WithLogger(quietLogger()),
			subscription.WithMaxAttempts(3),
		)
		return store, engine, paid.ID
	}

	t.Run("recovers within budget", func(t *testing.T) {
		t.Parallel()
		store, engine, id := setup(t, 2)
		acc, err := engine.Cancel(context.Background(), id)
		require.NoError(t, err)
		assert.NotNil(t, acc.CancelledAt)
		assert.Equal(t, int32(3), store.calls.Load())
	})

	t.Run("surfaces persistence conflict", func(t *testing.T) {
		t.Parallel()
		store, engine, id := setup(t, 5)
		_, err := engine.Cancel(context.Background(), id)
		require.ErrorIs(t, err, subscription.ErrPersistenceConflict)
		assert.True(t, errors.Is(err, subscription.ErrConflict))
		assert.Equal(t, int32(3), store.calls.Load())

		acc, err := store.GetAccount(context.Background(), id)
		require.NoError(t, err)
		assert.Nil(t, acc.CancelledAt)
	})
}

func TestEngine_NilDependencies(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { subscription.NewEngine(nil, &mockGateway{}, subscription.DefaultCatalog()) })
	assert.Panics(t, func() { subscription.NewEngine(memory.New(), nil, subscription.DefaultCatalog()) })
}

// keyedGateway behaves like a gateway honouring idempotency keys: repeated
// keys return the first charge without charging again.
type keyedGateway struct {
	mu      sync.Mutex
	delay   time.Duration
	charges map[string]*subscription.Charge
	calls   int
}

func (g *keyedGateway) ChargeNewMethod(ctx context.Context, method subscription.PaymentMethod, _ subscription.Money, key string) (*subscription.Charge, error) {
	time.Sleep(g.delay)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if c, ok := g.charges[key]; ok {
		return c, nil
	}
	c := &subscription.Charge{PaymentRef: fmt.Sprintf("pi_%d", len(g.charges)+1), Token: "cus_1/" + method.Ref}
	g.charges[key] = c
	return c, nil
}

func (g *keyedGateway) ChargeWithToken(context.Context, string, subscription.Money, string) (*subscription.Charge, error) {
	return nil, errors.New("not used")
}

func TestEngine_ConcurrentUpgrade(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	acc := f.newFreeAccount(t, "race")
	gw := &keyedGateway{delay: 50 * time.Millisecond, charges: map[string]*subscription.Charge{}}
	engine := subscription.NewEngine(f.store, gw, f.catalog,
		subscription.WithClock(f.clock.Now), subscription.WithLogger(quietLogger()))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, ref := range []string{"pm_a", "pm_b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = engine.Upgrade(context.Background(), acc.ID, subscription.PaymentMethod{Ref: ref})
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, subscription.ErrInvalidStateTransition)
		}
	}
	assert.Len(t, gw.charges, 1, "concurrent upgrades must collapse into one charge")

	payments, err := f.store.ListPayments(context.Background(), acc.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, subscription.PaymentDone, payments[0].Outcome)
	assert.False(t, payments[0].RefundDue)

	got := f.account(t, acc)
	assert.Equal(t, subscription.TierPaid, got.Tier)
	assert.Equal(t, f.catalog.Quota(subscription.TierPaid), got.CreditsRemaining)
}
