package subscription_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/saju/pkg/subscription"
)

const period = 30 * 24 * time.Hour

// Scenario: a cancelled subscription lapses into free without a charge.
func TestSweeper_CancelledLapse(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	paid := f.newPaidAccount(t, "kim")
	_, err := f.engine.Cancel(context.Background(), paid.ID)
	require.NoError(t, err)

	f.clock.Advance(period + time.Minute)
	report, err := f.sweeper.Run(context.Background(), f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, subscription.SweepReport{Scanned: 1, Downgraded: 1}, report)

	acc := f.account(t, paid)
	assert.Equal(t, subscription.TierFree, acc.Tier)
	assert.Nil(t, acc.PeriodEndsAt)
	assert.Nil(t, acc.CancelledAt)
	assert.Equal(t, 3, acc.CreditsRemaining)
	f.gateway.AssertNotCalled(t, "ChargeWithToken", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// Scenario: renewal succeeds and a second run for the same instant is a no-op.
func TestSweeper_Renewal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	paid := f.newPaidAccount(t, "lee")
	oldEnd := *paid.PeriodEndsAt
	key := subscription.RenewalKey(paid.ID, oldEnd)

	f.gateway.On("ChargeWithToken", mock.Anything, "cus_lee/pm_lee", f.catalog.Paid().Price, key).
		Return(&subscription.Charge{PaymentRef: "pi_renew"}, nil).Once()

	f.clock.Advance(period + time.Hour)
	now := f.clock.Now()

	report, err := f.sweeper.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, subscription.SweepReport{Scanned: 1, Renewed: 1}, report)

	acc := f.account(t, paid)
	assert.Equal(t, subscription.TierPaid, acc.Tier)
	assert.Equal(t, oldEnd.Add(period), *acc.PeriodEndsAt)
	assert.Equal(t, 10, acc.CreditsRemaining)
	assert.Equal(t, subscription.StatusPaidActive, subscription.Evaluate(acc, now).Kind)

	report, err = f.sweeper.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, subscription.SweepReport{}, report)
	assert.Equal(t, acc, f.account(t, paid))

	payments, err := f.store.ListPayments(context.Background(), paid.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	renewal, err := f.store.GetPayment(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, subscription.AttemptRenewal, renewal.Kind)
	assert.Equal(t, "pi_renew", renewal.PaymentRef)

	f.gateway.AssertNumberOfCalls(t, "ChargeWithToken", 1)
}

func TestSweeper_LateRunStartsFromNow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	paid := f.newPaidAccount(t, "moe")
	f.gateway.On("ChargeWithToken", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&subscription.Charge{PaymentRef: "pi_late"}, nil).Once()

	f.clock.Advance(3 * period)
	report, err := f.sweeper.Run(context.Background(), f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Renewed)

	acc := f.account(t, paid)
	assert.Equal(t, f.clock.Now().Add(period), *acc.PeriodEndsAt)
}

func TestSweeper_Declined(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	paid := f.newPaidAccount(t, "ned")
	f.gateway.On("ChargeWithToken", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.Join(subscription.ErrPaymentDeclined, errors.New("insufficient funds"))).Once()

	f.clock.Advance(period)
	report, err := f.sweeper.Run(context.Background(), f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, subscription.SweepReport{Scanned: 1, Downgraded: 1}, report)

	acc := f.account(t, paid)
	assert.Equal(t, subscription.TierFree, acc.Tier)
	assert.Equal(t, 3, acc.CreditsRemaining)

	failed, err := f.store.GetPayment(context.Background(), subscription.RenewalKey(paid.ID, *paid.PeriodEndsAt))
	require.NoError(t, err)
	assert.Equal(t, subscription.PaymentFailed, failed.Outcome)
}

func TestSweeper_NoToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	acc := f.newFreeAccount(t, "oz")
	method := subscription.PaymentMethod{Ref: "pm_oz"}
	// Gateway did not keep the method on file.
	f.gateway.On("ChargeNewMethod", mock.Anything, method, mock.Anything, mock.Anything).
		Return(&subscription.Charge{PaymentRef: "pi_oz"}, nil).Once()
	_, err := f.engine.Upgrade(context.Background(), acc.ID, method)
	require.NoError(t, err)

	f.clock.Advance(period)
	report, err := f.sweeper.Run(context.Background(), f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Downgraded)
	assert.Equal(t, subscription.TierFree, f.account(t, acc).Tier)
}

func TestSweeper_UnknownOutcomeIsRetried(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	paid := f.newPaidAccount(t, "pat")
	key := subscription.RenewalKey(paid.ID, *paid.PeriodEndsAt)

	f.gateway.On("ChargeWithToken", mock.Anything, mock.Anything, mock.Anything, key).
		Return(nil, context.DeadlineExceeded).Once()
	f.gateway.On("ChargeWithToken", mock.Anything, mock.Anything, mock.Anything, key).
		Return(&subscription.Charge{PaymentRef: "pi_retry"}, nil).Once()

	f.clock.Advance(period)
	report, err := f.sweeper.Run(context.Background(), f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, subscription.SweepReport{Scanned: 1, Failed: 1}, report)
	assert.Equal(t, paid, f.account(t, paid), "account untouched while outcome is unknown")

	f.clock.Advance(15 * time.Minute)
	report, err = f.sweeper.Run(context.Background(), f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Renewed)
	assert.Equal(t, paid.PeriodEndsAt.Add(period), *f.account(t, paid).PeriodEndsAt)
	f.gateway.AssertExpectations(t)
}

func TestSweeper_PagesAndIsolatesFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(t, subscription.WithBatchSize(2))
	var accounts []*subscription.Account
	for i := range 5 {
		accounts = append(accounts, f.newPaidAccount(t, fmt.Sprintf("user%d", i)))
	}
	// user0 fails with an unknown outcome; everyone else renews.
	f.gateway.On("ChargeWithToken", mock.Anything, "cus_user0/pm_user0", mock.Anything, mock.Anything).
		Return(nil, errors.New("connection reset"))
	f.gateway.On("ChargeWithToken", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&subscription.Charge{PaymentRef: "pi"}, nil)

	f.clock.Advance(period)
	report, err := f.sweeper.Run(context.Background(), f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, subscription.SweepReport{Scanned: 5, Renewed: 4, Failed: 1}, report)

	for i, acc := range accounts {
		got := f.account(t, acc)
		if i == 0 {
			assert.Equal(t, subscription.StatusPaidExpired, subscription.Evaluate(got, f.clock.Now()).Kind)
			continue
		}
		assert.Equal(t, subscription.StatusPaidActive, subscription.Evaluate(got, f.clock.Now()).Kind)
	}
}

func TestSweeper_SkipsActiveAndFree(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.newFreeAccount(t, "quinn")
	f.newPaidAccount(t, "ray")

	report, err := f.sweeper.Run(context.Background(), f.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, subscription.SweepReport{}, report)
}

func TestSweeper_CancelledContext(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.sweeper.Run(ctx, f.clock.Now())
	require.ErrorIs(t, err, context.Canceled)
}
