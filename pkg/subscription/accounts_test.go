package subscription_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/saju/pkg/subscription"
)

func TestAccounts_Lifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	acc, err := f.accounts.OnUserCreated(ctx, subscription.IdentityEvent{Ref: "user_1", Email: "a@example.com", DisplayName: "A"})
	require.NoError(t, err)
	assert.Equal(t, subscription.TierFree, acc.Tier)
	assert.Equal(t, 3, acc.CreditsRemaining)
	assert.Nil(t, acc.PeriodEndsAt)

	dup, err := f.accounts.OnUserCreated(ctx, subscription.IdentityEvent{Ref: "user_1"})
	require.NoError(t, err)
	assert.Equal(t, acc.ID, dup.ID)
	assert.Equal(t, "a@example.com", dup.Email)

	resolved, err := f.accounts.Resolve(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, resolved.ID)

	_, err = f.accounts.OnUserCreated(ctx, subscription.IdentityEvent{})
	require.ErrorIs(t, err, subscription.ErrInvalidAccount)

	require.NoError(t, f.accounts.OnUserDeleted(ctx, "user_1"))
	_, err = f.accounts.Resolve(ctx, "user_1")
	require.ErrorIs(t, err, subscription.ErrAccountNotFound)
	require.NoError(t, f.accounts.OnUserDeleted(ctx, "user_1"), "repeated delete is ignored")
}

func TestAccounts_DeleteCascades(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	paid := f.newPaidAccount(t, "xena")

	require.NoError(t, f.accounts.OnUserDeleted(ctx, paid.IdentityRef))

	_, err := f.store.GetBillingToken(ctx, paid.ID)
	require.ErrorIs(t, err, subscription.ErrBillingTokenNotFound)
	payments, err := f.store.ListPayments(ctx, paid.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestAccounts_Overview(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.newFreeAccount(t, "yuri")
	f.newPaidAccount(t, "zoe")

	free, err := f.accounts.Overview(ctx, "yuri")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusFree, free.Status.Kind)
	assert.False(t, free.HasBillingToken)
	assert.Equal(t, "gemini-2.5-flash", free.Plan.Model)

	paid, err := f.accounts.Overview(ctx, "zoe")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPaidActive, paid.Status.Kind)
	assert.True(t, paid.HasBillingToken)
	assert.Equal(t, 10, paid.Account.CreditsRemaining)

	_, err = f.accounts.Overview(ctx, "nobody")
	require.ErrorIs(t, err, subscription.ErrAccountNotFound)
}
