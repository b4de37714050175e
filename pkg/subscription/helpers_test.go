package subscription_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/saju/pkg/storage/memory"
	"github.com/dmitrymomot/saju/pkg/subscription"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) ChargeNewMethod(ctx context.Context, method subscription.PaymentMethod, amount subscription.Money, key string) (*subscription.Charge, error) {
	args := m.Called(ctx, method, amount, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Charge), args.Error(1)
}

func (m *mockGateway) ChargeWithToken(ctx context.Context, token string, amount subscription.Money, key string) (*subscription.Charge, error) {
	args := m.Called(ctx, token, amount, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Charge), args.Error(1)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store    *memory.Store
	gateway  *mockGateway
	clock    *clock
	catalog  subscription.Catalog
	engine   *subscription.Engine
	sweeper  *subscription.Sweeper
	accounts *subscription.Accounts
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, opts ...subscription.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:   memory.New(),
		gateway: &mockGateway{},
		clock:   &clock{now: t0},
		catalog: subscription.DefaultCatalog(),
	}
	opts = append([]subscription.Option{
		subscription.WithClock(f.clock.Now),
		subscription.WithLogger(quietLogger()),
	}, opts...)
	f.engine = subscription.NewEngine(f.store, f.gateway, f.catalog, opts...)
	f.sweeper = subscription.NewSweeper(f.store, f.gateway, f.catalog, opts...)
	f.accounts = subscription.NewAccounts(f.store, f.catalog, opts...)
	return f
}

// newFreeAccount provisions a free account through the identity hook.
func (f *fixture) newFreeAccount(t *testing.T, ref string) *subscription.Account {
	t.Helper()
	acc, err := f.accounts.OnUserCreated(context.Background(), subscription.IdentityEvent{Ref: ref, Email: ref + "@example.com"})
	require.NoError(t, err)
	return acc
}

// newPaidAccount provisions an account and upgrades it with a card that is
// kept on file as "cus_<ref>/pm_<ref>".
func (f *fixture) newPaidAccount(t *testing.T, ref string) *subscription.Account {
	t.Helper()
	acc := f.newFreeAccount(t, ref)
	method := subscription.PaymentMethod{Ref: "pm_" + ref}
	key := subscription.UpgradeKey(acc.ID, acc.Version, 0)
	f.gateway.On("ChargeNewMethod", mock.Anything, method, f.catalog.Paid().Price, key).
		Return(&subscription.Charge{PaymentRef: "pi_" + ref, Token: "cus_" + ref + "/pm_" + ref}, nil).Once()
	paid, err := f.engine.Upgrade(context.Background(), acc.ID, method)
	require.NoError(t, err)
	return paid
}

func (f *fixture) account(t *testing.T, acc *subscription.Account) *subscription.Account {
	t.Helper()
	got, err := f.store.GetAccount(context.Background(), acc.ID)
	require.NoError(t, err)
	return got
}
