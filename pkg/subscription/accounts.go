package subscription

import (
	"context"
	"errors"

	"github.com/dmitrymomot/saju/pkg/logger"
)

// IdentityEvent is delivered by the identity provider's lifecycle hooks.
type IdentityEvent struct {
	Ref         string
	Email       string
	DisplayName string
}

// Overview is what the subscription page shows.
type Overview struct {
	Account         *Account
	Status          Status
	Plan            Plan
	HasBillingToken bool
}

// Accounts maps identity references to billing accounts.
type Accounts struct {
	store   Store
	catalog Catalog
	opts    options
}

func NewAccounts(store Store, catalog Catalog, opts ...Option) *Accounts {
	if store == nil {
		panic("subscription: store is required")
	}
	return &Accounts{store: store, catalog: catalog, opts: newOptions(opts)}
}

// Resolve returns ErrAccountNotFound for unknown identities.
func (a *Accounts) Resolve(ctx context.Context, identityRef string) (*Account, error) {
	return a.store.GetAccountByIdentity(ctx, identityRef)
}

// OnUserCreated provisions a free account. Repeated deliveries return the
// existing account.
func (a *Accounts) OnUserCreated(ctx context.Context, ev IdentityEvent) (*Account, error) {
	if ev.Ref == "" {
		return nil, errors.Join(ErrInvalidAccount, errors.New("identity reference is required"))
	}
	acc := NewFreeAccount(ev.Ref, ev.Email, ev.DisplayName, a.catalog, a.opts.now())
	err := a.store.CreateAccount(ctx, acc)
	if errors.Is(err, ErrAccountAlreadyExists) {
		return a.store.GetAccountByIdentity(ctx, ev.Ref)
	}
	if err != nil {
		return nil, err
	}
	a.opts.logger.InfoContext(ctx, "account provisioned",
		logger.UserID(acc.ID), logger.Tier(string(acc.Tier)))
	return acc, nil
}

// OnUserDeleted removes the account and everything it owns. Unknown
// identities are ignored.
func (a *Accounts) OnUserDeleted(ctx context.Context, identityRef string) error {
	err := a.store.DeleteAccountByIdentity(ctx, identityRef)
	if errors.Is(err, ErrAccountNotFound) {
		return nil
	}
	if err == nil {
		a.opts.logger.InfoContext(ctx, "account deleted", "identity_ref", identityRef)
	}
	return err
}

// Overview resolves the account and evaluates its status.
func (a *Accounts) Overview(ctx context.Context, identityRef string) (*Overview, error) {
	acc, err := a.store.GetAccountByIdentity(ctx, identityRef)
	if err != nil {
		return nil, err
	}
	st := Evaluate(acc, a.opts.now())
	_, err = a.store.GetBillingToken(ctx, acc.ID)
	switch {
	case err == nil, errors.Is(err, ErrBillingTokenNotFound):
	default:
		return nil, err
	}
	return &Overview{
		Account:         acc,
		Status:          st,
		Plan:            a.catalog.Plan(acc.Tier),
		HasBillingToken: err == nil,
	}, nil
}
