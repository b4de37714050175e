package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PaymentCommit is persisted atomically by Store.CommitPayment.
type PaymentCommit struct {
	Payment Payment
	// Account, when set, is written with a compare-and-set on ExpectedVersion.
	Account         *Account
	ExpectedVersion int64
	// Token, when set, replaces the account's billing token.
	Token *BillingToken
}

// Store persists accounts, payments and billing tokens.
type Store interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	GetAccountByIdentity(ctx context.Context, identityRef string) (*Account, error)
	// CreateAccount returns ErrAccountAlreadyExists for a known identity.
	CreateAccount(ctx context.Context, acc *Account) error
	// DeleteAccountByIdentity removes the account and everything it owns.
	DeleteAccountByIdentity(ctx context.Context, identityRef string) error
	// UpdateAccount writes acc if the stored version equals expectedVersion
	// and sets acc.Version to expectedVersion+1. Returns ErrConflict otherwise.
	UpdateAccount(ctx context.Context, acc *Account, expectedVersion int64) error
	// ListDueForRenewal returns paid accounts with PeriodEndsAt <= now and
	// ID greater than after, ordered by ID.
	ListDueForRenewal(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]*Account, error)
	// CommitPayment stores the payment and the optional account and token
	// changes in one transaction. Returns ErrDuplicatePayment if the order id
	// exists and ErrConflict if the account version moved.
	CommitPayment(ctx context.Context, c PaymentCommit) error
	// GetPayment returns ErrPaymentNotFound for an unknown order id.
	GetPayment(ctx context.Context, orderID string) (*Payment, error)
	GetBillingToken(ctx context.Context, userID uuid.UUID) (*BillingToken, error)
	// ListPayments returns the account's payments, newest first.
	ListPayments(ctx context.Context, userID uuid.UUID) ([]*Payment, error)
}
