package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PaymentOutcome is the recorded result of a charge.
type PaymentOutcome string

const (
	PaymentDone      PaymentOutcome = "done"
	PaymentFailed    PaymentOutcome = "failed"
	PaymentCancelled PaymentOutcome = "cancelled"
)

// AttemptKind distinguishes the first charge from recurring ones.
type AttemptKind string

const (
	AttemptInitial AttemptKind = "initial"
	AttemptRenewal AttemptKind = "renewal"
)

// Payment is an append-only record of a charge attempt.
type Payment struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	OrderID    string // idempotency key of the attempt; unique
	PaymentRef string // gateway reference, empty on failure
	Kind       AttemptKind
	Amount     Money
	Outcome    PaymentOutcome
	// RefundDue marks a captured charge that could not be applied to the
	// account, e.g. a second upgrade that lost the race to the first.
	RefundDue  bool
	CreatedAt  time.Time
}

// BillingToken references a stored payment method usable for recurring
// charges. At most one exists per account.
type BillingToken struct {
	UserID    uuid.UUID
	Token     string
	UpdatedAt time.Time
}

// PaymentMethod is what a client submits to upgrade.
type PaymentMethod struct {
	Ref   string // gateway payment method reference
	Email string
	Name  string
}

// Charge is a successful gateway response.
type Charge struct {
	PaymentRef string
	// Token is the reusable billing token; set only when the gateway stored
	// the method for future charges.
	Token string
}

// Gateway charges money. Implementations must honour the idempotency key so
// that a repeated call with the same key charges at most once. A declined
// charge is reported as ErrPaymentDeclined; any other error leaves the
// outcome unknown.
type Gateway interface {
	ChargeNewMethod(ctx context.Context, method PaymentMethod, amount Money, idempotencyKey string) (*Charge, error)
	ChargeWithToken(ctx context.Context, token string, amount Money, idempotencyKey string) (*Charge, error)
}
