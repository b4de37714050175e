package subscription

import "errors"

var (
	ErrInvalidCatalog = errors.New("invalid tier catalog")
	ErrInvalidAccount = errors.New("account violates billing invariants")

	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrBillingTokenNotFound = errors.New("billing token not found")
	ErrPaymentNotFound      = errors.New("payment not found")

	// ErrConflict is returned by a Store when the expected version no longer matches.
	ErrConflict = errors.New("account was modified concurrently")
	// ErrPersistenceConflict means the engine gave up after repeated conflicts.
	ErrPersistenceConflict = errors.New("persistence conflict: retry attempts exhausted")
	// ErrDuplicatePayment is returned by a Store when a payment with the same order id exists.
	ErrDuplicatePayment = errors.New("payment already recorded")

	ErrInvalidStateTransition = errors.New("operation not allowed in current subscription state")

	ErrPaymentDeclined    = errors.New("payment declined")
	ErrPaymentUnavailable = errors.New("payment gateway unavailable")
	ErrInvalidPayment     = errors.New("invalid payment request")
)
