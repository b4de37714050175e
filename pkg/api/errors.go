package api

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/saju/pkg/generation"
	"github.com/dmitrymomot/saju/pkg/quota"
	"github.com/dmitrymomot/saju/pkg/subscription"
	"github.com/dmitrymomot/saju/pkg/validator"
	"github.com/dmitrymomot/saju/pkg/webhook"
)

var (
	ErrUnauthenticated = errors.New("identity header is missing")
	ErrInvalidBody     = errors.New("request body is not valid JSON")
	ErrInvalidID       = errors.New("invalid identifier")
)

// problem is the client-facing classification of an error.
type problem struct {
	status  int
	code    string
	message string
}

// classify maps domain errors to HTTP problems. Unknown errors are 500s and
// their text is never shown to clients.
func classify(err error) problem {
	var exhausted *quota.ExhaustedError
	switch {
	case errors.Is(err, validator.ErrValidationFailed):
		return problem{http.StatusUnprocessableEntity, "validation_error", "input is invalid"}
	case errors.As(err, &exhausted) && exhausted.Expired():
		return problem{http.StatusForbidden, "subscription_expired", "your subscription period has ended"}
	case errors.Is(err, quota.ErrQuotaExhausted):
		return problem{http.StatusForbidden, "quota_exhausted", "no generations remaining"}
	case errors.Is(err, subscription.ErrInvalidStateTransition):
		return problem{http.StatusConflict, "invalid_state_transition", "the subscription cannot do that in its current state"}
	case errors.Is(err, subscription.ErrPaymentDeclined):
		return problem{http.StatusPaymentRequired, "payment_declined", "the payment was declined"}
	case errors.Is(err, subscription.ErrInvalidPayment):
		return problem{http.StatusUnprocessableEntity, "invalid_payment_method", "payment method is invalid"}
	case errors.Is(err, subscription.ErrPaymentUnavailable):
		return problem{http.StatusServiceUnavailable, "payment_unavailable", "the payment provider is unavailable, please retry"}
	case errors.Is(err, generation.ErrGenerationFailed):
		return problem{http.StatusServiceUnavailable, "generation_failed", "the reading could not be generated, your credit was not used"}
	case errors.Is(err, subscription.ErrPersistenceConflict), errors.Is(err, subscription.ErrConflict):
		return problem{http.StatusServiceUnavailable, "conflict", "the request conflicted with another one, please retry"}
	case errors.Is(err, subscription.ErrAccountNotFound):
		return problem{http.StatusNotFound, "account_not_found", "account not found"}
	case errors.Is(err, quota.ErrUsageNotFound), errors.Is(err, ErrInvalidID):
		return problem{http.StatusNotFound, "not_found", "resource not found"}
	case errors.Is(err, ErrUnauthenticated):
		return problem{http.StatusUnauthorized, "unauthenticated", "authentication required"}
	case errors.Is(err, ErrInvalidBody), errors.Is(err, subscription.ErrInvalidAccount):
		return problem{http.StatusBadRequest, "bad_request", err.Error()}
	case isWebhookError(err):
		return problem{http.StatusUnauthorized, "invalid_signature", "webhook signature is invalid"}
	default:
		return problem{http.StatusInternalServerError, "internal_error", http.StatusText(http.StatusInternalServerError)}
	}
}

func isWebhookError(err error) bool {
	for _, target := range []error{
		webhook.ErrMissingSignature,
		webhook.ErrInvalidTimestamp,
		webhook.ErrSignatureExpired,
		webhook.ErrSignatureMismatch,
		webhook.ErrEmptyPayload,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
