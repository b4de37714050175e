package webhook

import "errors"

var (
	ErrMissingSecret     = errors.New("webhook secret is not configured")
	ErrMissingSignature  = errors.New("webhook signature headers are missing")
	ErrInvalidTimestamp  = errors.New("webhook timestamp is invalid")
	ErrSignatureExpired  = errors.New("webhook signature is outside the allowed window")
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
	ErrEmptyPayload      = errors.New("webhook payload is empty")
)
