package webhook

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

const maxPayloadBytes = 1 << 20

// Verifier authenticates inbound webhook deliveries.
type Verifier struct {
	secret string
	maxAge time.Duration
	now    func() time.Time
}

// NewVerifier panics on an empty secret. maxAge <= 0 disables the replay window.
func NewVerifier(secret string, maxAge time.Duration) *Verifier {
	if secret == "" {
		panic(ErrMissingSecret)
	}
	return &Verifier{secret: secret, maxAge: maxAge, now: time.Now}
}

type deliveryIDKey struct{}

// DeliveryID returns the verified delivery id stored by Middleware.
func DeliveryID(ctx context.Context) string {
	id, _ := ctx.Value(deliveryIDKey{}).(string)
	return id
}

// Middleware rejects requests with a missing or invalid signature. onError
// writes the rejection; the body is restored for the next handler.
func (v *Verifier) Middleware(onError func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sig, err := ParseHeaders(r.Header)
			if err != nil {
				onError(w, r, err)
				return
			}
			payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
			if err != nil {
				onError(w, r, errors.Join(ErrEmptyPayload, err))
				return
			}
			if err := Verify(v.secret, payload, sig, v.now(), v.maxAge); err != nil {
				onError(w, r, err)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(payload))
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), deliveryIDKey{}, sig.ID)))
		})
	}
}
