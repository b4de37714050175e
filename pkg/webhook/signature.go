package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"
)

// Header names carried by signed deliveries.
const (
	HeaderID        = "X-Webhook-ID"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderSignature = "X-Webhook-Signature"
)

// Signature identifies one signed delivery.
type Signature struct {
	ID        string
	Timestamp int64
	Value     string
}

// Apply sets the signature headers on h.
func (s Signature) Apply(h http.Header) {
	h.Set(HeaderID, s.ID)
	h.Set(HeaderTimestamp, strconv.FormatInt(s.Timestamp, 10))
	h.Set(HeaderSignature, s.Value)
}

// Sign computes hex(HMAC-SHA256(secret, id + "." + timestamp + "." + payload)).
func Sign(secret, id string, at time.Time, payload []byte) (Signature, error) {
	if secret == "" {
		return Signature{}, ErrMissingSecret
	}
	if len(payload) == 0 {
		return Signature{}, ErrEmptyPayload
	}
	ts := at.Unix()
	return Signature{ID: id, Timestamp: ts, Value: compute(secret, id, ts, payload)}, nil
}

// ParseHeaders reads the signature headers of an incoming request.
func ParseHeaders(h http.Header) (Signature, error) {
	sig := Signature{ID: h.Get(HeaderID), Value: h.Get(HeaderSignature)}
	raw := h.Get(HeaderTimestamp)
	if sig.ID == "" || sig.Value == "" || raw == "" {
		return Signature{}, ErrMissingSignature
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Signature{}, ErrInvalidTimestamp
	}
	sig.Timestamp = ts
	return sig, nil
}

// Verify checks sig against payload. A positive maxAge also rejects
// signatures older than maxAge or more than a minute in the future.
func Verify(secret string, payload []byte, sig Signature, now time.Time, maxAge time.Duration) error {
	if secret == "" {
		return ErrMissingSecret
	}
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if maxAge > 0 {
		age := now.Sub(time.Unix(sig.Timestamp, 0))
		if age > maxAge || age < -time.Minute {
			return ErrSignatureExpired
		}
	}
	expected := compute(secret, sig.ID, sig.Timestamp, payload)
	if !hmac.Equal([]byte(expected), []byte(sig.Value)) {
		return ErrSignatureMismatch
	}
	return nil
}

func compute(secret, id string, ts int64, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(id))
	h.Write([]byte{'.'})
	h.Write([]byte(strconv.FormatInt(ts, 10)))
	h.Write([]byte{'.'})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
