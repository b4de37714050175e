package webhook_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/saju/pkg/webhook"
)

const secret = "whsec_test"

func TestSignVerify(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_740_000_000, 0)
	payload := []byte(`{"type":"user.created"}`)
	sig, err := webhook.Sign(secret, "evt_1", now, payload)
	require.NoError(t, err)

	tests := []struct {
		name    string
		secret  string
		payload []byte
		sig     func(webhook.Signature) webhook.Signature
		now     time.Time
		want    error
	}{
		{"valid", secret, payload, nil, now, nil},
		{"tampered payload", secret, []byte(`{"type":"user.deleted"}`), nil, now, webhook.ErrSignatureMismatch},
		{"wrong secret", "other", payload, nil, now, webhook.ErrSignatureMismatch},
		{"swapped id", secret, payload, func(s webhook.Signature) webhook.Signature { s.ID = "evt_2"; return s }, now, webhook.ErrSignatureMismatch},
		{"too old", secret, payload, nil, now.Add(10 * time.Minute), webhook.ErrSignatureExpired},
		{"from the future", secret, payload, nil, now.Add(-2 * time.Minute), webhook.ErrSignatureExpired},
		{"empty payload", secret, nil, nil, now, webhook.ErrEmptyPayload},
		{"no secret", "", payload, nil, now, webhook.ErrMissingSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := sig
			if tt.sig != nil {
				s = tt.sig(s)
			}
			err := webhook.Verify(tt.secret, tt.payload, s, tt.now, 5*time.Minute)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseHeaders(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	_, err := webhook.ParseHeaders(h)
	assert.ErrorIs(t, err, webhook.ErrMissingSignature)

	h.Set(webhook.HeaderID, "evt_1")
	h.Set(webhook.HeaderSignature, "abc")
	h.Set(webhook.HeaderTimestamp, "yesterday")
	_, err = webhook.ParseHeaders(h)
	assert.ErrorIs(t, err, webhook.ErrInvalidTimestamp)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	v := webhook.NewVerifier(secret, 5*time.Minute)
	handler := v.Middleware(func(w http.ResponseWriter, _ *http.Request, err error) {
		http.Error(w, err.Error(), http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write([]byte(webhook.DeliveryID(r.Context()) + ":" + string(body)))
	}))

	payload := `{"type":"user.created"}`

	t.Run("valid delivery reaches the handler with its body", func(t *testing.T) {
		t.Parallel()
		sig, err := webhook.Sign(secret, "evt_9", time.Now(), []byte(payload))
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/webhooks/identity", strings.NewReader(payload))
		sig.Apply(req.Header)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "evt_9:"+payload, rec.Body.String())
	})

	t.Run("unsigned delivery is rejected", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/identity", strings.NewReader(payload)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("empty secret panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { webhook.NewVerifier("", 0) })
	})
}
