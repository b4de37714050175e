package generation_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/saju/pkg/generation"
)

func newGemini(t *testing.T, h http.HandlerFunc) *generation.GeminiProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	p, err := generation.NewGeminiProvider(generation.GeminiConfig{APIKey: "test-key", BaseURL: srv.URL + "/"}, nil)
	require.NoError(t, err)
	return p
}

func TestGeminiProvider(t *testing.T) {
	t.Parallel()

	t.Run("returns candidate text", func(t *testing.T) {
		t.Parallel()
		p := newGemini(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1beta/models/gemini-2.5-pro:generateContent", r.URL.Path)
			assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

			var req struct {
				Contents []struct {
					Parts []struct {
						Text string `json:"text"`
					} `json:"parts"`
				} `json:"contents"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Len(t, req.Contents, 1)
			assert.Contains(t, req.Contents[0].Parts[0].Text, "홍길동")

			_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"## 사주 "},{"text":"원국\n"}]},"finishReason":"STOP"}]}`))
		})

		text, err := p.Generate(context.Background(), "gemini-2.5-pro", validInput())
		require.NoError(t, err)
		assert.Equal(t, "## 사주 원국", text)
	})

	t.Run("api error", func(t *testing.T) {
		t.Parallel()
		p := newGemini(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`))
		})

		_, err := p.Generate(context.Background(), "gemini-2.5-flash", validInput())
		require.ErrorIs(t, err, generation.ErrProviderFailure)
		assert.Contains(t, err.Error(), "quota exceeded")
	})

	t.Run("empty candidates", func(t *testing.T) {
		t.Parallel()
		p := newGemini(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`))
		})

		_, err := p.Generate(context.Background(), "gemini-2.5-flash", validInput())
		assert.ErrorIs(t, err, generation.ErrEmptyResult)
	})

	t.Run("blocked prompt", func(t *testing.T) {
		t.Parallel()
		p := newGemini(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
		})

		_, err := p.Generate(context.Background(), "gemini-2.5-flash", validInput())
		assert.ErrorIs(t, err, generation.ErrEmptyResult)
	})

	t.Run("deadline maps to timeout", func(t *testing.T) {
		t.Parallel()
		p := newGemini(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := p.Generate(ctx, "gemini-2.5-flash", validInput())
		assert.ErrorIs(t, err, generation.ErrProviderTimeout)
	})

	t.Run("requires api key", func(t *testing.T) {
		t.Parallel()
		_, err := generation.NewGeminiProvider(generation.GeminiConfig{APIKey: " "}, nil)
		assert.ErrorIs(t, err, generation.ErrMissingAPIKey)
	})
}
