package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

type GeminiConfig struct {
	APIKey  string        `env:"GEMINI_API_KEY,required"`
	BaseURL string        `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com"`
	Timeout time.Duration `env:"GEMINI_TIMEOUT" envDefault:"180s"`
}

// GeminiProvider calls the Gemini generateContent REST endpoint.
type GeminiProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewGeminiProvider builds a provider from cfg. A nil client gets one
// bounded by cfg.Timeout.
func NewGeminiProvider(cfg GeminiConfig, client *http.Client) (*GeminiProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &GeminiProvider{apiKey: apiKey, baseURL: baseURL, client: client}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (p *GeminiProvider) Generate(ctx context.Context, model string, input Input) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: BuildPrompt(input)}}}},
	})
	if err != nil {
		return "", errors.Join(ErrProviderFailure, err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, url.PathEscape(model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.Join(ErrProviderFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return "", errors.Join(ErrProviderTimeout, err)
		}
		return "", errors.Join(ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		if isTimeout(ctx, err) {
			return "", errors.Join(ErrProviderTimeout, err)
		}
		return "", errors.Join(ErrProviderFailure, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr geminiError
		msg := http.StatusText(resp.StatusCode)
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return "", errors.Join(ErrProviderFailure, fmt.Errorf("gemini: status %d: %s", resp.StatusCode, msg))
	}

	var out geminiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", errors.Join(ErrProviderFailure, fmt.Errorf("gemini: decode response: %w", err))
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", errors.Join(ErrEmptyResult, fmt.Errorf("gemini: prompt blocked: %s", out.PromptFeedback.BlockReason))
	}

	var text strings.Builder
	if len(out.Candidates) > 0 {
		for _, part := range out.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}
	result := strings.TrimSpace(text.String())
	if result == "" {
		return "", ErrEmptyResult
	}
	return result, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
