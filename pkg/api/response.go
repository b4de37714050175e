package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/saju/pkg/logger"
	"github.com/dmitrymomot/saju/pkg/validator"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Data: data})
}

// respondError classifies err, logs server-side failures and writes the
// error envelope.
func respondError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	p := classify(err)
	detail := &ErrorDetail{Code: p.code, Message: p.message}
	if ve := validator.Extract(err); ve != nil {
		detail.Details = make(map[string][]string)
		for _, e := range ve {
			detail.Details[e.Field] = append(detail.Details[e.Field], e.Message)
		}
	}

	level := slog.LevelDebug
	switch {
	case p.status == http.StatusServiceUnavailable || p.status == http.StatusPaymentRequired:
		level = slog.LevelWarn
	case p.status >= http.StatusInternalServerError:
		level = slog.LevelError
	}
	log.Log(r.Context(), level, "request failed",
		slog.String("code", p.code), slog.Int("status", p.status), logger.Error(err))

	writeJSON(w, p.status, Envelope{Error: detail})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return ErrInvalidBody
	}
	return nil
}
