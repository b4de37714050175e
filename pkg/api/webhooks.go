package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/saju/pkg/subscription"
	"github.com/dmitrymomot/saju/pkg/webhook"
)

const (
	eventUserCreated = "user.created"
	eventUserDeleted = "user.deleted"
)

// identityWebhook applies identity provider lifecycle events. Deliveries are
// retried by the sender, so both handlers are idempotent and unknown event
// types are acknowledged.
func (h *handlers) identityWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, r, h.log, ErrInvalidBody)
		return
	}
	var ev identityWebhook
	if err := json.Unmarshal(raw, &ev); err != nil || ev.Data.ID == "" {
		respondError(w, r, h.log, ErrInvalidBody)
		return
	}
	log := h.log.With(slog.String("delivery_id", webhook.DeliveryID(r.Context())), slog.String("event", ev.Type))

	switch ev.Type {
	case eventUserCreated:
		_, err = h.accounts.OnUserCreated(r.Context(), subscription.IdentityEvent{
			Ref:         ev.Data.ID,
			Email:       ev.Data.Email,
			DisplayName: ev.Data.DisplayName,
		})
	case eventUserDeleted:
		err = h.accounts.OnUserDeleted(r.Context(), ev.Data.ID)
	default:
		log.DebugContext(r.Context(), "ignoring identity event")
	}
	if err != nil {
		respondError(w, r, log, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "processed"})
}
