package api

import (
	"net/http"
	"strings"

	"github.com/dmitrymomot/saju/pkg/subscription"
)

func (h *handlers) getSubscription(w http.ResponseWriter, r *http.Request) {
	acc := accountFrom(r.Context())
	ov, err := h.accounts.Overview(r.Context(), acc.IdentityRef)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, newSubscriptionResponse(ov.Account, ov.Status, ov.Plan, ov.HasBillingToken))
}

func (h *handlers) upgrade(w http.ResponseWriter, r *http.Request) {
	acc := accountFrom(r.Context())
	var req upgradeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	method := subscription.PaymentMethod{
		Ref:   strings.TrimSpace(req.PaymentMethod),
		Email: firstNonEmpty(req.Email, acc.Email),
		Name:  firstNonEmpty(req.Name, acc.DisplayName),
	}
	if _, err := h.engine.Upgrade(r.Context(), acc.ID, method); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	h.writeOverview(w, r, acc.IdentityRef)
}

func (h *handlers) cancel(w http.ResponseWriter, r *http.Request) {
	acc := accountFrom(r.Context())
	if _, err := h.engine.Cancel(r.Context(), acc.ID); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	h.writeOverview(w, r, acc.IdentityRef)
}

func (h *handlers) resume(w http.ResponseWriter, r *http.Request) {
	acc := accountFrom(r.Context())
	if _, err := h.engine.Resume(r.Context(), acc.ID); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	h.writeOverview(w, r, acc.IdentityRef)
}

func (h *handlers) writeOverview(w http.ResponseWriter, r *http.Request, ref string) {
	ov, err := h.accounts.Overview(r.Context(), ref)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, newSubscriptionResponse(ov.Account, ov.Status, ov.Plan, ov.HasBillingToken))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
