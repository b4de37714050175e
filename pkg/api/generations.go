package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/saju/pkg/generation"
	"github.com/dmitrymomot/saju/pkg/quota"
)

func (h *handlers) createGeneration(w http.ResponseWriter, r *http.Request) {
	acc := accountFrom(r.Context())
	var in generation.Input
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	rec, err := h.generator.Generate(r.Context(), acc.ID, in)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respond(w, http.StatusCreated, newUsageResponse(rec, true))
}

func (h *handlers) listGenerations(w http.ResponseWriter, r *http.Request) {
	acc := accountFrom(r.Context())
	q := r.URL.Query()
	opts := quota.ListOptions{
		Limit:  atoiOr(q.Get("limit"), quota.DefaultListLimit),
		Offset: atoiOr(q.Get("offset"), 0),
		Search: q.Get("q"),
	}
	records, err := h.ledger.ListUsage(r.Context(), acc.ID, opts)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	items := make([]usageResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, newUsageResponse(rec, false))
	}
	writeJSON(w, http.StatusOK, Envelope{
		Data: items,
		Meta: map[string]any{"limit": opts.Limit, "offset": opts.Offset, "count": len(items)},
	})
}

func (h *handlers) getGeneration(w http.ResponseWriter, r *http.Request) {
	acc := accountFrom(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.log, ErrInvalidID)
		return
	}
	rec, err := h.ledger.GetUsage(r.Context(), acc.ID, id)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, newUsageResponse(rec, true))
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
