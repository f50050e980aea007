package transport

import (
	"net/http"

	api "github.com/fleetver/fleetver/api/v1"
)

func (h *Handler) ListBaselines(w http.ResponseWriter, r *http.Request) {
	body, status := h.service.ListBaselines(r.Context(), queryInt64(r, "cluster_id"))
	WriteJSONResponse(w, body, status)
}

func (h *Handler) UpsertBaseline(w http.ResponseWriter, r *http.Request) {
	var req api.BaselineUpsertRequest
	if !decodeBody(w, r, &req) {
		return
	}
	body, status := h.service.UpsertBaseline(r.Context(), req)
	WriteJSONResponse(w, body, status)
}

func (h *Handler) DeleteBaseline(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid_baseline_id")
	if !ok {
		return
	}
	body, status := h.service.DeleteBaseline(r.Context(), id)
	WriteJSONResponse(w, body, status)
}
