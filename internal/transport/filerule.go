package transport

import (
	"net/http"

	api "github.com/fleetver/fleetver/api/v1"
)

func (h *Handler) ListFileRules(w http.ResponseWriter, r *http.Request) {
	body, status := h.service.ListFileRules(r.Context(), queryInt64(r, "cluster_id"))
	WriteJSONResponse(w, body, status)
}

func (h *Handler) UpsertFileRule(w http.ResponseWriter, r *http.Request) {
	var req api.FileRuleUpsertRequest
	if !decodeBody(w, r, &req) {
		return
	}
	body, status := h.service.UpsertFileRule(r.Context(), req)
	WriteJSONResponse(w, body, status)
}

func (h *Handler) DeleteFileRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid_rule_id")
	if !ok {
		return
	}
	body, status := h.service.DeleteFileRule(r.Context(), id)
	WriteJSONResponse(w, body, status)
}
