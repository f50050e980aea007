package transport

import "net/http"

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("device_id"); raw != "" && queryInt64(r, "device_id") == nil {
		writeError(w, http.StatusBadRequest, "invalid_device_id")
		return
	}
	body, status := h.service.ListEvents(r.Context(), queryInt64(r, "device_id"), queryIntOr(r, "limit", 50))
	WriteJSONResponse(w, body, status)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	body, status := h.service.Status(r.Context())
	WriteJSONResponse(w, body, status)
}
