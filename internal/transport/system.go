package transport

import "net/http"

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	body, status := h.service.Healthz(r.Context())
	WriteJSONResponse(w, body, status)
}

func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	body, status := h.service.Info(r.Context())
	WriteJSONResponse(w, body, status)
}
