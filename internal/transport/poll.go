package transport

import (
	"net/http"

	api "github.com/fleetver/fleetver/api/v1"
)

func (h *Handler) Poll(w http.ResponseWriter, r *http.Request) {
	var req api.PollRequest
	if !decodeBody(w, r, &req) {
		return
	}
	body, status := h.service.Poll(r.Context(), req)
	WriteJSONResponse(w, body, status)
}

func (h *Handler) Discover(w http.ResponseWriter, r *http.Request) {
	var req api.DiscoverRequest
	if !decodeBody(w, r, &req) {
		return
	}
	body, status := h.service.Discover(r.Context(), req)
	WriteJSONResponse(w, body, status)
}
