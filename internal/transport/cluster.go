package transport

import (
	"net/http"

	api "github.com/fleetver/fleetver/api/v1"
)

func (h *Handler) ListClusters(w http.ResponseWriter, r *http.Request) {
	body, status := h.service.ListClusters(r.Context())
	WriteJSONResponse(w, body, status)
}

func (h *Handler) CreateCluster(w http.ResponseWriter, r *http.Request) {
	var req api.ClusterCreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	body, status := h.service.CreateCluster(r.Context(), req)
	WriteJSONResponse(w, body, status)
}
