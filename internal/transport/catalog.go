package transport

import (
	"net/http"

	api "github.com/fleetver/fleetver/api/v1"
)

func (h *Handler) ListVersionCatalog(w http.ResponseWriter, r *http.Request) {
	body, status := h.service.ListVersionCatalog(r.Context(), queryString(r, "supplier"), queryString(r, "device_type"))
	WriteJSONResponse(w, body, status)
}

func (h *Handler) UpsertVersionCatalog(w http.ResponseWriter, r *http.Request) {
	var req api.CatalogUpsertRequest
	if !decodeBody(w, r, &req) {
		return
	}
	body, status := h.service.UpsertVersionCatalog(r.Context(), req)
	WriteJSONResponse(w, body, status)
}
