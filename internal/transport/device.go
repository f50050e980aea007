package transport

import (
	"net/http"

	api "github.com/fleetver/fleetver/api/v1"
)

func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	body, status := h.service.ListDevices(r.Context(), queryInt64(r, "cluster_id"), queryBool(r, "enabled_only"))
	WriteJSONResponse(w, body, status)
}

func (h *Handler) CreateDevice(w http.ResponseWriter, r *http.Request) {
	var req api.DeviceCreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	body, status := h.service.CreateDevice(r.Context(), req)
	WriteJSONResponse(w, body, status)
}

func (h *Handler) GetDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid_device_id")
	if !ok {
		return
	}
	body, status := h.service.GetDevice(r.Context(), id)
	WriteJSONResponse(w, body, status)
}

func (h *Handler) UpdateDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid_device_id")
	if !ok {
		return
	}
	var req api.DeviceUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	body, status := h.service.UpdateDevice(r.Context(), id, req)
	WriteJSONResponse(w, body, status)
}

func (h *Handler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid_device_id")
	if !ok {
		return
	}
	body, status := h.service.DeleteDevice(r.Context(), id)
	WriteJSONResponse(w, body, status)
}

func (h *Handler) ListDeviceSnapshots(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid_device_id")
	if !ok {
		return
	}
	body, status := h.service.ListSnapshots(r.Context(), id,
		queryIntOr(r, "limit", 50), queryIntOr(r, "offset", 0), queryBool(r, "success_only"))
	WriteJSONResponse(w, body, status)
}

func (h *Handler) DeviceVersionHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid_device_id")
	if !ok {
		return
	}
	body, status := h.service.VersionHistory(r.Context(), id, queryIntOr(r, "limit", 200))
	WriteJSONResponse(w, body, status)
}

func (h *Handler) AckControlledFiles(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid_device_id")
	if !ok {
		return
	}
	body, status := h.service.AckControlledFiles(r.Context(), id)
	WriteJSONResponse(w, body, status)
}
