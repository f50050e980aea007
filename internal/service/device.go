package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/dvp"
	"github.com/fleetver/fleetver/internal/fverrors"
	"github.com/fleetver/fleetver/internal/store"
	"github.com/fleetver/fleetver/internal/store/model"
	"github.com/fleetver/fleetver/internal/util"
	"github.com/samber/lo"
)

func (h *ServiceHandler) ListDevices(ctx context.Context, clusterID *int64, enabledOnly bool) (any, int) {
	devices, err := h.store.Device().List(ctx, store.ListDevicesParams{
		ClusterID:   clusterID,
		EnabledOnly: enabledOnly,
	})
	if err != nil {
		h.log.Errorf("listing devices: %v", err)
		return errorBody("internal_error"), 500
	}
	return model.DevicesToApiResource(devices), 200
}

func (h *ServiceHandler) CreateDevice(ctx context.Context, req api.DeviceCreateRequest) (any, int) {
	deviceSerial := strings.TrimSpace(req.DeviceSerial)
	supplier := strings.TrimSpace(req.Supplier)
	deviceType := strings.TrimSpace(req.DeviceType)
	ip := strings.TrimSpace(req.IP)
	if deviceSerial == "" || supplier == "" || deviceType == "" || ip == "" {
		return errorBody("missing_fields"), 400
	}

	device := model.Device{
		ClusterID: req.ClusterID,
		DeviceKey: deviceSerial,
		Vendor:    supplier,
		Model:     deviceType,
		LineNo:    req.LineNo,
		IP:        ip,
		Port:      lo.FromPtrOr(req.Port, 80),
		Protocol:  defaultString(req.Protocol, dvp.ProtocolDVP1HTTP),
		Path:      defaultString(req.Path, dvp.DefaultPath),
		AuthType:  dvp.AuthNone,
		Enabled:   lo.FromPtrOr(req.Enabled, true),
	}
	if req.Auth != nil {
		device.AuthType = defaultString(req.Auth.Type, dvp.AuthNone)
		if req.Auth.Token != "" {
			device.AuthToken = &req.Auth.Token
		}
	}
	id, err := h.store.Device().Create(ctx, &device)
	if err != nil {
		return errorBodyf("create_device_failed:%v", err), 409
	}
	return api.DeviceCreateResponse{ID: id}, 201
}

// GetDevice assembles the device detail: baseline, rule, latest snapshot
// and the catalog rows for both the observed and the expected version.
func (h *ServiceHandler) GetDevice(ctx context.Context, deviceID int64) (any, int) {
	device, err := h.store.Device().Get(ctx, deviceID)
	if err != nil {
		return h.notFoundOrError(err)
	}

	detail := api.DeviceDetail{Device: device.ToApiResource()}

	if snapshot, err := h.store.Snapshot().GetLatest(ctx, deviceID); err == nil {
		detail.LatestSnapshot = lo.ToPtr(snapshot.ToApiResource())
		if snapshot.MainVersion != nil && *snapshot.MainVersion != "" {
			if entry, err := h.store.Catalog().Get(ctx, device.Vendor, device.Model, *snapshot.MainVersion); err == nil {
				detail.ObservedVersionCatalog = lo.ToPtr(entry.ToApiResource())
			}
		}
	}
	if baseline, err := h.store.Baseline().Get(ctx, device.ClusterID, device.Vendor, device.Model); err == nil {
		detail.Baseline = lo.ToPtr(baseline.ToApiResource())
		if baseline.ExpectedMainVersion != "" {
			if entry, err := h.store.Catalog().Get(ctx, device.Vendor, device.Model, baseline.ExpectedMainVersion); err == nil {
				detail.ExpectedVersionCatalog = lo.ToPtr(entry.ToApiResource())
			}
		}
	}
	if rule, err := h.store.FileRule().Get(ctx, device.ClusterID, device.Vendor, device.Model); err == nil {
		detail.ControlledFileRule = lo.ToPtr(rule.ToApiResource())
	}
	return detail, 200
}

func (h *ServiceHandler) UpdateDevice(ctx context.Context, deviceID int64, req api.DeviceUpdateRequest) (any, int) {
	update := store.DeviceUpdate{
		ClusterID: req.ClusterID,
		DeviceKey: req.DeviceSerial,
		Vendor:    req.Supplier,
		Model:     req.DeviceType,
		LineNo:    req.LineNo,
		IP:        req.IP,
		Port:      req.Port,
		Protocol:  req.Protocol,
		Path:      req.Path,
		Enabled:   req.Enabled,
	}
	if req.Auth != nil {
		update.SetAuth = true
		update.AuthType = defaultString(req.Auth.Type, dvp.AuthNone)
		if req.Auth.Token != "" {
			update.AuthToken = &req.Auth.Token
		}
	}
	if err := h.store.Device().Update(ctx, deviceID, update); err != nil {
		return h.notFoundOrError(err)
	}
	return api.OKResponse{OK: true}, 200
}

func (h *ServiceHandler) DeleteDevice(ctx context.Context, deviceID int64) (any, int) {
	if err := h.store.Device().Delete(ctx, deviceID); err != nil {
		return h.notFoundOrError(err)
	}
	return api.OKResponse{OK: true}, 200
}

func (h *ServiceHandler) ListSnapshots(ctx context.Context, deviceID int64, limit, offset int, successOnly bool) (any, int) {
	if _, err := h.store.Device().Get(ctx, deviceID); err != nil {
		return h.notFoundOrError(err)
	}
	snapshots, err := h.store.Snapshot().List(ctx, store.ListSnapshotsParams{
		DeviceID:    deviceID,
		Limit:       limit,
		Offset:      offset,
		SuccessOnly: successOnly,
	})
	if err != nil {
		h.log.Errorf("listing snapshots for device %d: %v", deviceID, err)
		return errorBody("internal_error"), 500
	}
	items := make([]api.Snapshot, len(snapshots))
	for i := range snapshots {
		items[i] = snapshots[i].ToApiResource()
	}
	return api.SnapshotList{Items: items}, 200
}

func (h *ServiceHandler) VersionHistory(ctx context.Context, deviceID int64, limit int) (any, int) {
	device, err := h.store.Device().Get(ctx, deviceID)
	if err != nil {
		return h.notFoundOrError(err)
	}
	rows, err := h.store.Snapshot().VersionHistory(ctx, device, limit)
	if err != nil {
		h.log.Errorf("version history for device %d: %v", deviceID, err)
		return errorBody("internal_error"), 500
	}
	items := make([]api.VersionHistoryItem, len(rows))
	for i, row := range rows {
		items[i] = api.VersionHistoryItem{
			MainVersion: row.MainVersion,
			FirstSeen:   util.TimeToStr(row.FirstSeen),
			LastSeen:    util.TimeToStr(row.LastSeen),
			Samples:     row.Samples,
		}
		if row.Catalog != nil {
			items[i].ChangelogMD = row.Catalog.ChangelogMD
			items[i].ReleasedAt = row.Catalog.ReleasedAt
			items[i].RiskLevel = row.Catalog.RiskLevel
			items[i].Checksum = row.Catalog.Checksum
		}
	}
	return api.VersionHistoryList{Items: items}, 200
}

// AckControlledFiles acknowledges the outstanding file change: records a
// controlled_files_ack pointing at the latest change event and forces the
// sticky state back to ok.
func (h *ServiceHandler) AckControlledFiles(ctx context.Context, deviceID int64) (any, int) {
	if _, err := h.store.Device().Get(ctx, deviceID); err != nil {
		return h.notFoundOrError(err)
	}

	var changeID *int64
	if change, err := h.store.Event().LatestOfType(ctx, deviceID, model.EventControlledFilesChange); err == nil {
		changeID = &change.ID
	}

	payload, _ := json.Marshal(map[string]any{
		"device_id":           deviceID,
		"ack_change_event_id": changeID,
	})
	event := model.Event{
		DeviceID:  deviceID,
		EventType: model.EventControlledFilesAck,
		Message:   lo.ToPtr("controlled files change acknowledged"),
		Payload:   lo.ToPtr(string(payload)),
	}
	if _, err := h.store.Event().Create(ctx, &event); err != nil {
		h.log.Errorf("device %d: recording ack event: %v", deviceID, err)
	}
	if err := h.store.Device().UpdateState(ctx, deviceID, api.StateOK); err != nil {
		h.log.Errorf("device %d: resetting state after ack: %v", deviceID, err)
	}
	return api.AckResponse{OK: true, AckChangeEventID: changeID}, 200
}

func (h *ServiceHandler) notFoundOrError(err error) (any, int) {
	if errors.Is(err, fverrors.ErrResourceNotFound) {
		return errorBody("not_found"), 404
	}
	h.log.Errorf("store operation failed: %v", err)
	return errorBody("internal_error"), 500
}

func defaultString(s, fallback string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return fallback
}
