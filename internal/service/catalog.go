package service

import (
	"context"
	"strings"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/store/model"
)

func (h *ServiceHandler) ListVersionCatalog(ctx context.Context, supplier, deviceType *string) (any, int) {
	entries, err := h.store.Catalog().List(ctx, supplier, deviceType)
	if err != nil {
		h.log.Errorf("listing version catalog: %v", err)
		return errorBody("internal_error"), 500
	}
	items := make([]api.VersionCatalogEntry, len(entries))
	for i := range entries {
		items[i] = entries[i].ToApiResource()
	}
	return api.VersionCatalogList{Items: items}, 200
}

func (h *ServiceHandler) UpsertVersionCatalog(ctx context.Context, req api.CatalogUpsertRequest) (any, int) {
	supplier := strings.TrimSpace(req.Supplier)
	deviceType := strings.TrimSpace(req.DeviceType)
	mainVersion := strings.TrimSpace(req.MainVersion)
	if supplier == "" || deviceType == "" || mainVersion == "" {
		return errorBody("missing_fields"), 400
	}

	entry := model.VersionCatalogEntry{
		Vendor:      supplier,
		Model:       deviceType,
		MainVersion: mainVersion,
		ChangelogMD: req.ChangelogMD,
		ReleasedAt:  req.ReleasedAt,
		RiskLevel:   req.RiskLevel,
		Checksum:    req.Checksum,
	}
	if err := h.store.Catalog().Upsert(ctx, &entry); err != nil {
		h.log.Errorf("upserting version catalog entry: %v", err)
		return errorBody("internal_error"), 500
	}
	return api.OKResponse{OK: true}, 201
}
