package service

import (
	"context"
	"strings"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/store/model"
)

func (h *ServiceHandler) ListBaselines(ctx context.Context, clusterID *int64) (any, int) {
	baselines, err := h.store.Baseline().List(ctx, clusterID)
	if err != nil {
		h.log.Errorf("listing baselines: %v", err)
		return errorBody("internal_error"), 500
	}
	items := make([]api.Baseline, len(baselines))
	for i := range baselines {
		items[i] = baselines[i].ToApiResource()
	}
	return api.BaselineList{Items: items}, 200
}

func (h *ServiceHandler) UpsertBaseline(ctx context.Context, req api.BaselineUpsertRequest) (any, int) {
	supplier := strings.TrimSpace(req.Supplier)
	deviceType := strings.TrimSpace(req.DeviceType)
	expected := strings.TrimSpace(req.ExpectedMainVersion)
	if supplier == "" || deviceType == "" || expected == "" {
		return errorBody("missing_fields"), 400
	}

	baseline := model.Baseline{
		ClusterID:           req.ClusterID,
		Vendor:              supplier,
		Model:               deviceType,
		ExpectedMainVersion: expected,
		Note:                req.Note,
		EffectiveFrom:       req.EffectiveFrom,
	}
	if len(req.AllowedMainGlobs) > 0 {
		baseline.AllowedMainGlobs = model.MakeJSONField([]string(req.AllowedMainGlobs))
	}
	if err := h.store.Baseline().Upsert(ctx, &baseline); err != nil {
		h.log.Errorf("upserting baseline: %v", err)
		return errorBody("internal_error"), 500
	}
	return api.OKResponse{OK: true}, 201
}

func (h *ServiceHandler) DeleteBaseline(ctx context.Context, id int64) (any, int) {
	if err := h.store.Baseline().Delete(ctx, id); err != nil {
		return h.notFoundOrError(err)
	}
	return api.OKResponse{OK: true}, 200
}
