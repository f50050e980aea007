package service

import (
	"context"
	"strings"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/differ"
	"github.com/fleetver/fleetver/internal/store/model"
	"github.com/samber/lo"
)

func (h *ServiceHandler) ListFileRules(ctx context.Context, clusterID *int64) (any, int) {
	rules, err := h.store.FileRule().List(ctx, clusterID)
	if err != nil {
		h.log.Errorf("listing controlled file rules: %v", err)
		return errorBody("internal_error"), 500
	}
	items := make([]api.ControlledFileRule, len(rules))
	for i := range rules {
		items[i] = rules[i].ToApiResource()
	}
	return api.FileRuleList{Items: items}, 200
}

func (h *ServiceHandler) UpsertFileRule(ctx context.Context, req api.FileRuleUpsertRequest) (any, int) {
	supplier := strings.TrimSpace(req.Supplier)
	deviceType := strings.TrimSpace(req.DeviceType)
	if supplier == "" || deviceType == "" {
		return errorBody("missing_fields"), 400
	}

	rule := model.ControlledFileRule{
		ClusterID: req.ClusterID,
		Vendor:    supplier,
		Model:     deviceType,
		Mode:      defaultString(strings.ToLower(req.Mode), differ.ModeAuto),
		MaxBytes:  lo.FromPtrOr(req.MaxBytes, differ.DefaultMaxBytes),
		Note:      req.Note,
	}
	if len(req.Paths) > 0 {
		rule.Paths = model.MakeJSONField([]string(req.Paths))
	}
	if err := h.store.FileRule().Upsert(ctx, &rule); err != nil {
		h.log.Errorf("upserting controlled file rule: %v", err)
		return errorBody("internal_error"), 500
	}
	return api.OKResponse{OK: true}, 201
}

func (h *ServiceHandler) DeleteFileRule(ctx context.Context, id int64) (any, int) {
	if err := h.store.FileRule().Delete(ctx, id); err != nil {
		return h.notFoundOrError(err)
	}
	return api.OKResponse{OK: true}, 200
}
