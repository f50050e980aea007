package service

import (
	"context"
	"time"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/util"
	"github.com/samber/lo"
)

// Status renders the fleet board: every device with its computed state,
// including the sticky files_changed overlay.
func (h *ServiceHandler) Status(ctx context.Context) (any, int) {
	entries, err := h.store.Status(ctx)
	if err != nil {
		h.log.Errorf("computing status: %v", err)
		return errorBody("internal_error"), 500
	}
	items := make([]api.StatusEntry, len(entries))
	for i := range entries {
		entry := entries[i]
		items[i] = api.StatusEntry{
			Device: entry.Device.ToApiResource(),
			State:  entry.State,
		}
		if entry.Baseline != nil {
			items[i].Baseline = lo.ToPtr(entry.Baseline.ToApiResource())
		}
		if entry.LatestSnapshot != nil {
			items[i].LatestSnapshot = lo.ToPtr(entry.LatestSnapshot.ToApiResource())
		}
		if entry.ControlledFilesChange != nil {
			items[i].ControlledFilesChange = lo.ToPtr(entry.ControlledFilesChange.ToApiResource())
		}
	}
	return api.StatusList{Items: items, Timestamp: util.TimeToStr(time.Now().UTC())}, 200
}
