package service

import (
	"context"
	"time"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/store"
	"github.com/fleetver/fleetver/internal/util"
)

func (h *ServiceHandler) ListEvents(ctx context.Context, deviceID *int64, limit int) (any, int) {
	events, err := h.store.Event().List(ctx, store.ListEventsParams{
		DeviceID: deviceID,
		Limit:    limit,
	})
	if err != nil {
		h.log.Errorf("listing events: %v", err)
		return errorBody("internal_error"), 500
	}
	items := make([]api.Event, len(events))
	for i := range events {
		items[i] = events[i].ToApiResource()
	}
	return api.EventList{Items: items, Timestamp: util.TimeToStr(time.Now().UTC())}, 200
}
