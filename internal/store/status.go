package store

import (
	"context"
	"errors"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/fverrors"
	"github.com/fleetver/fleetver/internal/store/model"
)

// StatusEntry is one device on the status board. ControlledFilesChange is
// the newest controlled_files_change event that no controlled_files_ack has
// superseded yet; while one is outstanding an otherwise-ok device reads as
// files_changed.
type StatusEntry struct {
	Device                model.Device
	Baseline              *model.Baseline
	LatestSnapshot        *model.DeviceSnapshot
	State                 string
	ControlledFilesChange *model.Event
}

func (s *DataStore) Status(ctx context.Context) ([]StatusEntry, error) {
	devices, err := s.Device().List(ctx, ListDevicesParams{})
	if err != nil {
		return nil, err
	}

	entries := make([]StatusEntry, 0, len(devices))
	for i := range devices {
		device := devices[i]

		snapshot, err := s.Snapshot().GetLatest(ctx, device.ID)
		if err != nil && !errors.Is(err, fverrors.ErrResourceNotFound) {
			return nil, err
		}
		baseline, err := s.Baseline().Get(ctx, device.ClusterID, device.Vendor, device.Model)
		if err != nil && !errors.Is(err, fverrors.ErrResourceNotFound) {
			return nil, err
		}

		state := api.StateNeverPolled
		switch {
		case snapshot == nil:
		case !snapshot.Success:
			state = api.StateOffline
		case baseline == nil:
			state = api.StateNoBaseline
		default:
			observed := ""
			if snapshot.MainVersion != nil {
				observed = *snapshot.MainVersion
			}
			if baseline.Allows(observed) {
				state = api.StateOK
			} else {
				state = api.StateMismatch
			}
		}

		change, err := s.outstandingFilesChange(ctx, device.ID)
		if err != nil {
			return nil, err
		}
		if change != nil && state == api.StateOK {
			state = api.StateFilesChanged
		}

		entries = append(entries, StatusEntry{
			Device:                device,
			Baseline:              baseline,
			LatestSnapshot:        snapshot,
			State:                 state,
			ControlledFilesChange: change,
		})
	}
	return entries, nil
}

// outstandingFilesChange returns the latest controlled_files_change event
// for the device unless a later controlled_files_ack cleared it. Only the
// ack endpoint clears the sticky indicator; ok polls do not.
func (s *DataStore) outstandingFilesChange(ctx context.Context, deviceID int64) (*model.Event, error) {
	change, err := s.Event().LatestOfType(ctx, deviceID, model.EventControlledFilesChange)
	if err != nil {
		if errors.Is(err, fverrors.ErrResourceNotFound) {
			return nil, nil
		}
		return nil, err
	}
	ack, err := s.Event().LatestOfType(ctx, deviceID, model.EventControlledFilesAck)
	if err != nil {
		if errors.Is(err, fverrors.ErrResourceNotFound) {
			return change, nil
		}
		return nil, err
	}
	if ack.ID > change.ID {
		return nil, nil
	}
	return change, nil
}
