// Package reconciler runs the probe-and-record cycle for a single device:
// poll, snapshot, controlled-file diff, state transition, events, webhook.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/differ"
	"github.com/fleetver/fleetver/internal/dvp"
	"github.com/fleetver/fleetver/internal/fverrors"
	"github.com/fleetver/fleetver/internal/store"
	"github.com/fleetver/fleetver/internal/store/model"
	"github.com/fleetver/fleetver/internal/util"
	"github.com/fleetver/fleetver/internal/webhook"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

type Reconciler struct {
	store    store.Store
	client   *dvp.Client
	differ   *differ.Differ
	notifier *webhook.Notifier
	log      logrus.FieldLogger
}

func New(st store.Store, client *dvp.Client, d *differ.Differ, notifier *webhook.Notifier, log logrus.FieldLogger) *Reconciler {
	return &Reconciler{
		store:    st,
		client:   client,
		differ:   d,
		notifier: notifier,
		log:      log,
	}
}

// Reconcile performs one cycle for the device and reports what happened.
// It never returns an error: every failure mode lands in the snapshot, the
// state, or a log line.
func (r *Reconciler) Reconcile(ctx context.Context, device *model.Device, timeout time.Duration) api.PollSummary {
	prev, err := r.store.Snapshot().GetLatestSuccess(ctx, device.ID)
	if err != nil && !errors.Is(err, fverrors.ErrResourceNotFound) {
		r.log.Errorf("device %s: loading previous snapshot: %v", device.DeviceKey, err)
		prev = nil
	}
	var prevMain string
	if prev != nil && prev.MainVersion != nil {
		prevMain = *prev.MainVersion
	}

	start := time.Now()
	result := r.client.Poll(ctx, dvp.TargetFromDevice(device), timeout)
	if result.LatencyMs == nil {
		result.LatencyMs = lo.ToPtr(time.Since(start).Milliseconds())
	}

	snapshot := model.DeviceSnapshot{
		DeviceID:        device.ID,
		Success:         result.Success,
		HTTPStatus:      result.HTTPStatus,
		LatencyMs:       result.LatencyMs,
		Error:           result.Error,
		ProtocolVersion: result.ProtocolVersion,
		MainVersion:     result.MainVersion,
		FirmwareVersion: result.FirmwareVersion,
		Payload:         result.PayloadJSON(),
	}
	snapshotID, err := r.store.Snapshot().Record(ctx, &snapshot)
	if err != nil {
		r.log.Errorf("device %s: recording snapshot: %v", device.DeviceKey, err)
	}

	if result.Success && result.MainVersion != nil && *result.MainVersion != "" {
		if err := r.store.Catalog().Ensure(ctx, device.Vendor, device.Model, *result.MainVersion); err != nil {
			r.log.Warnf("device %s: catalog ensure %s: %v", device.DeviceKey, *result.MainVersion, err)
		}
	}

	outcome, err := r.differ.Check(ctx, device, result, prev, snapshotID)
	if err != nil {
		r.log.Warnf("device %s: controlled file check: %v", device.DeviceKey, err)
		outcome = nil
	}
	var changes []differ.Change
	if outcome != nil {
		changes = outcome.Changes
	}
	if len(changes) > 0 {
		r.emitFilesChange(ctx, device, outcome, prev, snapshotID)
	}

	newState, message := stateOf(device, r.baselineFor(ctx, device), result, changes)
	prevState := device.LastState
	if err := r.store.Device().UpdateState(ctx, device.ID, newState); err != nil {
		r.log.Errorf("device %s: persisting state %s: %v", device.DeviceKey, newState, err)
	}
	if prevState == nil || *prevState != newState {
		r.emitStateChange(ctx, device, prevState, newState, message, result, len(changes))
	}

	if result.Success && result.MainVersion != nil && *result.MainVersion != prevMain {
		r.emitVersionEvent(ctx, device, prevMain, *result.MainVersion)
	}

	return api.PollSummary{
		DeviceID:    device.ID,
		SnapshotID:  snapshotID,
		Success:     result.Success,
		HTTPStatus:  result.HTTPStatus,
		LatencyMs:   result.LatencyMs,
		Error:       result.Error,
		MainVersion: result.MainVersion,
	}
}

func (r *Reconciler) baselineFor(ctx context.Context, device *model.Device) *model.Baseline {
	baseline, err := r.store.Baseline().Get(ctx, device.ClusterID, device.Vendor, device.Model)
	if err != nil {
		if !errors.Is(err, fverrors.ErrResourceNotFound) {
			r.log.Errorf("device %s: loading baseline: %v", device.DeviceKey, err)
		}
		return nil
	}
	return baseline
}

// stateOf is the per-poll state function. The sticky files_changed shown by
// the status board is layered on top of this at read time.
func stateOf(device *model.Device, baseline *model.Baseline, result dvp.PollResult, changes []differ.Change) (string, string) {
	if !result.Success {
		message := lo.FromPtr(result.Error)
		if message == "" {
			message = api.StateOffline
		}
		return api.StateOffline, message
	}
	observed := lo.FromPtr(result.MainVersion)
	if baseline == nil {
		return api.StateNoBaseline, api.StateNoBaseline
	}
	if !baseline.Allows(observed) {
		return api.StateMismatch, fmt.Sprintf("mismatch expected=%s observed=%s", baseline.ExpectedMainVersion, observed)
	}
	if len(changes) > 0 {
		return api.StateFilesChanged, filesChangedMessage(changes)
	}
	return api.StateOK, fmt.Sprintf("ok observed=%s", observed)
}

func filesChangedMessage(changes []differ.Change) string {
	paths := make([]string, 0, 3)
	for i := range changes {
		if i == 3 {
			break
		}
		paths = append(paths, changes[i].Path)
	}
	message := "files_changed " + strings.Join(paths, ", ")
	if extra := len(changes) - len(paths); extra > 0 {
		message += fmt.Sprintf(" (+%d more)", extra)
	}
	return message
}

func (r *Reconciler) emitFilesChange(ctx context.Context, device *model.Device, outcome *differ.Outcome, prev *model.DeviceSnapshot, snapshotID int64) {
	payload := map[string]any{
		"device_serial":       device.DeviceKey,
		"supplier":            device.Vendor,
		"device_type":         device.Model,
		"cluster_id":          device.ClusterID,
		"rule_id":             outcome.RuleID,
		"patterns":            outcome.Patterns,
		"mode":                outcome.Mode,
		"max_bytes":           outcome.MaxBytes,
		"changes":             outcome.Changes,
		"current_snapshot_id": snapshotID,
	}
	if prev != nil {
		payload["prev_snapshot_id"] = prev.ID
	}
	event := model.Event{
		DeviceID:  device.ID,
		EventType: model.EventControlledFilesChange,
		Message:   lo.ToPtr(filesChangedMessage(outcome.Changes)),
		Payload:   jsonString(payload),
	}
	eventID, err := r.store.Event().Create(ctx, &event)
	if err != nil {
		r.log.Errorf("device %s: recording files change event: %v", device.DeviceKey, err)
		return
	}
	r.notifier.Notify(map[string]any{
		"event_id":   eventID,
		"event_type": model.EventControlledFilesChange,
		"timestamp":  util.TimeToStr(event.CreatedAt),
	})
}

func (r *Reconciler) emitStateChange(ctx context.Context, device *model.Device, oldState *string, newState, message string, result dvp.PollResult, changed int) {
	payload := map[string]any{
		"device_serial":            device.DeviceKey,
		"supplier":                 device.Vendor,
		"device_type":              device.Model,
		"ip":                       device.IP,
		"port":                     device.Port,
		"observed_main_version":    result.MainVersion,
		"http_status":              result.HTTPStatus,
		"error":                    result.Error,
		"controlled_files_changed": changed,
	}
	event := model.Event{
		DeviceID:  device.ID,
		EventType: model.EventStateChange,
		OldState:  oldState,
		NewState:  &newState,
		Message:   &message,
		Payload:   jsonString(payload),
	}
	eventID, err := r.store.Event().Create(ctx, &event)
	if err != nil {
		r.log.Errorf("device %s: recording state change event: %v", device.DeviceKey, err)
		return
	}
	r.notifier.Notify(map[string]any{
		"event_id":   eventID,
		"event_type": model.EventStateChange,
		"old_state":  oldState,
		"new_state":  newState,
		"message":    message,
		"timestamp":  util.TimeToStr(event.CreatedAt),
	})
}

func (r *Reconciler) emitVersionEvent(ctx context.Context, device *model.Device, prevMain, newMain string) {
	eventType := model.EventVersionChange
	if prevMain == "" {
		eventType = model.EventVersionObserved
	}
	payload := map[string]any{
		"device_serial":    device.DeviceKey,
		"supplier":         device.Vendor,
		"device_type":      device.Model,
		"new_main_version": newMain,
	}
	if prevMain != "" {
		payload["old_main_version"] = prevMain
	} else {
		payload["old_main_version"] = nil
	}
	if entry, err := r.store.Catalog().Get(ctx, device.Vendor, device.Model, newMain); err == nil {
		payload["version_catalog"] = entry.ToApiResource()
	} else {
		payload["version_catalog"] = nil
	}
	message := strings.Join(strings.Fields(fmt.Sprintf("%s %s -> %s", eventType, prevMain, newMain)), " ")
	event := model.Event{
		DeviceID:  device.ID,
		EventType: eventType,
		Message:   &message,
		Payload:   jsonString(payload),
	}
	if prevMain != "" {
		event.OldState = &prevMain
	}
	event.NewState = &newMain
	eventID, err := r.store.Event().Create(ctx, &event)
	if err != nil {
		r.log.Errorf("device %s: recording %s event: %v", device.DeviceKey, eventType, err)
		return
	}
	envelope := map[string]any{
		"event_id":         eventID,
		"event_type":       eventType,
		"new_main_version": newMain,
		"timestamp":        util.TimeToStr(event.CreatedAt),
	}
	if prevMain != "" {
		envelope["old_main_version"] = prevMain
	} else {
		envelope["old_main_version"] = nil
	}
	r.notifier.Notify(envelope)
}

func jsonString(v any) *string {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return lo.ToPtr(string(data))
}
