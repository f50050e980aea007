package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/config"
	"github.com/fleetver/fleetver/internal/fverrors"
	"github.com/fleetver/fleetver/internal/store"
	"github.com/fleetver/fleetver/internal/store/model"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	cfg := config.NewDefault()
	cfg.Database.File = filepath.Join(t.TempDir(), "test.db")
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	db, err := store.InitDB(cfg, log)
	require.NoError(t, err)
	s := store.NewStore(db, log)
	require.NoError(t, s.InitialMigration())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testDevice(clusterID int64, key string) *model.Device {
	return &model.Device{
		ClusterID: clusterID,
		DeviceKey: key,
		Vendor:    "VendorX",
		Model:     "ModelY",
		IP:        "10.0.0.1",
		Port:      80,
		Protocol:  "dvp1-http",
		Path:      "/.well-known/device-version",
		AuthType:  "none",
		Enabled:   true,
	}
}

func TestClusterCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.Cluster().Create(ctx, "line-a", lo.ToPtr("assembly line A"))
	require.NoError(t, err)
	require.Positive(t, id)

	cluster, err := s.Cluster().Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "line-a", cluster.Name)

	byName, err := s.Cluster().GetByName(ctx, "line-a")
	require.NoError(t, err)
	require.Equal(t, id, byName.ID)

	_, err = s.Cluster().Create(ctx, "line-a", nil)
	require.ErrorIs(t, err, fverrors.ErrDuplicateKey)

	_, err = s.Cluster().Get(ctx, 9999)
	require.ErrorIs(t, err, fverrors.ErrResourceNotFound)

	clusters, err := s.Cluster().List(ctx)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
}

func TestDeviceLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	clusterID, err := s.Cluster().Create(ctx, "line-a", nil)
	require.NoError(t, err)

	id, err := s.Device().Create(ctx, testDevice(clusterID, "SN-001"))
	require.NoError(t, err)

	_, err = s.Device().Create(ctx, testDevice(clusterID, "SN-001"))
	require.ErrorIs(t, err, fverrors.ErrDuplicateKey)

	device, err := s.Device().GetByKey(ctx, "SN-001")
	require.NoError(t, err)
	require.Equal(t, id, device.ID)
	require.True(t, device.Enabled)
	require.Nil(t, device.LastState)

	err = s.Device().Update(ctx, id, store.DeviceUpdate{
		IP:        lo.ToPtr("10.0.0.2"),
		Enabled:   lo.ToPtr(false),
		SetAuth:   true,
		AuthType:  "bearer",
		AuthToken: lo.ToPtr("secret"),
	})
	require.NoError(t, err)

	device, err = s.Device().Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.2", device.IP)
	require.False(t, device.Enabled)
	require.Equal(t, "bearer", device.AuthType)
	require.Equal(t, "secret", *device.AuthToken)
	// Untouched fields survive a partial update.
	require.Equal(t, "VendorX", device.Vendor)

	require.NoError(t, s.Device().UpdateState(ctx, id, api.StateOK))
	device, err = s.Device().Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, api.StateOK, *device.LastState)
	require.NotNil(t, device.LastStateAt)

	err = s.Device().Update(ctx, 9999, store.DeviceUpdate{IP: lo.ToPtr("10.0.0.3")})
	require.ErrorIs(t, err, fverrors.ErrResourceNotFound)

	require.NoError(t, s.Device().Delete(ctx, id))
	require.ErrorIs(t, s.Device().Delete(ctx, id), fverrors.ErrResourceNotFound)
}

func TestDeviceListFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	clusterA, err := s.Cluster().Create(ctx, "line-a", nil)
	require.NoError(t, err)
	clusterB, err := s.Cluster().Create(ctx, "line-b", nil)
	require.NoError(t, err)

	_, err = s.Device().Create(ctx, testDevice(clusterA, "SN-001"))
	require.NoError(t, err)
	disabled := testDevice(clusterA, "SN-002")
	disabled.Enabled = false
	_, err = s.Device().Create(ctx, disabled)
	require.NoError(t, err)
	_, err = s.Device().Create(ctx, testDevice(clusterB, "SN-003"))
	require.NoError(t, err)

	all, err := s.Device().List(ctx, store.ListDevicesParams{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	enabled, err := s.Device().List(ctx, store.ListDevicesParams{EnabledOnly: true})
	require.NoError(t, err)
	require.Len(t, enabled, 2)

	inA, err := s.Device().List(ctx, store.ListDevicesParams{ClusterID: &clusterA})
	require.NoError(t, err)
	require.Len(t, inA, 2)
}

func TestDeviceUpsertByKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	clusterID, err := s.Cluster().Create(ctx, "line-a", nil)
	require.NoError(t, err)

	id, action, err := s.Device().UpsertByKey(ctx, testDevice(clusterID, "SN-001"))
	require.NoError(t, err)
	require.Equal(t, store.DeviceActionCreated, action)

	moved := testDevice(clusterID, "SN-001")
	moved.IP = "10.0.0.9"
	movedID, action, err := s.Device().UpsertByKey(ctx, moved)
	require.NoError(t, err)
	require.Equal(t, store.DeviceActionUpdated, action)
	require.Equal(t, id, movedID)

	device, err := s.Device().Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.9", device.IP)
}

func TestBaselineUpsertAndAllows(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	clusterID, err := s.Cluster().Create(ctx, "line-a", nil)
	require.NoError(t, err)

	baseline := &model.Baseline{
		ClusterID:           clusterID,
		Vendor:              "VendorX",
		Model:               "ModelY",
		ExpectedMainVersion: "1.0.0",
		AllowedMainGlobs:    model.MakeJSONField([]string{"1.0.*"}),
	}
	require.NoError(t, s.Baseline().Upsert(ctx, baseline))

	// A second upsert for the same scope replaces the expectation.
	require.NoError(t, s.Baseline().Upsert(ctx, &model.Baseline{
		ClusterID:           clusterID,
		Vendor:              "VendorX",
		Model:               "ModelY",
		ExpectedMainVersion: "2.0.0",
	}))
	got, err := s.Baseline().Get(ctx, clusterID, "VendorX", "ModelY")
	require.NoError(t, err)
	require.Equal(t, "2.0.0", got.ExpectedMainVersion)

	all, err := s.Baseline().List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.True(t, baseline.Allows("1.0.0"))
	require.True(t, baseline.Allows("1.0.7"))
	require.False(t, baseline.Allows("2.0.0"))
	require.False(t, got.Allows("2.0.1"))
	require.True(t, got.Allows("2.0.0"))

	require.NoError(t, s.Baseline().Delete(ctx, got.ID))
	require.ErrorIs(t, s.Baseline().Delete(ctx, got.ID), fverrors.ErrResourceNotFound)
}

func TestFileRuleUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	clusterID, err := s.Cluster().Create(ctx, "line-a", nil)
	require.NoError(t, err)

	require.NoError(t, s.FileRule().Upsert(ctx, &model.ControlledFileRule{
		ClusterID: clusterID,
		Vendor:    "VendorX",
		Model:     "ModelY",
		Paths:     model.MakeJSONField([]string{"/etc/*.conf"}),
		Mode:      "auto",
		MaxBytes:  8192,
	}))
	require.NoError(t, s.FileRule().Upsert(ctx, &model.ControlledFileRule{
		ClusterID: clusterID,
		Vendor:    "VendorX",
		Model:     "ModelY",
		Paths:     model.MakeJSONField([]string{"/etc/app.conf", "/etc/net.conf"}),
		Mode:      "fetch",
		MaxBytes:  1024,
	}))

	rule, err := s.FileRule().Get(ctx, clusterID, "VendorX", "ModelY")
	require.NoError(t, err)
	require.Equal(t, "fetch", rule.Mode)
	require.Equal(t, 1024, rule.MaxBytes)
	require.Equal(t, []string{"/etc/app.conf", "/etc/net.conf"}, rule.Patterns())

	rules, err := s.FileRule().List(ctx, &clusterID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
}

func TestCatalogEnsureKeepsMetadata(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Catalog().Upsert(ctx, &model.VersionCatalogEntry{
		Vendor:      "VendorX",
		Model:       "ModelY",
		MainVersion: "1.0.0",
		ChangelogMD: lo.ToPtr("initial release"),
		RiskLevel:   lo.ToPtr("low"),
	}))

	// Ensure of an already-cataloged version must not clobber metadata.
	require.NoError(t, s.Catalog().Ensure(ctx, "VendorX", "ModelY", "1.0.0"))
	entry, err := s.Catalog().Get(ctx, "VendorX", "ModelY", "1.0.0")
	require.NoError(t, err)
	require.Equal(t, "initial release", *entry.ChangelogMD)

	// Ensure of an unseen version creates a bare row.
	require.NoError(t, s.Catalog().Ensure(ctx, "VendorX", "ModelY", "1.1.0"))
	entry, err = s.Catalog().Get(ctx, "VendorX", "ModelY", "1.1.0")
	require.NoError(t, err)
	require.Nil(t, entry.ChangelogMD)

	vendor := "VendorX"
	entries, err := s.Catalog().List(ctx, &vendor, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestSnapshotQueries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	clusterID, err := s.Cluster().Create(ctx, "line-a", nil)
	require.NoError(t, err)
	deviceID, err := s.Device().Create(ctx, testDevice(clusterID, "SN-001"))
	require.NoError(t, err)

	_, err = s.Snapshot().Record(ctx, &model.DeviceSnapshot{
		DeviceID:    deviceID,
		Success:     true,
		MainVersion: lo.ToPtr("1.0.0"),
	})
	require.NoError(t, err)
	failID, err := s.Snapshot().Record(ctx, &model.DeviceSnapshot{
		DeviceID: deviceID,
		Success:  false,
		Error:    lo.ToPtr("url_error:connection refused"),
	})
	require.NoError(t, err)

	latest, err := s.Snapshot().GetLatest(ctx, deviceID)
	require.NoError(t, err)
	require.Equal(t, failID, latest.ID)
	require.False(t, latest.Success)

	success, err := s.Snapshot().GetLatestSuccess(ctx, deviceID)
	require.NoError(t, err)
	require.True(t, success.Success)
	require.Equal(t, "1.0.0", *success.MainVersion)

	all, err := s.Snapshot().List(ctx, store.ListSnapshotsParams{DeviceID: deviceID, Limit: 50})
	require.NoError(t, err)
	require.Len(t, all, 2)

	onlyOK, err := s.Snapshot().List(ctx, store.ListSnapshotsParams{DeviceID: deviceID, Limit: 50, SuccessOnly: true})
	require.NoError(t, err)
	require.Len(t, onlyOK, 1)

	_, err = s.Snapshot().GetLatest(ctx, 9999)
	require.ErrorIs(t, err, fverrors.ErrResourceNotFound)
}

func TestVersionHistoryAggregation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	clusterID, err := s.Cluster().Create(ctx, "line-a", nil)
	require.NoError(t, err)
	deviceID, err := s.Device().Create(ctx, testDevice(clusterID, "SN-001"))
	require.NoError(t, err)
	device, err := s.Device().Get(ctx, deviceID)
	require.NoError(t, err)

	for _, version := range []string{"1.0.0", "1.0.0", "1.1.0", "1.0.0"} {
		_, err = s.Snapshot().Record(ctx, &model.DeviceSnapshot{
			DeviceID:    deviceID,
			Success:     true,
			MainVersion: lo.ToPtr(version),
		})
		require.NoError(t, err)
	}
	// Failures never contribute to history.
	_, err = s.Snapshot().Record(ctx, &model.DeviceSnapshot{DeviceID: deviceID, Success: false})
	require.NoError(t, err)

	require.NoError(t, s.Catalog().Upsert(ctx, &model.VersionCatalogEntry{
		Vendor:      "VendorX",
		Model:       "ModelY",
		MainVersion: "1.1.0",
		RiskLevel:   lo.ToPtr("high"),
	}))

	rows, err := s.Snapshot().VersionHistory(ctx, device, 200)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Most recently seen version first.
	require.Equal(t, "1.0.0", rows[0].MainVersion)
	require.EqualValues(t, 3, rows[0].Samples)
	require.Nil(t, rows[0].Catalog)
	require.False(t, rows[0].LastSeen.Before(rows[0].FirstSeen))

	require.Equal(t, "1.1.0", rows[1].MainVersion)
	require.EqualValues(t, 1, rows[1].Samples)
	require.NotNil(t, rows[1].Catalog)
	require.Equal(t, "high", *rows[1].Catalog.RiskLevel)
}

func TestObservationWriteOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	clusterID, err := s.Cluster().Create(ctx, "line-a", nil)
	require.NoError(t, err)
	deviceID, err := s.Device().Create(ctx, testDevice(clusterID, "SN-001"))
	require.NoError(t, err)

	first := &model.FileObservation{
		DeviceID:    deviceID,
		Path:        "/etc/app.conf",
		Fingerprint: "sha256:aaa",
		SnapshotID:  1,
		ContentB64:  lo.ToPtr("b25l"),
		Source:      "inline",
	}
	require.NoError(t, s.Observation().Record(ctx, first))

	second := &model.FileObservation{
		DeviceID:    deviceID,
		Path:        "/etc/app.conf",
		Fingerprint: "sha256:aaa",
		SnapshotID:  2,
		ContentB64:  lo.ToPtr("dHdv"),
		Source:      "fetch",
	}
	require.NoError(t, s.Observation().Record(ctx, second))

	got, err := s.Observation().Get(ctx, deviceID, "/etc/app.conf", "sha256:aaa")
	require.NoError(t, err)
	require.Equal(t, "b25l", *got.ContentB64)
	require.Equal(t, "inline", got.Source)

	_, err = s.Observation().Get(ctx, deviceID, "/etc/app.conf", "sha256:bbb")
	require.ErrorIs(t, err, fverrors.ErrResourceNotFound)
}

func TestUserAndSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	hasAny, err := s.User().HasAny(ctx)
	require.NoError(t, err)
	require.False(t, hasAny)

	userID, err := s.User().Create(ctx, &model.User{
		Username:     "admin",
		PasswordSalt: "salt",
		PasswordHash: "hash",
		Role:         "admin",
	})
	require.NoError(t, err)

	hasAny, err = s.User().HasAny(ctx)
	require.NoError(t, err)
	require.True(t, hasAny)

	require.NoError(t, s.User().UpdatePassword(ctx, "admin", "salt2", "hash2"))
	user, err := s.User().GetByUsername(ctx, "admin")
	require.NoError(t, err)
	require.Equal(t, "hash2", user.PasswordHash)
	require.ErrorIs(t, s.User().UpdatePassword(ctx, "ghost", "s", "h"), fverrors.ErrResourceNotFound)

	require.NoError(t, s.Session().Create(ctx, userID, "tok-live", time.Hour))
	resolved, err := s.Session().Resolve(ctx, "tok-live")
	require.NoError(t, err)
	require.Equal(t, "admin", resolved.Username)

	// Expired sessions resolve as not found and are removed on sight.
	require.NoError(t, s.Session().Create(ctx, userID, "tok-dead", -time.Hour))
	_, err = s.Session().Resolve(ctx, "tok-dead")
	require.ErrorIs(t, err, fverrors.ErrResourceNotFound)
	require.ErrorIs(t, s.Session().Delete(ctx, "tok-dead"), fverrors.ErrResourceNotFound)

	require.NoError(t, s.Session().Delete(ctx, "tok-live"))
	_, err = s.Session().Resolve(ctx, "tok-live")
	require.ErrorIs(t, err, fverrors.ErrResourceNotFound)
}

func TestStatusBoard(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	clusterID, err := s.Cluster().Create(ctx, "line-a", nil)
	require.NoError(t, err)
	deviceID, err := s.Device().Create(ctx, testDevice(clusterID, "SN-001"))
	require.NoError(t, err)

	stateOf := func(t *testing.T) store.StatusEntry {
		t.Helper()
		entries, err := s.Status(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		return entries[0]
	}

	require.Equal(t, api.StateNeverPolled, stateOf(t).State)

	_, err = s.Snapshot().Record(ctx, &model.DeviceSnapshot{DeviceID: deviceID, Success: false})
	require.NoError(t, err)
	require.Equal(t, api.StateOffline, stateOf(t).State)

	_, err = s.Snapshot().Record(ctx, &model.DeviceSnapshot{
		DeviceID:    deviceID,
		Success:     true,
		MainVersion: lo.ToPtr("1.0.0"),
	})
	require.NoError(t, err)
	require.Equal(t, api.StateNoBaseline, stateOf(t).State)

	require.NoError(t, s.Baseline().Upsert(ctx, &model.Baseline{
		ClusterID:           clusterID,
		Vendor:              "VendorX",
		Model:               "ModelY",
		ExpectedMainVersion: "2.0.0",
	}))
	require.Equal(t, api.StateMismatch, stateOf(t).State)

	require.NoError(t, s.Baseline().Upsert(ctx, &model.Baseline{
		ClusterID:           clusterID,
		Vendor:              "VendorX",
		Model:               "ModelY",
		ExpectedMainVersion: "1.0.0",
	}))
	require.Equal(t, api.StateOK, stateOf(t).State)

	// An unacknowledged controlled_files_change turns ok into files_changed
	// and stays that way across further ok polls.
	changeID, err := s.Event().Create(ctx, &model.Event{
		DeviceID:  deviceID,
		EventType: model.EventControlledFilesChange,
	})
	require.NoError(t, err)
	entry := stateOf(t)
	require.Equal(t, api.StateFilesChanged, entry.State)
	require.NotNil(t, entry.ControlledFilesChange)
	require.Equal(t, changeID, entry.ControlledFilesChange.ID)

	_, err = s.Snapshot().Record(ctx, &model.DeviceSnapshot{
		DeviceID:    deviceID,
		Success:     true,
		MainVersion: lo.ToPtr("1.0.0"),
	})
	require.NoError(t, err)
	require.Equal(t, api.StateFilesChanged, stateOf(t).State)

	// Only an ack clears the indicator.
	_, err = s.Event().Create(ctx, &model.Event{
		DeviceID:  deviceID,
		EventType: model.EventControlledFilesAck,
	})
	require.NoError(t, err)
	entry = stateOf(t)
	require.Equal(t, api.StateOK, entry.State)
	require.Nil(t, entry.ControlledFilesChange)
}

func TestEventListOrderingAndFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	clusterID, err := s.Cluster().Create(ctx, "line-a", nil)
	require.NoError(t, err)
	deviceA, err := s.Device().Create(ctx, testDevice(clusterID, "SN-001"))
	require.NoError(t, err)
	deviceB, err := s.Device().Create(ctx, testDevice(clusterID, "SN-002"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = s.Event().Create(ctx, &model.Event{DeviceID: deviceA, EventType: model.EventStateChange})
		require.NoError(t, err)
	}
	_, err = s.Event().Create(ctx, &model.Event{DeviceID: deviceB, EventType: model.EventVersionObserved})
	require.NoError(t, err)

	all, err := s.Event().List(ctx, store.ListEventsParams{Limit: 100})
	require.NoError(t, err)
	require.Len(t, all, 4)
	// Newest first.
	require.Equal(t, deviceB, all[0].DeviceID)

	forA, err := s.Event().List(ctx, store.ListEventsParams{DeviceID: &deviceA, Limit: 2})
	require.NoError(t, err)
	require.Len(t, forA, 2)

	latest, err := s.Event().LatestOfType(ctx, deviceB, model.EventVersionObserved)
	require.NoError(t, err)
	require.Equal(t, deviceB, latest.DeviceID)

	_, err = s.Event().LatestOfType(ctx, deviceB, model.EventControlledFilesAck)
	require.ErrorIs(t, err, fverrors.ErrResourceNotFound)
}

func TestDeleteDeviceCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	clusterID, err := s.Cluster().Create(ctx, "line-a", nil)
	require.NoError(t, err)
	deviceID, err := s.Device().Create(ctx, testDevice(clusterID, "SN-001"))
	require.NoError(t, err)

	_, err = s.Snapshot().Record(ctx, &model.DeviceSnapshot{DeviceID: deviceID, Success: true})
	require.NoError(t, err)
	_, err = s.Event().Create(ctx, &model.Event{DeviceID: deviceID, EventType: model.EventStateChange})
	require.NoError(t, err)

	require.NoError(t, s.Device().Delete(ctx, deviceID))

	_, err = s.Snapshot().GetLatest(ctx, deviceID)
	require.ErrorIs(t, err, fverrors.ErrResourceNotFound)
	_, err = s.Event().LatestOfType(ctx, deviceID, model.EventStateChange)
	require.ErrorIs(t, err, fverrors.ErrResourceNotFound)
}
