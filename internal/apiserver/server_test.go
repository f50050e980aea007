package apiserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/fleetver/fleetver/internal/apiserver"
	"github.com/fleetver/fleetver/internal/auth"
	"github.com/fleetver/fleetver/internal/config"
	"github.com/fleetver/fleetver/internal/differ"
	"github.com/fleetver/fleetver/internal/discovery"
	"github.com/fleetver/fleetver/internal/dvp"
	"github.com/fleetver/fleetver/internal/reconciler"
	"github.com/fleetver/fleetver/internal/scheduler"
	"github.com/fleetver/fleetver/internal/service"
	"github.com/fleetver/fleetver/internal/store"
	"github.com/fleetver/fleetver/internal/webhook"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	t      *testing.T
	store  store.Store
	api    *httptest.Server
	device *httptest.Server
	cookie string
}

// newAPIFixture stands up the full stack behind an httptest server, plus a
// simulated device answering the version protocol.
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	cfg := config.NewDefault()
	cfg.Database.File = filepath.Join(t.TempDir(), "test.db")
	cfg.Auth.APIToken = "api-secret"
	cfg.Auth.RegistrationToken = "enroll-token"
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	db, err := store.InitDB(cfg, log)
	require.NoError(t, err)
	s := store.NewStore(db, log)
	require.NoError(t, s.InitialMigration())
	t.Cleanup(func() { _ = s.Close() })

	device := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"protocol":         "dvp",
			"protocol_version": 1,
			"device": map[string]any{
				"serial": "SN-001", "supplier": "VendorX", "device_type": "ModelY",
			},
			"versions": map[string]any{"main": "1.0.0"},
		})
	}))
	t.Cleanup(device.Close)

	client := dvp.NewClient(log)
	diff := differ.New(s, client, log)
	rec := reconciler.New(s, client, diff, webhook.NewNotifier("", log), log)
	sched := scheduler.New(s, rec, 4, 0, log)
	gate := auth.NewGate(s, cfg.Auth.APIToken, log)
	disc := discovery.New(s, client, log)
	svc := service.NewServiceHandler(s, gate, sched, disc, rec, client, cfg, log)

	server := httptest.NewServer(apiserver.New(cfg, svc, log).Router())
	t.Cleanup(server.Close)

	return &apiFixture{t: t, store: s, api: server, device: device}
}

// do issues a request and decodes the JSON response into a generic map.
func (f *apiFixture) do(method, path string, body any, headers map[string]string) (int, map[string]any, *http.Response) {
	f.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.api.URL+path, reader)
	require.NoError(f.t, err)
	if f.cookie != "" {
		req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: f.cookie})
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()

	decoded := map[string]any{}
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(f.t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp.StatusCode, decoded, resp
}

// bootstrap runs setup and login, storing the session cookie on the fixture.
func (f *apiFixture) bootstrap() {
	f.t.Helper()
	status, _, _ := f.do(http.MethodPost, "/api/v1/setup",
		map[string]string{"username": "admin", "password": "password123"}, nil)
	require.Equal(f.t, 201, status)

	status, body, resp := f.do(http.MethodPost, "/api/v1/login",
		map[string]string{"username": "admin", "password": "password123"}, nil)
	require.Equal(f.t, 200, status)
	require.Equal(f.t, true, body["ok"])
	for _, c := range resp.Cookies() {
		if c.Name == auth.SessionCookieName {
			f.cookie = c.Value
		}
	}
	require.NotEmpty(f.t, f.cookie)
}

func TestSetupLoginLogout(t *testing.T) {
	f := newAPIFixture(t)

	status, body, _ := f.do(http.MethodGet, "/api/v1/healthz", nil, nil)
	require.Equal(t, 200, status)
	require.Equal(t, true, body["ok"])

	status, _, _ = f.do(http.MethodGet, "/api/v1/devices", nil, nil)
	require.Equal(t, 401, status)

	status, body, _ = f.do(http.MethodPost, "/api/v1/setup",
		map[string]string{"username": "admin", "password": "short"}, nil)
	require.Equal(t, 400, status)
	require.Equal(t, "password_too_short", body["error"])

	f.bootstrap()

	status, body, _ = f.do(http.MethodPost, "/api/v1/setup",
		map[string]string{"username": "admin2", "password": "password123"}, nil)
	require.Equal(t, 409, status)
	require.Equal(t, "already_initialized", body["error"])

	status, body, _ = f.do(http.MethodGet, "/api/v1/me", nil, nil)
	require.Equal(t, 200, status)
	user := body["user"].(map[string]any)
	require.Equal(t, "admin", user["username"])
	require.Equal(t, auth.RoleAdmin, user["role"])

	status, _, _ = f.do(http.MethodPost, "/api/v1/logout", nil, nil)
	require.Equal(t, 200, status)
	status, _, _ = f.do(http.MethodGet, "/api/v1/me", nil, nil)
	require.Equal(t, 401, status)

	f.cookie = ""
	status, body, _ = f.do(http.MethodPost, "/api/v1/login",
		map[string]string{"username": "admin", "password": "wrong-password"}, nil)
	require.Equal(t, 401, status)
	require.Equal(t, "invalid_credentials", body["error"])
}

func TestAPITokenAccess(t *testing.T) {
	f := newAPIFixture(t)
	f.bootstrap()
	f.cookie = ""

	token := map[string]string{"X-Api-Token": "api-secret"}
	status, _, _ := f.do(http.MethodGet, "/api/v1/status", nil, token)
	require.Equal(t, 200, status)

	status, body, _ := f.do(http.MethodPost, "/api/v1/clusters",
		map[string]string{"name": "line-a"}, token)
	require.Equal(t, 201, status)
	require.NotZero(t, body["id"])

	status, _, _ = f.do(http.MethodGet, "/api/v1/status", nil,
		map[string]string{"X-Api-Token": "wrong"})
	require.Equal(t, 401, status)
}

func TestDeviceCRUD(t *testing.T) {
	f := newAPIFixture(t)
	f.bootstrap()

	status, body, _ := f.do(http.MethodPost, "/api/v1/clusters",
		map[string]string{"name": "line-a"}, nil)
	require.Equal(t, 201, status)
	clusterID := int64(body["id"].(float64))

	status, body, _ = f.do(http.MethodPost, "/api/v1/devices",
		map[string]any{"cluster_id": clusterID, "device_serial": "SN-001"}, nil)
	require.Equal(t, 400, status)
	require.Equal(t, "missing_fields", body["error"])

	status, body, _ = f.do(http.MethodPost, "/api/v1/devices", map[string]any{
		"cluster_id":    clusterID,
		"device_serial": "SN-001",
		"supplier":      "VendorX",
		"device_type":   "ModelY",
		"ip":            "10.0.0.1",
	}, nil)
	require.Equal(t, 201, status)
	deviceID := int64(body["id"].(float64))

	status, body, _ = f.do(http.MethodGet, "/api/v1/devices", nil, nil)
	require.Equal(t, 200, status)
	require.Len(t, body["items"], 1)

	path := fmt.Sprintf("/api/v1/devices/%d", deviceID)
	status, body, _ = f.do(http.MethodGet, path, nil, nil)
	require.Equal(t, 200, status)
	device := body["device"].(map[string]any)
	require.Equal(t, "SN-001", device["device_serial"])
	require.Equal(t, float64(80), device["port"])
	require.Equal(t, dvp.DefaultPath, device["path"])

	status, _, _ = f.do(http.MethodPut, path, map[string]any{"enabled": false}, nil)
	require.Equal(t, 200, status)
	status, body, _ = f.do(http.MethodGet, path, nil, nil)
	require.Equal(t, 200, status)
	require.Equal(t, false, body["device"].(map[string]any)["enabled"])

	status, _, _ = f.do(http.MethodPost, "/api/v1/baselines", map[string]any{
		"cluster_id":            clusterID,
		"supplier":              "VendorX",
		"device_type":           "ModelY",
		"expected_main_version": "1.0.0",
		"allowed_main_globs":    "1.0.*, 1.1.0",
	}, nil)
	require.Equal(t, 201, status)
	status, body, _ = f.do(http.MethodGet, "/api/v1/baselines", nil, nil)
	require.Equal(t, 200, status)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	globs := items[0].(map[string]any)["allowed_main_globs"].([]any)
	require.Equal(t, []any{"1.0.*", "1.1.0"}, globs)

	status, _, _ = f.do(http.MethodDelete, path, nil, nil)
	require.Equal(t, 200, status)
	status, body, _ = f.do(http.MethodGet, path, nil, nil)
	require.Equal(t, 404, status)
	require.Equal(t, "not_found", body["error"])
}

func TestRegisterFlows(t *testing.T) {
	ctx := context.Background()
	f := newAPIFixture(t)
	f.bootstrap()
	f.cookie = ""
	token := map[string]string{"X-Registration-Token": "enroll-token"}

	clusterID, err := f.store.Cluster().Create(ctx, "line-a", nil)
	require.NoError(t, err)

	status, body, _ := f.do(http.MethodPost, "/api/v1/register",
		map[string]any{"dvp_url": f.device.URL}, nil)
	require.Equal(t, 401, status)
	require.Equal(t, "invalid_registration_token", body["error"])

	status, body, _ = f.do(http.MethodPost, "/api/v1/register",
		map[string]any{"dvp_url": f.device.URL}, token)
	require.Equal(t, 400, status)
	require.Equal(t, "missing_cluster", body["error"])

	status, body, _ = f.do(http.MethodPost, "/api/v1/register", map[string]any{
		"cluster": map[string]any{"name": "no-such-line"},
		"dvp_url": f.device.URL,
	}, token)
	require.Equal(t, 404, status)
	require.Equal(t, "cluster_not_found", body["error"])

	status, body, _ = f.do(http.MethodPost, "/api/v1/register", map[string]any{
		"cluster": map[string]any{"id": clusterID},
		"dvp_url": "https://10.0.0.1/secure",
	}, token)
	require.Equal(t, 400, status)
	require.Equal(t, "invalid_dvp_url", body["error"])

	// Nothing listens on this port, so identity cannot be inferred.
	status, body, _ = f.do(http.MethodPost, "/api/v1/register", map[string]any{
		"cluster":   map[string]any{"id": clusterID},
		"dvp_url":   "http://127.0.0.1:1/x",
		"timeout_s": 0.2,
	}, token)
	require.Equal(t, 400, status)
	require.Equal(t, "missing_fields", body["error"])
	require.NotNil(t, body["pre_poll"])

	status, body, _ = f.do(http.MethodPost, "/api/v1/register", map[string]any{
		"cluster":           map[string]any{"id": clusterID},
		"dvp_url":           f.device.URL,
		"device_key_prefix": "lineA-",
	}, token)
	require.Equal(t, 200, status)
	require.Equal(t, store.DeviceActionCreated, body["action"])
	deviceID := int64(body["device_id"].(float64))
	verification := body["verification"].(map[string]any)
	require.Equal(t, true, verification["success"])
	require.Equal(t, "1.0.0", verification["main_version"])

	device, err := f.store.Device().Get(ctx, deviceID)
	require.NoError(t, err)
	require.Equal(t, "lineA-SN-001", device.DeviceKey)
	require.Equal(t, "VendorX", device.Vendor)
	require.Equal(t, "ModelY", device.Model)

	status, body, _ = f.do(http.MethodPost, "/api/v1/register", map[string]any{
		"cluster":           map[string]any{"id": clusterID},
		"dvp_url":           f.device.URL,
		"device_key_prefix": "lineA-",
	}, token)
	require.Equal(t, 200, status)
	require.Equal(t, store.DeviceActionUpdated, body["action"])
}

func TestPollStatusAndAck(t *testing.T) {
	f := newAPIFixture(t)
	f.bootstrap()
	token := map[string]string{"X-Registration-Token": "enroll-token"}

	clusterID, err := f.store.Cluster().Create(context.Background(), "line-a", nil)
	require.NoError(t, err)
	status, body, _ := f.do(http.MethodPost, "/api/v1/register", map[string]any{
		"cluster": map[string]any{"id": clusterID},
		"dvp_url": f.device.URL,
		"verify":  false,
	}, token)
	require.Equal(t, 200, status)
	deviceID := int64(body["device_id"].(float64))

	status, body, _ = f.do(http.MethodPost, "/api/v1/poll", map[string]any{}, nil)
	require.Equal(t, 200, status)
	require.Equal(t, float64(1), body["ok"])
	require.Equal(t, float64(0), body["fail"])

	status, body, _ = f.do(http.MethodGet, "/api/v1/status", nil, nil)
	require.Equal(t, 200, status)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	entry := items[0].(map[string]any)
	require.Equal(t, "no_baseline", entry["state"])
	require.NotNil(t, entry["latest_snapshot"])

	status, _, _ = f.do(http.MethodPost, "/api/v1/baselines", map[string]any{
		"cluster_id":            clusterID,
		"supplier":              "VendorX",
		"device_type":           "ModelY",
		"expected_main_version": "1.0.0",
	}, nil)
	require.Equal(t, 201, status)

	status, _, _ = f.do(http.MethodPost, "/api/v1/poll", map[string]any{}, nil)
	require.Equal(t, 200, status)
	status, body, _ = f.do(http.MethodGet, "/api/v1/status", nil, nil)
	require.Equal(t, 200, status)
	entry = body["items"].([]any)[0].(map[string]any)
	require.Equal(t, "ok", entry["state"])

	path := fmt.Sprintf("/api/v1/devices/%d/ack-controlled-files", deviceID)
	status, body, _ = f.do(http.MethodPost, path, nil, nil)
	require.Equal(t, 200, status)
	require.Equal(t, true, body["ok"])

	status, body, _ = f.do(http.MethodGet, "/api/v1/events", nil, nil)
	require.Equal(t, 200, status)
	require.NotEmpty(t, body["items"])
	require.NotEmpty(t, body["timestamp"])
}
