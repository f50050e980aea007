package service

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/dvp"
	"github.com/fleetver/fleetver/internal/fverrors"
	"github.com/fleetver/fleetver/internal/store/model"
	"github.com/samber/lo"
)

const registerDefaultTimeout = 1500 * time.Millisecond

// Register lets a device (or provisioning tooling) enroll itself. Identity
// fields missing from the body are inferred from an immediate probe of the
// device's endpoint.
func (h *ServiceHandler) Register(ctx context.Context, req api.RegisterRequest, remoteIP string) (any, int) {
	clusterID, errBody, status := h.resolveCluster(ctx, req.Cluster)
	if errBody != nil {
		return errBody, status
	}

	deviceSerial := strings.TrimSpace(req.DeviceSerial)
	supplier := strings.TrimSpace(req.Supplier)
	deviceType := strings.TrimSpace(req.DeviceType)
	prefix := strings.TrimSpace(req.DeviceKeyPrefix)

	authType := dvp.AuthNone
	var authToken *string
	if req.Auth != nil {
		authType = defaultString(req.Auth.Type, dvp.AuthNone)
		if req.Auth.Token != "" {
			authToken = &req.Auth.Token
		}
	}

	protocol := dvp.ProtocolDVP1HTTP
	ip := strings.TrimSpace(req.IP)
	port := lo.FromPtrOr(req.Port, 80)
	path := defaultString(req.Path, dvp.DefaultPath)

	if dvpURL := strings.TrimSpace(req.DVPURL); dvpURL != "" {
		parsedIP, parsedPort, parsedPath, ok := parseDVPURL(dvpURL)
		if !ok {
			return errorBody("invalid_dvp_url"), 400
		}
		ip, port, path = parsedIP, parsedPort, parsedPath
	}
	if req.PreferRemoteIP || ip == "" {
		ip = remoteIP
	}

	verify := lo.FromPtrOr(req.Verify, true)
	timeout := registerDefaultTimeout
	if req.TimeoutS != nil && *req.TimeoutS > 0 {
		timeout = time.Duration(*req.TimeoutS * float64(time.Second))
	}

	var prePoll *api.PollSummary
	var prePollResult *dvp.PollResult
	if deviceSerial == "" || supplier == "" || deviceType == "" {
		target := dvp.Target{
			IP:       ip,
			Port:     port,
			Path:     path,
			Protocol: protocol,
			AuthType: authType,
		}
		if authToken != nil {
			target.AuthToken = *authToken
		}
		result := h.client.Poll(ctx, target, timeout)
		prePoll = &api.PollSummary{
			Success:     result.Success,
			HTTPStatus:  result.HTTPStatus,
			LatencyMs:   result.LatencyMs,
			Error:       result.Error,
			MainVersion: result.MainVersion,
		}
		if result.Success && result.Payload != nil {
			prePollResult = &result
			inferred := dvp.InferIdentity(result.Payload)
			if supplier == "" {
				supplier = inferred.Supplier
			}
			if deviceType == "" {
				deviceType = inferred.DeviceType
			}
			if deviceSerial == "" && inferred.DeviceSerial != "" {
				deviceSerial = prefix + inferred.DeviceSerial
			}
		}
	}

	if deviceSerial == "" || supplier == "" || deviceType == "" {
		return api.MissingFieldsError{
			Error:    "missing_fields",
			Required: []string{"device_serial", "supplier", "device_type"},
			Hint:     "provide dvp_url (or ip/port/path) and let server infer fields, or provide fields directly",
			PrePoll:  prePoll,
		}, 400
	}

	device := model.Device{
		ClusterID: clusterID,
		DeviceKey: deviceSerial,
		Vendor:    supplier,
		Model:     deviceType,
		LineNo:    req.LineNo,
		IP:        ip,
		Port:      port,
		Protocol:  protocol,
		Path:      path,
		AuthType:  authType,
		AuthToken: authToken,
		Enabled:   true,
	}
	deviceID, action, err := h.store.Device().UpsertByKey(ctx, &device)
	if err != nil {
		h.log.Errorf("register %s: upsert: %v", deviceSerial, err)
		return errorBody("internal_error"), 500
	}

	var verification *api.PollSummary
	if verify {
		if prePollResult != nil {
			snapshot := model.DeviceSnapshot{
				DeviceID:        deviceID,
				Success:         true,
				HTTPStatus:      prePollResult.HTTPStatus,
				LatencyMs:       prePollResult.LatencyMs,
				ProtocolVersion: lo.ToPtr(1),
				MainVersion:     prePollResult.MainVersion,
				FirmwareVersion: prePollResult.FirmwareVersion,
				Payload:         prePollResult.PayloadJSON(),
			}
			if _, err := h.store.Snapshot().Record(ctx, &snapshot); err != nil {
				h.log.Errorf("register %s: recording pre-poll snapshot: %v", deviceSerial, err)
			}
			verification = prePoll
		} else if registered, err := h.store.Device().Get(ctx, deviceID); err == nil {
			summary := h.reconciler.Reconcile(ctx, registered, timeout)
			verification = &summary
		}
	}

	return api.RegisterResponse{
		DeviceID:     deviceID,
		Action:       action,
		IP:           ip,
		Port:         port,
		Path:         path,
		Verification: verification,
	}, 200
}

// resolveCluster picks the target cluster: explicit id, then name, then
// the configured default. The resolved id must exist.
func (h *ServiceHandler) resolveCluster(ctx context.Context, ref *api.RegisterCluster) (int64, any, int) {
	var clusterID *int64
	if ref != nil {
		if ref.ID != nil {
			clusterID = ref.ID
		} else if name := strings.TrimSpace(ref.Name); name != "" {
			cluster, err := h.store.Cluster().GetByName(ctx, name)
			if err != nil {
				return 0, errorBody("cluster_not_found"), 404
			}
			clusterID = &cluster.ID
		}
	}
	if clusterID == nil {
		if h.cfg.Auth != nil && h.cfg.Auth.DefaultClusterID != nil {
			clusterID = h.cfg.Auth.DefaultClusterID
		} else {
			return 0, errorBody("missing_cluster"), 400
		}
	}
	if _, err := h.store.Cluster().Get(ctx, *clusterID); err != nil {
		if errors.Is(err, fverrors.ErrResourceNotFound) {
			return 0, errorBody("cluster_not_found"), 404
		}
		return 0, errorBody("internal_error"), 500
	}
	return *clusterID, nil, 0
}

// parseDVPURL accepts plain-http device URLs, defaulting port 80 and the
// well-known path.
func parseDVPURL(raw string) (ip string, port int, path string, ok bool) {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme != "http" || parsed.Hostname() == "" {
		return "", 0, "", false
	}
	port = 80
	if p := parsed.Port(); p != "" {
		if parsedPort, err := strconv.Atoi(p); err == nil && parsedPort > 0 {
			port = parsedPort
		}
	}
	path = parsed.Path
	if path == "" {
		path = dvp.DefaultPath
	}
	return parsed.Hostname(), port, path, true
}
