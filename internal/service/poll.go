package service

import (
	"context"
	"errors"
	"time"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/discovery"
	"github.com/fleetver/fleetver/internal/fverrors"
	"github.com/fleetver/fleetver/internal/scheduler"
	"github.com/samber/lo"
)

// Poll runs one synchronous fan-out over the enabled devices.
func (h *ServiceHandler) Poll(ctx context.Context, req api.PollRequest) (any, int) {
	timeout := scheduler.DefaultTimeout
	if req.TimeoutS != nil && *req.TimeoutS > 0 {
		timeout = time.Duration(*req.TimeoutS * float64(time.Second))
	}
	response, err := h.scheduler.RunPass(ctx, req.DeviceIDs, timeout)
	if err != nil {
		h.log.Errorf("on-demand poll: %v", err)
		return errorBody("internal_error"), 500
	}
	return response, 200
}

// Discover sweeps a host list or CIDR and registers responders into the
// given cluster.
func (h *ServiceHandler) Discover(ctx context.Context, req api.DiscoverRequest) (any, int) {
	if req.ClusterID == nil {
		return errorBody("missing_or_invalid_cluster_id"), 400
	}
	if _, err := h.store.Cluster().Get(ctx, *req.ClusterID); err != nil {
		if errors.Is(err, fverrors.ErrResourceNotFound) {
			return errorBody("cluster_not_found"), 404
		}
		return errorBody("internal_error"), 500
	}

	maxHosts := lo.FromPtrOr(req.MaxHosts, discovery.DefaultMaxHosts)
	targets := discovery.TrimHosts(req.Hosts)
	if len(targets) == 0 {
		if req.CIDR == "" {
			return errorBody("missing_cidr_or_hosts"), 400
		}
		expanded, err := discovery.ExpandCIDR(req.CIDR, maxHosts)
		if err != nil {
			return errorBodyf("invalid_cidr:%v", err), 400
		}
		targets = expanded
	}

	timeout := discovery.DefaultTimeout
	if req.TimeoutS != nil && *req.TimeoutS > 0 {
		timeout = time.Duration(*req.TimeoutS * float64(time.Second))
	}
	workers := 0
	if h.cfg.Scheduler != nil {
		workers = h.cfg.Scheduler.PollWorkers
	}

	params := discovery.Params{
		ClusterID:       *req.ClusterID,
		Targets:         targets,
		Port:            lo.FromPtrOr(req.Port, discovery.DefaultPort),
		Path:            req.Path,
		Protocol:        req.Protocol,
		LineNo:          req.LineNo,
		DeviceKeyPrefix: req.DeviceKeyPrefix,
		Timeout:         timeout,
		Workers:         workers,
	}
	if req.Auth != nil {
		params.AuthType = req.Auth.Type
		if req.Auth.Token != "" {
			params.AuthToken = &req.Auth.Token
		}
	}
	return h.discoverer.Run(ctx, params), 200
}
