package service

import (
	"context"
	"strings"

	api "github.com/fleetver/fleetver/api/v1"
)

func (h *ServiceHandler) ListClusters(ctx context.Context) (any, int) {
	clusters, err := h.store.Cluster().List(ctx)
	if err != nil {
		h.log.Errorf("listing clusters: %v", err)
		return errorBody("internal_error"), 500
	}
	items := make([]api.Cluster, len(clusters))
	for i := range clusters {
		items[i] = clusters[i].ToApiResource()
	}
	return api.ClusterList{Items: items}, 200
}

func (h *ServiceHandler) CreateCluster(ctx context.Context, req api.ClusterCreateRequest) (any, int) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return errorBody("missing_name"), 400
	}
	id, err := h.store.Cluster().Create(ctx, name, req.Description)
	if err != nil {
		return errorBodyf("create_cluster_failed:%v", err), 409
	}
	return api.ClusterCreateResponse{ID: id}, 201
}
