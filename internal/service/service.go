// Package service holds the business logic behind every API endpoint.
// Methods return a response body plus an HTTP status; the transport layer
// only decodes requests and encodes results.
package service

import (
	"context"
	"os"
	"time"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/auth"
	"github.com/fleetver/fleetver/internal/config"
	"github.com/fleetver/fleetver/internal/discovery"
	"github.com/fleetver/fleetver/internal/dvp"
	"github.com/fleetver/fleetver/internal/reconciler"
	"github.com/fleetver/fleetver/internal/scheduler"
	"github.com/fleetver/fleetver/internal/store"
	"github.com/fleetver/fleetver/internal/util"
	"github.com/sirupsen/logrus"
)

const ServiceVersion = "0.1"

type ServiceHandler struct {
	store      store.Store
	gate       *auth.Gate
	scheduler  *scheduler.Scheduler
	discoverer *discovery.Discoverer
	reconciler *reconciler.Reconciler
	client     *dvp.Client
	cfg        *config.Config
	log        logrus.FieldLogger
}

func NewServiceHandler(
	st store.Store,
	gate *auth.Gate,
	sched *scheduler.Scheduler,
	disc *discovery.Discoverer,
	rec *reconciler.Reconciler,
	client *dvp.Client,
	cfg *config.Config,
	log logrus.FieldLogger,
) *ServiceHandler {
	return &ServiceHandler{
		store:      st,
		gate:       gate,
		scheduler:  sched,
		discoverer: disc,
		reconciler: rec,
		client:     client,
		cfg:        cfg,
		log:        log,
	}
}

// Gate exposes the auth gate so the transport can wire middleware.
func (h *ServiceHandler) Gate() *auth.Gate {
	return h.gate
}

// RegistrationToken returns the configured enrollment token, empty when
// registration is admin-only.
func (h *ServiceHandler) RegistrationToken() string {
	if h.cfg.Auth == nil {
		return ""
	}
	return h.cfg.Auth.RegistrationToken
}

func (h *ServiceHandler) Healthz(ctx context.Context) (any, int) {
	return api.OKResponse{OK: true}, 200
}

func (h *ServiceHandler) Info(ctx context.Context) (any, int) {
	cwd, _ := os.Getwd()
	dbPath := ""
	if h.cfg.Database != nil {
		dbPath = h.cfg.Database.File
	}
	return api.InfoResponse{
		Service:   "fleetver",
		Version:   ServiceVersion,
		CWD:       cwd,
		DBPath:    dbPath,
		Timestamp: util.TimeToStr(time.Now().UTC()),
	}, 200
}

func (h *ServiceHandler) sessionTTL() time.Duration {
	hours := 12.0
	if h.cfg.Auth != nil && h.cfg.Auth.SessionTTLHours > 0 {
		hours = h.cfg.Auth.SessionTTLHours
	}
	return time.Duration(hours * float64(time.Hour))
}
