// Package apiserver assembles the HTTP API: router, middleware stack,
// auth route groups and graceful shutdown.
package apiserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fleetver/fleetver/internal/config"
	"github.com/fleetver/fleetver/internal/service"
	"github.com/fleetver/fleetver/internal/transport"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/sirupsen/logrus"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
	maxRequestSize          = 4 << 20
)

type Server struct {
	cfg     *config.Config
	service *service.ServiceHandler
	log     logrus.FieldLogger
}

func New(cfg *config.Config, svc *service.ServiceHandler, log logrus.FieldLogger) *Server {
	return &Server{cfg: cfg, service: svc, log: log}
}

func (s *Server) Router() http.Handler {
	handler := transport.NewHandler(s.service, s.log)
	gate := s.service.Gate()

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RequestSize(maxRequestSize),
		middleware.Recoverer,
	)
	if s.cfg.Service != nil && s.cfg.Service.RateLimitPerMinute > 0 {
		router.Use(httprate.LimitByIP(s.cfg.Service.RateLimitPerMinute, time.Minute))
	}

	router.Route("/api/v1", func(r chi.Router) {
		// Public: health, bootstrap and the session endpoints themselves.
		r.Get("/healthz", handler.Healthz)
		r.Get("/info", handler.Info)
		r.Post("/setup", handler.Setup)
		r.Post("/login", handler.Login)
		r.Post("/logout", handler.Logout)

		// Register carries its own token-or-admin gate.
		r.Post("/register", handler.Register)

		r.Group(func(r chi.Router) {
			r.Use(gate.RequireLogin)
			r.Get("/me", handler.Me)
			r.Get("/clusters", handler.ListClusters)
			r.Get("/devices", handler.ListDevices)
			r.Get("/devices/{id}", handler.GetDevice)
			r.Get("/devices/{id}/snapshots", handler.ListDeviceSnapshots)
			r.Get("/devices/{id}/version-history", handler.DeviceVersionHistory)
			r.Get("/baselines", handler.ListBaselines)
			r.Get("/controlled-file-rules", handler.ListFileRules)
			r.Get("/version-catalog", handler.ListVersionCatalog)
			r.Get("/events", handler.ListEvents)
			r.Get("/status", handler.Status)
		})

		r.Group(func(r chi.Router) {
			r.Use(gate.RequireAdmin)
			r.Post("/clusters", handler.CreateCluster)
			r.Post("/devices", handler.CreateDevice)
			r.Put("/devices/{id}", handler.UpdateDevice)
			r.Delete("/devices/{id}", handler.DeleteDevice)
			r.Post("/devices/{id}/ack-controlled-files", handler.AckControlledFiles)
			r.Post("/baselines", handler.UpsertBaseline)
			r.Delete("/baselines/{id}", handler.DeleteBaseline)
			r.Post("/controlled-file-rules", handler.UpsertFileRule)
			r.Delete("/controlled-file-rules/{id}", handler.DeleteFileRule)
			r.Post("/version-catalog", handler.UpsertVersionCatalog)
			r.Post("/poll", handler.Poll)
			r.Post("/discover", handler.Discover)
		})
	})
	return router
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Service.Address,
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		s.log.Info("Shutdown signal received, stopping API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Infof("Listening on %s", s.cfg.Service.Address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
