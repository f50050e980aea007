// Package scheduler fans reconcile cycles out over the fleet, both on a
// periodic background loop and on demand from the poll endpoint.
package scheduler

import (
	"context"
	"time"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/reconciler"
	"github.com/fleetver/fleetver/internal/store"
	"github.com/fleetver/fleetver/internal/store/model"
	"github.com/fleetver/fleetver/internal/util"
	"github.com/fleetver/fleetver/pkg/thread"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers = 10
	DefaultTimeout = 2 * time.Second
)

type Scheduler struct {
	store      store.Store
	reconciler *reconciler.Reconciler
	workers    int
	interval   time.Duration
	log        logrus.FieldLogger

	loop *thread.Thread
}

func New(st store.Store, rec *reconciler.Reconciler, workers int, interval time.Duration, log logrus.FieldLogger) *Scheduler {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Scheduler{
		store:      st,
		reconciler: rec,
		workers:    workers,
		interval:   interval,
		log:        log,
	}
}

// Start launches the periodic poll loop. With a non-positive interval the
// scheduler only serves on-demand passes.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info("periodic polling disabled")
		return
	}
	s.loop = thread.New(ctx, s.log, "Device Poll Loop", s.interval, func(ctx context.Context) {
		response, err := s.RunPass(ctx, nil, DefaultTimeout)
		if err != nil {
			s.log.Errorf("poll pass failed: %v", err)
			return
		}
		s.log.Debugf("poll pass finished: ok=%d fail=%d", response.OK, response.Fail)
	})
	s.loop.Start()
}

func (s *Scheduler) Stop() {
	if s.loop != nil {
		s.loop.Stop()
	}
}

// RunPass reconciles the enabled devices once with bounded concurrency.
// A non-empty deviceIDs narrows the pass to those devices; ids of unknown
// or disabled devices are skipped silently.
func (s *Scheduler) RunPass(ctx context.Context, deviceIDs []int64, timeout time.Duration) (*api.PollResponse, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	devices, err := s.store.Device().List(ctx, store.ListDevicesParams{EnabledOnly: true})
	if err != nil {
		return nil, err
	}
	devices = filterByID(devices, deviceIDs)

	startedAt := time.Now().UTC()
	results := make([]api.PollSummary, len(devices))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers)
	for i := range devices {
		i := i
		group.Go(func() error {
			results[i] = s.reconciler.Reconcile(groupCtx, &devices[i], timeout)
			return nil
		})
	}
	// Workers never return errors; Wait is for completion only.
	_ = group.Wait()

	response := &api.PollResponse{
		StartedAt:  util.TimeToStr(startedAt),
		FinishedAt: util.TimeToStr(time.Now().UTC()),
		Results:    results,
	}
	for i := range results {
		if results[i].Success {
			response.OK++
		} else {
			response.Fail++
		}
	}
	return response, nil
}

func filterByID(devices []model.Device, ids []int64) []model.Device {
	if len(ids) == 0 {
		return devices
	}
	wanted := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	out := make([]model.Device, 0, len(ids))
	for i := range devices {
		if _, ok := wanted[devices[i].ID]; ok {
			out = append(out, devices[i])
		}
	}
	return out
}
