package thread_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fleetver/fleetver/pkg/thread"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	return log
}

func TestPeriodicExecution(t *testing.T) {
	var runs atomic.Int64
	worker := thread.New(context.Background(), newTestLogger(), "ticker", 5*time.Millisecond, func(context.Context) {
		runs.Add(1)
	})
	worker.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond)
	worker.Stop()
}

func TestStopBeforeFirstTick(t *testing.T) {
	worker := thread.New(context.Background(), newTestLogger(), "idle", time.Hour, func(context.Context) {
		t.Error("exec must not run")
	})
	worker.Start()
	requireStops(t, worker)
}

func TestStopAfterContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	worker := thread.New(ctx, newTestLogger(), "cancelled", time.Hour, func(context.Context) {})
	worker.Start()

	cancel()
	time.Sleep(50 * time.Millisecond)
	requireStops(t, worker)
}

// requireStops fails the test instead of hanging or panicking when Stop
// misbehaves.
func requireStops(t *testing.T, worker *thread.Thread) {
	t.Helper()
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		worker.Stop()
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
