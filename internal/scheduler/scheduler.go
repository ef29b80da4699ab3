// Package scheduler runs the periodic auto-archive pass.
//
// The cadence comes from the tiering policy and is re-read on every cycle,
// so a policy change takes effect at the next tick without a restart. A
// small jitter on the first pass avoids aligned runs when several daemons
// start together after a host reboot.
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/egibi/tierd/internal/logging"
	"github.com/egibi/tierd/internal/tiering"
)

var log = logging.Component("scheduler")

// Archiver is the single operation the scheduler drives.
type Archiver interface {
	Config(ctx context.Context) tiering.TieringConfig
	Archive(ctx context.Context, req tiering.ArchiveRequest) tiering.OperationResult
}

// Scheduler triggers archive passes on the configured interval.
type Scheduler struct {
	svc Archiver

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	started bool

	// test hooks
	interval func(ctx context.Context) time.Duration
	jitter   func(max time.Duration) time.Duration
}

// New creates a scheduler over the given service.
func New(svc Archiver) *Scheduler {
	s := &Scheduler{
		svc:  svc,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	s.interval = s.configuredInterval
	s.jitter = func(max time.Duration) time.Duration {
		return time.Duration(rand.Int63n(int64(max)))
	}
	return s
}

// Start launches the loop. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	go s.run()
}

// Stop terminates the loop and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	close(s.stop)
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)

	ctx := logging.ContextWithOperation(context.Background(), "auto-archive")
	runLog := logging.WithContext(ctx, log)

	// First pass is delayed by the full interval plus jitter; operators
	// trigger an immediate pass through the API when they want one now.
	delay := s.interval(ctx) + s.jitter(time.Minute)
	runLog.Info("auto-archive scheduled", "first_run_in", delay.Round(time.Second))

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-timer.C:
		}

		result := s.svc.Archive(ctx, tiering.ArchiveRequest{})
		runLog.Info("auto-archive pass finished", "success", result.Success, "message", result.Message)

		timer.Reset(s.interval(ctx))
	}
}

func (s *Scheduler) configuredInterval(ctx context.Context) time.Duration {
	hours := s.svc.Config(ctx).AutoArchiveIntervalHours
	if hours < 1 {
		hours = 1
	}
	return time.Duration(hours) * time.Hour
}
