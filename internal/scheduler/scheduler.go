// Package scheduler runs the scheduled synchronization of every active
// sync profile, on a cron schedule or once on demand.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"syncademic/internal/profile"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultWorkers = 10
	DefaultTimeout = time.Hour
	DefaultSpec    = "0 0 * * *"
)

// ProfileLister enumerates the profiles the scheduler should pick up.
type ProfileLister interface {
	ListActive(ctx context.Context) ([]profile.SyncProfile, error)
}

// Synchronizer runs one profile sync.
type Synchronizer interface {
	Synchronize(ctx context.Context, userID, syncProfileID string, trigger profile.Trigger, syncType profile.SyncType, force bool) error
}

type Options struct {
	// Spec is a standard five-field cron expression.
	Spec    string
	Workers int
	Timeout time.Duration
}

// Summary reports the outcome of one scheduled run. Synced counts calls
// that returned without error, including syncs whose failure was recorded
// on the profile. Running counts syncs still in flight when the run timed
// out.
type Summary struct {
	Total        int
	Synced       int
	Failed       int
	Running      int
	NotAttempted int
}

type Scheduler struct {
	logger   *slog.Logger
	profiles ProfileLister
	syncer   Synchronizer
	opts     Options
	cron     *cron.Cron
}

func New(logger *slog.Logger, profiles ProfileLister, syncer Synchronizer, opts Options) *Scheduler {
	if opts.Spec == "" {
		opts.Spec = DefaultSpec
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Scheduler{logger: logger, profiles: profiles, syncer: syncer, opts: opts}
}

// RunOnce syncs every active profile with at most Workers in parallel.
// After Timeout it stops dispatching and returns; syncs already running are
// left to finish on their own. A failing profile never stops the run.
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, error) {
	ps, err := s.profiles.ListActive(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list active profiles: %w", err)
	}
	s.logger.Info("Starting scheduled sync.", "profiles", len(ps), "workers", s.opts.Workers, "timeout", s.opts.Timeout)

	runCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	var started, synced, failed atomic.Int64
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.opts.Workers)

dispatch:
	for _, p := range ps {
		if runCtx.Err() != nil {
			break
		}
		select {
		case sem <- struct{}{}:
		case <-runCtx.Done():
			break dispatch
		}
		started.Add(1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			// The sync itself is not bound to the run deadline.
			err := s.syncer.Synchronize(context.WithoutCancel(ctx), p.UserID, p.ID, profile.TriggerScheduled, profile.SyncRegular, false)
			if err != nil {
				failed.Add(1)
				s.logger.Warn("Scheduled sync failed.", "syncProfileID", p.ID, "userID", p.UserID, "error", err)
				return
			}
			synced.Add(1)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-runCtx.Done():
		if ctx.Err() == nil {
			s.logger.Warn("Scheduled sync timed out.", "timeout", s.opts.Timeout)
		}
	}

	sum := Summary{
		Total:  len(ps),
		Synced: int(synced.Load()),
		Failed: int(failed.Load()),
	}
	sum.Running = int(started.Load()) - sum.Synced - sum.Failed
	sum.NotAttempted = sum.Total - int(started.Load())
	s.logger.Info("Scheduled sync finished.", "total", sum.Total, "synced", sum.Synced, "failed", sum.Failed,
		"running", sum.Running, "notAttempted", sum.NotAttempted)
	return sum, nil
}

// Start registers the cron job and starts the cron runner. Overlapping runs
// are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := s.cron.AddFunc(s.opts.Spec, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("Scheduled sync could not run.", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.opts.Spec, err)
	}
	s.cron.Start()
	s.logger.Info("Scheduler started.", "schedule", s.opts.Spec)
	return nil
}

// Stop stops the cron runner and waits for a running job to return.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped.")
}
