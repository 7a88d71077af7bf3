package relay

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/aixcyberchallenge/submission-relay/internal/logger"
	"github.com/aixcyberchallenge/submission-relay/internal/progress"
	"github.com/aixcyberchallenge/submission-relay/internal/types"
)

type Runner interface {
	Run(ctx context.Context, sub types.Submission, ch *progress.Channel) error
}

// Ensure Worker implements Runner interface.
var _ Runner = (*Worker)(nil)

// Owns the background workers so shutdown can drain them
type Supervisor struct {
	ctx     context.Context
	cancel  context.CancelFunc
	group   errgroup.Group
	runner  Runner
	running atomic.Int64
}

func NewSupervisor(ctx context.Context, runner Runner) *Supervisor {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		runner: runner,
	}
}

// Starts a worker for sub in the background. Never blocks.
func (s *Supervisor) Launch(sub types.Submission, ch *progress.Channel) {
	s.running.Add(1)
	s.group.Go(func() error {
		defer s.running.Add(-1)

		if err := s.runner.Run(s.ctx, sub, ch); err != nil {
			logger.ForSubmission(sub.ID, sub.Owner).Error("worker failed", "error", err)
		}

		// one failed submission must not surface as a shutdown error
		return nil
	})
}

// Runs fn in the background alongside the workers. fn is not cancelled by
// Stop, so it must bound itself.
func (s *Supervisor) Go(fn func(ctx context.Context)) {
	s.group.Go(func() error {
		fn(context.WithoutCancel(s.ctx))
		return nil
	})
}

func (s *Supervisor) Running() int {
	return int(s.running.Load())
}

// Blocks until every launched worker returned
func (s *Supervisor) Wait() error {
	return s.group.Wait()
}

// Tells workers to skip their grace delay without waiting for them
func (s *Supervisor) Stop() {
	s.cancel()
}

// Stops workers and waits for them until ctx is done
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.Stop()

	done := make(chan error, 1)
	go func() {
		done <- s.group.Wait()
	}()

	select {
	case <-ctx.Done():
		logger.Logger.WarnContext(ctx, "workers still running at shutdown", "running", s.Running())
		return ctx.Err()
	case err := <-done:
		return err
	}
}
