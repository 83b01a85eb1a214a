package tempadmin

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/shule/core"
)

// Sweeper is implemented by Manager.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Scheduler runs the expired grants sweep in-process on a cron schedule.
// Overlapping runs are skipped.
type Scheduler struct {
	cron     *cron.Cron
	sweeper  Sweeper
	schedule string
	logger   core.Logger
}

func NewScheduler(sweeper Sweeper, schedule string, logger core.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		sweeper:  sweeper,
		schedule: schedule,
		logger:   logger,
	}
}

// Start registers the sweep and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		return errors.Wrapf(err, "invalid cleanup schedule %q", s.schedule)
	}
	s.cron.Start()
	s.logger.Info(fmt.Sprintf("tempadmin: sweep scheduled (%s)", s.schedule))
	return nil
}

// Stop stops the scheduler and waits for a running sweep to complete, or for ctx to be done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
	s.logger.Info("tempadmin: sweep scheduler stopped")
}

func (s *Scheduler) run() {
	count, err := s.sweeper.SweepExpired(context.Background())
	if err != nil {
		s.logger.Error(fmt.Sprintf("tempadmin: scheduled sweep: %v", err), err)
		return
	}
	if count > 0 {
		s.logger.Info(fmt.Sprintf("tempadmin: scheduled sweep revoked %d expired grants", count))
	}
}
