package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/fortytwo/review-notifier/internal/config"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Cycles is what the scheduler fires on each tick
type Cycles interface {
	RunPollCycle(ctx context.Context) error
	RunReminderCycle(ctx context.Context) error
}

// Service handles scheduling of the poll and reminder cycles
type Service struct {
	config  *config.Config
	cycles  Cycles
	cron    *cron.Cron
	timeout time.Duration
}

// NewService creates a new scheduler service. A job still running when its
// next tick arrives causes that tick to be skipped.
func NewService(cfg *config.Config, cycles Cycles) *Service {
	// Route cron's own logging (panics, skipped ticks) through logrus
	logger := cron.VerbosePrintfLogger(logrus.StandardLogger())

	return &Service{
		config: cfg,
		cycles: cycles,
		cron: cron.New(
			cron.WithSeconds(), // six-field specs, e.g. "0 */5 * * * *"
			cron.WithLocation(cfg.Location()),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		timeout: 5 * time.Minute, // upper bound for a single cycle
	}
}

// Start registers both jobs and starts the cron runner
func (s *Service) Start() error {
	// Poll the inbox for new booking emails
	if _, err := s.cron.AddFunc(s.config.PollSchedule, s.job("poll", s.cycles.RunPollCycle)); err != nil {
		return fmt.Errorf("invalid POLL_SCHEDULE %q: %w", s.config.PollSchedule, err)
	}

	// Dispatch reminders whose fire time has passed
	if _, err := s.cron.AddFunc(s.config.ReminderSchedule, s.job("reminders", s.cycles.RunReminderCycle)); err != nil {
		return fmt.Errorf("invalid REMINDER_SCHEDULE %q: %w", s.config.ReminderSchedule, err)
	}

	s.cron.Start()
	logrus.Infof("Scheduler started (poll: %s, reminders: %s)", s.config.PollSchedule, s.config.ReminderSchedule)
	return nil
}

func (s *Service) job(name string, run func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := run(ctx); err != nil {
			logrus.Errorf("Scheduled %s cycle failed: %v", name, err)
		}
	}
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Service) Stop() {
	if s.cron != nil {
		// Stop returns a context that is done once running jobs complete
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}
