// Package scheduler runs periodic background jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

type Scheduler struct {
	inner gocron.Scheduler
}

func New() (*Scheduler, error) {
	inner, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}
	return &Scheduler{inner: inner}, nil
}

// Every runs fn right away and then every interval. A run that is still going
// when the next one is due makes that one wait instead of overlapping.
func (s *Scheduler) Every(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context)) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}

	job, err := s.inner.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				return
			}
			fn(ctx)
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", name, err)
	}

	logrus.WithFields(logrus.Fields{
		"job":      name,
		"job_id":   job.ID().String(),
		"interval": interval.String(),
	}).Info("Job scheduled")
	return nil
}

func (s *Scheduler) Start() {
	s.inner.Start()
}

// Shutdown waits for running jobs to finish.
func (s *Scheduler) Shutdown() error {
	return s.inner.Shutdown()
}
