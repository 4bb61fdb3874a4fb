package daemon

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/kang-git/threejs-sync-server/internal/logfields"
)

const cycleJobName = "sync-cycle"

// Scheduler wraps a gocron scheduler holding the single recurring cycle job.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger

	mu    sync.Mutex
	jobID uuid.UUID
	expr  string
}

// NewScheduler creates a scheduler. Nothing fires until Start.
func NewScheduler(logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := gocron.NewScheduler(gocron.WithLocation(time.Local))
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, logger: logger}, nil
}

// Start begins firing armed jobs.
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop shuts the scheduler down, waiting for running tasks.
func (s *Scheduler) Stop() error {
	s.logger.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// ScheduleCycle arms fn on a six-field cron expression (seconds first). Calling
// it again replaces the schedule of the existing job.
func (s *Scheduler) ScheduleCycle(expr string, fn func()) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	def := gocron.CronJob(expr, true)
	task := gocron.NewTask(fn)

	if s.jobID != uuid.Nil {
		job, err := s.scheduler.Update(s.jobID, def, task, gocron.WithName(cycleJobName))
		if err != nil {
			return "", fmt.Errorf("failed to reschedule cycle job: %w", err)
		}
		s.logger.Info("Cycle schedule updated", logfields.Schedule(expr), logfields.JobID(job.ID().String()),
			slog.String("previous", s.expr))
		s.expr = expr
		return job.ID().String(), nil
	}

	id := uuid.New()
	job, err := s.scheduler.NewJob(def, task,
		gocron.WithName(cycleJobName),
		gocron.WithIdentifier(id),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create cycle job: %w", err)
	}
	s.jobID = job.ID()
	s.expr = expr
	s.logger.Info("Cycle schedule armed", logfields.Schedule(expr), logfields.JobID(s.jobID.String()))
	return s.jobID.String(), nil
}

// Schedule returns the armed expression, or "" when no job exists.
func (s *Scheduler) Schedule() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expr
}

// NextRun reports when the cycle job fires next.
func (s *Scheduler) NextRun() (time.Time, bool) {
	s.mu.Lock()
	id := s.jobID
	s.mu.Unlock()
	if id == uuid.Nil {
		return time.Time{}, false
	}
	for _, job := range s.scheduler.Jobs() {
		if job.ID() != id {
			continue
		}
		next, err := job.NextRun()
		if err != nil || next.IsZero() {
			return time.Time{}, false
		}
		return next, true
	}
	return time.Time{}, false
}
