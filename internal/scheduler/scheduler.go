package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"digest-relay-go/internal/metrics"
	"digest-relay-go/internal/service/ingest"
)

// ErrCycleRunning is returned when a cycle is requested while another one is in progress
var ErrCycleRunning = errors.New("an ingestion cycle is already running")

// Runner executes ingestion cycles and retention
type Runner interface {
	Run(ctx context.Context) (ingest.CycleResult, error)
	Purge(ctx context.Context) (int64, error)
}

// Config holds the cron specs; fields use the six-field format with seconds
type Config struct {
	CycleSpec     string
	RetentionSpec string
	StopTimeout   time.Duration
}

// Scheduler manages the periodic ingestion cycle
type Scheduler struct {
	cron           *cron.Cron
	cycleEntry     cron.EntryID
	retentionEntry cron.EntryID
	config         Config
	runner         Runner
	metrics        *metrics.Metrics
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	isRunning      bool
	mu             sync.RWMutex

	// runMu is held for the whole duration of a cycle
	runMu      sync.Mutex
	lastRun    time.Time
	lastResult *ingest.CycleResult
	lastErr    error
}

// New creates a new scheduler
func New(cfg Config, runner Runner, m *metrics.Metrics) *Scheduler {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	logger := cron.PrintfLogger(logrus.StandardLogger())

	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		config:  cfg,
		runner:  runner,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	// A stopped scheduler has a cancelled context
	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}

	entryID, err := s.cron.AddFunc(s.config.CycleSpec, s.scheduledCycle)
	if err != nil {
		return fmt.Errorf("failed to add cycle job: %w", err)
	}
	s.cycleEntry = entryID

	if s.config.RetentionSpec != "" {
		entryID, err := s.cron.AddFunc(s.config.RetentionSpec, s.scheduledPurge)
		if err != nil {
			s.cron.Remove(s.cycleEntry)
			return fmt.Errorf("failed to add retention job: %w", err)
		}
		s.retentionEntry = entryID
	}

	s.cron.Start()
	s.isRunning = true
	s.metrics.SetSchedulerRunning(true)

	logrus.WithFields(logrus.Fields{
		"cycle_spec":     s.config.CycleSpec,
		"retention_spec": s.config.RetentionSpec,
	}).Info("Scheduler started")
	return nil
}

// Stop stops the scheduler and waits for running jobs up to the stop timeout.
// The lock is released before waiting so a finishing cycle can record its result.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}

	// Cancel context to stop any running operations
	s.cancel()

	ctx := s.cron.Stop()

	s.cron.Remove(s.cycleEntry)
	if s.retentionEntry != 0 {
		s.cron.Remove(s.retentionEntry)
		s.retentionEntry = 0
	}

	s.isRunning = false
	timeout := s.config.StopTimeout
	s.mu.Unlock()

	s.metrics.SetSchedulerRunning(false)

	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(timeout):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func (s *Scheduler) scheduledCycle() {
	s.mu.RLock()
	ctx := s.ctx
	running := s.isRunning
	s.mu.RUnlock()

	if !running {
		logrus.Info("Scheduler not running, skipping ingestion cycle")
		return
	}

	result, err := s.run(ctx)
	switch {
	case errors.Is(err, ErrCycleRunning):
		logrus.Warn("Previous cycle still running, skipping scheduled cycle")
	case err != nil:
		logrus.WithError(err).Error("Scheduled ingestion cycle failed")
	default:
		logrus.WithField("cycle_id", result.CycleID).Info("Scheduled ingestion cycle completed")
	}
}

func (s *Scheduler) scheduledPurge() {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	s.wg.Add(1)
	defer s.wg.Done()

	if _, err := s.runner.Purge(ctx); err != nil {
		logrus.WithError(err).Error("Fingerprint retention failed")
	}
}

// RunOnce runs one cycle now; it fails with ErrCycleRunning when a cycle is in progress
func (s *Scheduler) RunOnce(ctx context.Context) (ingest.CycleResult, error) {
	logrus.Info("Running ingestion cycle once")
	return s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) (ingest.CycleResult, error) {
	if !s.runMu.TryLock() {
		return ingest.CycleResult{}, ErrCycleRunning
	}
	defer s.runMu.Unlock()

	s.wg.Add(1)
	defer s.wg.Done()

	result, err := s.runner.Run(ctx)

	s.mu.Lock()
	s.lastRun = result.StartedAt
	if s.lastRun.IsZero() {
		s.lastRun = time.Now().UTC()
	}
	s.lastResult = &result
	s.lastErr = err
	s.mu.Unlock()

	return result, err
}

// GetNextRun returns the time of the next scheduled cycle
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.cycleEntry).Next
}

// GetLastRun returns the start time of the last cycle, scheduled or manual
func (s *Scheduler) GetLastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}

// LastResult returns the last cycle result and its error; nil when no cycle ran yet
func (s *Scheduler) LastResult() (*ingest.CycleResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResult, s.lastErr
}

// Wait waits for running jobs to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
