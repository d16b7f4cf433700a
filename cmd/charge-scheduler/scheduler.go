package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/AnuragDani/subscription-charger/internal/charge"
)

const lastCycleKey = "charge:last_cycle"

// ErrCycleInProgress is returned when a manual trigger overlaps a running cycle
var ErrCycleInProgress = errors.New("charge cycle already in progress")

// CycleRunner runs one charge cycle
type CycleRunner interface {
	RunChargeCycle(ctx context.Context) (*charge.CycleResult, error)
}

// ResultCache stores the last cycle result so every instance can report it
type ResultCache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
}

// SchedulerStatus is reported by GET /scheduler/status
type SchedulerStatus struct {
	Running      bool                `json:"running"`
	Schedule     string              `json:"schedule"`
	CycleRunning bool                `json:"cycle_running"`
	LastRun      *time.Time          `json:"last_run,omitempty"`
	NextRun      *time.Time          `json:"next_run,omitempty"`
	LastError    string              `json:"last_error,omitempty"`
	LastResult   *charge.CycleResult `json:"last_result,omitempty"`
}

// Scheduler runs charge cycles on a cron schedule
type Scheduler struct {
	runner       CycleRunner
	cron         *cron.Cron
	schedule     string
	entryID      cron.EntryID
	cycleTimeout time.Duration
	cache        ResultCache
	logger       *slog.Logger

	cycle sync.Mutex

	mu         sync.RWMutex
	running    bool
	inCycle    bool
	lastRun    *time.Time
	lastError  string
	lastResult *charge.CycleResult
}

// NewScheduler creates a scheduler; cache may be nil
func NewScheduler(runner CycleRunner, schedule string, cycleTimeout time.Duration, cache ResultCache, logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &Scheduler{
		runner:       runner,
		cron:         cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		schedule:     schedule,
		cycleTimeout: cycleTimeout,
		cache:        cache,
		logger:       logger,
	}
}

// Start registers the charge job and starts the cron runner
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	id, err := s.cron.AddFunc(s.schedule, s.tick)
	if err != nil {
		return fmt.Errorf("failed to schedule charge job %q: %w", s.schedule, err)
	}
	s.entryID = id
	s.cron.Start()
	s.running = true

	s.logger.Info("scheduler started", "schedule", s.schedule)
	return nil
}

// Stop stops the cron runner and waits for a running cycle to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("stopping scheduler, waiting for current cycle to complete")
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) tick() {
	if !s.cycle.TryLock() {
		s.logger.Info("skipping scheduled charge cycle, previous cycle still running")
		return
	}
	defer s.cycle.Unlock()

	if _, err := s.run(context.Background()); err != nil {
		s.logger.Error("scheduled charge cycle failed", "error", err)
	}
}

// TriggerManual runs a cycle now unless one is already running
func (s *Scheduler) TriggerManual(ctx context.Context) (*charge.CycleResult, error) {
	if !s.cycle.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer s.cycle.Unlock()

	s.logger.Info("manual charge cycle triggered")
	return s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) (*charge.CycleResult, error) {
	if s.cycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cycleTimeout)
		defer cancel()
	}

	now := time.Now()
	s.mu.Lock()
	s.inCycle = true
	s.lastRun = &now
	s.mu.Unlock()

	result, err := s.runner.RunChargeCycle(ctx)

	s.mu.Lock()
	s.inCycle = false
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	}
	if result != nil {
		s.lastResult = result
	}
	s.mu.Unlock()

	if result != nil && s.cache != nil {
		if cacheErr := s.cache.Set(context.WithoutCancel(ctx), lastCycleKey, result, 24*time.Hour); cacheErr != nil {
			s.logger.Warn("failed to cache cycle result", "error", cacheErr)
		}
	}
	return result, err
}

// LastResult returns the last cycle result, falling back to the shared cache
func (s *Scheduler) LastResult(ctx context.Context) *charge.CycleResult {
	s.mu.RLock()
	result := s.lastResult
	s.mu.RUnlock()
	if result != nil || s.cache == nil {
		return result
	}

	var cached charge.CycleResult
	if err := s.cache.Get(ctx, lastCycleKey, &cached); err != nil {
		return nil
	}
	return &cached
}

// Status returns the current scheduler status
func (s *Scheduler) Status(ctx context.Context) *SchedulerStatus {
	s.mu.RLock()
	status := &SchedulerStatus{
		Running:      s.running,
		Schedule:     s.schedule,
		CycleRunning: s.inCycle,
		LastRun:      s.lastRun,
		LastError:    s.lastError,
	}
	entryID := s.entryID
	s.mu.RUnlock()

	if status.Running {
		if next := s.cron.Entry(entryID).Next; !next.IsZero() {
			status.NextRun = &next
		}
	}
	status.LastResult = s.LastResult(ctx)
	return status
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
