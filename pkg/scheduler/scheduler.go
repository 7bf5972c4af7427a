// Package scheduler fires trigger jobs for active time blocks.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/persistence"
	"github.com/try-flowforge/backend/pkg/queue"
)

const DefaultSyncInterval = 30 * time.Second

// Enqueuer adds jobs to a queue.
type Enqueuer interface {
	Add(ctx context.Context, queueName string, payload any, opts queue.AddOptions) (string, bool, error)
}

// TriggerJobID names the trigger job of one slot of a block. Replicas firing
// the same slot produce the same id and collapse into one job.
func TriggerJobID(timeBlockID string, slot time.Time) string {
	return fmt.Sprintf("%s:%d", timeBlockID, slot.UnixMilli())
}

type Options struct {
	SyncInterval time.Duration
}

type registration struct {
	entryID     cron.EntryID
	fingerprint string
}

type Scheduler struct {
	blocks       persistence.TimeBlockRepository
	jobs         Enqueuer
	cron         *cron.Cron
	syncInterval time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	entries map[string]registration
	ctx     context.Context
}

func New(blocks persistence.TimeBlockRepository, jobs Enqueuer, opts Options, logger *slog.Logger) *Scheduler {
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = DefaultSyncInterval
	}

	logger = logger.With("module", "scheduler")
	cronLog := cronLogger{logger: logger}

	return &Scheduler{
		blocks: blocks,
		jobs:   jobs,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog)),
		),
		syncInterval: opts.SyncInterval,
		logger:       logger,
		entries:      make(map[string]registration),
		ctx:          context.Background(),
	}
}

// Run syncs schedules until ctx is done, then waits for running firings.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.InfoContext(ctx, "Scheduler started", "sync_interval", s.syncInterval)

	err := s.Sync(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Initial time block sync failed", "error", err)
	}

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			<-s.cron.Stop().Done()
			s.logger.Info("Scheduler stopped")

			return nil
		case <-ticker.C:
			err := s.Sync(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "Time block sync failed", "error", err)
			}
		}
	}
}

// Sync registers every active time block and drops schedules of blocks that
// are no longer active. Blocks whose schedule did not change keep their entry.
func (s *Scheduler) Sync(ctx context.Context) error {
	blocks, err := s.blocks.ListActiveTimeBlocks(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active time blocks: %w", err)
	}

	active := make(map[string]bool, len(blocks))

	for _, block := range blocks {
		active[block.ID] = true

		err := s.register(ctx, block)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping time block with invalid schedule", "time_block_id", block.ID, "error", err)
		}
	}

	s.mu.Lock()
	stale := make([]string, 0)

	for id := range s.entries {
		if !active[id] {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		s.Unschedule(id)
	}

	return nil
}

func (s *Scheduler) register(ctx context.Context, block *models.TimeBlock) error {
	fp := fingerprint(block)

	s.mu.Lock()
	existing, ok := s.entries[block.ID]
	s.mu.Unlock()

	if ok && existing.fingerprint == fp {
		return nil
	}

	schedule, err := ScheduleFor(block)
	if err != nil {
		return err
	}

	if ok {
		s.Unschedule(block.ID)
	}

	now := time.Now().UTC()

	if block.ScheduleType == models.ScheduleTypeOneShot && !now.Before(*block.RunAt) {
		if block.RunCount == 0 {
			s.logger.InfoContext(ctx, "Firing overdue one-shot time block", "time_block_id", block.ID)

			return s.Fire(ctx, block.ID, *block.RunAt)
		}

		return nil
	}

	job := &firing{scheduler: s, timeBlockID: block.ID, schedule: schedule, next: schedule.Next(now)}
	entryID := s.cron.Schedule(schedule, job)

	s.mu.Lock()
	s.entries[block.ID] = registration{entryID: entryID, fingerprint: fp}
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "Scheduled time block", "time_block_id", block.ID, "type", block.ScheduleType, "next", job.next)

	return nil
}

// Unschedule removes the schedule of a time block. It is a no-op for unknown blocks.
func (s *Scheduler) Unschedule(timeBlockID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[timeBlockID]
	if !ok {
		return
	}

	s.cron.Remove(existing.entryID)
	delete(s.entries, timeBlockID)
	s.logger.Debug("Unscheduled time block", "time_block_id", timeBlockID)
}

// Scheduled lists the ids of blocks with a registered schedule.
func (s *Scheduler) Scheduled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// Fire enqueues the trigger job of one slot.
func (s *Scheduler) Fire(ctx context.Context, timeBlockID string, slot time.Time) error {
	jobID := TriggerJobID(timeBlockID, slot)

	_, created, err := s.jobs.Add(ctx, queue.ScheduledTriggers, queue.TriggerJob{TimeBlockID: timeBlockID}, queue.AddOptions{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to enqueue trigger for time block %s: %w", timeBlockID, err)
	}

	s.logger.InfoContext(ctx, "Time block triggered", "time_block_id", timeBlockID, "job_id", jobID, "created", created)

	return nil
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ctx
}

// firing is the cron job of one block. It remembers the slot it is waiting
// for so the trigger job id does not depend on timer jitter.
type firing struct {
	scheduler   *Scheduler
	timeBlockID string
	schedule    cron.Schedule

	mu   sync.Mutex
	next time.Time
}

func (f *firing) Run() {
	now := time.Now().UTC()

	f.mu.Lock()
	slot := f.next
	if slot.IsZero() || slot.After(now.Add(time.Second)) {
		slot = now.Truncate(time.Second)
	}
	f.next = f.schedule.Next(now)
	f.mu.Unlock()

	ctx := context.WithoutCancel(f.scheduler.runContext())

	err := f.scheduler.Fire(ctx, f.timeBlockID, slot)
	if err != nil {
		f.scheduler.logger.ErrorContext(ctx, "Failed to fire time block", "time_block_id", f.timeBlockID, "error", err)
	}
}

// cronLogger routes cron's logs through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
