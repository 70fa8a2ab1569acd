// Package jobs runs the background periodic work that does not belong on
// the request path: a defensive sweep over stale WebSocket connections and
// a scheduled run of the history conversation-assignment migration.
package jobs

import (
	"context"
	"log/slog"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"relay/internal/connreg"
	"relay/internal/history"
	"relay/internal/metrics"
)

// Config holds the scheduler's dependencies.
type Config struct {
	Registry      *connreg.Registry
	Migrator      *history.Migrator
	Metrics       *metrics.Registry
	ConnectionTTL time.Duration

	// SweepSpec is a standard 5-field cron expression for the connection
	// backstop sweep. Defaults to every 10 minutes.
	SweepSpec string
	// MigrationSpec is a standard 5-field cron expression for the history
	// migration run. Defaults to once a day at 03:00.
	MigrationSpec string
}

// Scheduler drives the connection-reaper backstop sweep and the history
// migration on a robfig/cron schedule. The registry's own Reaper handles
// steady-state eviction on a tight interval; this sweep is a defensive
// second pass in case a store-side expiry notification is missed.
type Scheduler struct {
	cron     *cronlib.Cron
	registry *connreg.Registry
	migrator *history.Migrator
	metrics  *metrics.Registry
	ttl      time.Duration
}

// New constructs a Scheduler with the given config. AddFunc failures (a
// malformed cron expression) are fatal to construction since they would
// otherwise silently disable a job.
func New(cfg Config) (*Scheduler, error) {
	sweepSpec := cfg.SweepSpec
	if sweepSpec == "" {
		sweepSpec = "*/10 * * * *"
	}
	migrationSpec := cfg.MigrationSpec
	if migrationSpec == "" {
		migrationSpec = "0 3 * * *"
	}

	s := &Scheduler{
		cron:     cronlib.New(),
		registry: cfg.Registry,
		migrator: cfg.Migrator,
		metrics:  cfg.Metrics,
		ttl:      cfg.ConnectionTTL,
	}

	if _, err := s.cron.AddFunc(sweepSpec, s.sweep); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc(migrationSpec, s.runScheduledMigration); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the cron loop in a background goroutine.
func (s *Scheduler) Start(_ context.Context) {
	s.cron.Start()
	slog.Info("jobs scheduler started")
}

// Stop halts the cron loop and waits for any in-flight job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("jobs scheduler stopped")
}

func (s *Scheduler) sweep() {
	ctx := context.Background()
	cutoff := time.Now().Add(-s.ttl)
	removed, err := s.registry.Reap(ctx, cutoff)
	if err != nil {
		slog.Error("jobs: connection sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("jobs: backstop sweep evicted stale connections", "count", removed)
		for i := 0; i < removed; i++ {
			s.metrics.Incr(metrics.ConnectionReaped)
		}
	}
}

func (s *Scheduler) runScheduledMigration() {
	report, err := s.migrator.Run(context.Background())
	if err != nil {
		slog.Error("jobs: scheduled history migration failed", "error", err)
		return
	}
	slog.Info("jobs: scheduled history migration complete",
		"users_processed", report.UsersProcessed,
		"messages_assigned", report.MessagesAssigned,
		"conversations_created", report.ConversationsCreated,
		"errors", len(report.Errors),
	)
}

// RunMigration triggers the history conversation-assignment migration
// on demand, wired to the /admin migrate-history command.
func (s *Scheduler) RunMigration(ctx context.Context) (*history.Report, error) {
	return s.migrator.Run(ctx)
}
