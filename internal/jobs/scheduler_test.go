package jobs_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/connreg"
	"relay/internal/history"
	"relay/internal/jobs"
	"relay/internal/metrics"
	"relay/internal/store/memkv"
)

func TestNewRejectsMalformedCronSpec(t *testing.T) {
	kv := memkv.New()
	reg := connreg.New(kv, time.Hour)
	historyStore := history.NewStore(kv, 0)
	migrator := history.NewMigrator(historyStore, func() string { return "conv-1" })

	_, err := jobs.New(jobs.Config{
		Registry:      reg,
		Migrator:      migrator,
		Metrics:       metrics.New(),
		ConnectionTTL: time.Hour,
		SweepSpec:     "not a cron expression",
	})
	assert.Error(t, err)
}

func TestRunMigrationAssignsConversations(t *testing.T) {
	ctx := t.Context()
	kv := memkv.New()
	reg := connreg.New(kv, time.Hour)
	historyStore := history.NewStore(kv, 0)
	migrator := history.NewMigrator(historyStore, func() string { return "conv-1" })

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, historyStore.PutMessage(ctx, &history.Message{
		UnifiedUserID:  "uid-1",
		TimestampMsgID: history.NewTimestampMsgID(now),
		Role:           history.RoleUser,
		Content:        history.Content{Text: "hello"},
		Channel:        "telegram",
	}))

	scheduler, err := jobs.New(jobs.Config{
		Registry:      reg,
		Migrator:      migrator,
		Metrics:       metrics.New(),
		ConnectionTTL: time.Hour,
	})
	require.NoError(t, err)

	report, err := scheduler.RunMigration(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.UsersProcessed)
	assert.Equal(t, 1, report.MessagesAssigned)
	assert.Equal(t, 1, report.ConversationsCreated)
}

func TestStartStopDoesNotPanic(t *testing.T) {
	kv := memkv.New()
	reg := connreg.New(kv, time.Hour)
	historyStore := history.NewStore(kv, 0)
	migrator := history.NewMigrator(historyStore, func() string { return "conv-1" })

	scheduler, err := jobs.New(jobs.Config{
		Registry:      reg,
		Migrator:      migrator,
		Metrics:       metrics.New(),
		ConnectionTTL: time.Hour,
	})
	require.NoError(t, err)

	scheduler.Start(t.Context())
	scheduler.Stop()
}
