package history_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/history"
	"relay/internal/store/memkv"
)

func newTestService(t *testing.T) *history.Service {
	t.Helper()
	kv := memkv.New()
	store := history.NewStore(kv, 0)
	counter := 0
	newID := func() string {
		counter++
		return fmt.Sprintf("conv-%d", counter)
	}
	return history.NewService(store, 50, newID)
}

func TestConversationAssignmentWithinGapReusesConversation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	t1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	conv1, err := svc.AssignConversation(ctx, "uid-1", "", "hello there", t1)
	require.NoError(t, err)
	require.NoError(t, svc.RecordTurn(ctx, "uid-1", "web", conv1, "hello there", "hi", nil, t1))

	t2 := t1.Add(30 * time.Minute)
	conv2, err := svc.AssignConversation(ctx, "uid-1", "", "second message", t2)
	require.NoError(t, err)
	assert.Equal(t, conv1.ConversationID, conv2.ConversationID)
}

func TestConversationAssignmentAfterGapOpensNew(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	t1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	conv1, err := svc.AssignConversation(ctx, "uid-1", "", "hello there", t1)
	require.NoError(t, err)
	require.NoError(t, svc.RecordTurn(ctx, "uid-1", "web", conv1, "hello there", "hi", nil, t1))

	t3 := t1.Add(2 * time.Hour)
	conv3, err := svc.AssignConversation(ctx, "uid-1", "", "third message", t3)
	require.NoError(t, err)
	assert.NotEqual(t, conv1.ConversationID, conv3.ConversationID)
}

func TestRecordTurnBumpsCountAndTime(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	t1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	conv, err := svc.AssignConversation(ctx, "uid-1", "", "hello", t1)
	require.NoError(t, err)

	require.NoError(t, svc.RecordTurn(ctx, "uid-1", "web", conv, "hello", "hi there", nil, t1))
	assert.Equal(t, 2, conv.MessageCount)
	assert.Equal(t, t1, conv.LastMessageTime)
}

func TestTitleTruncatedAtThirtyChars(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	longText := "this message is definitely longer than thirty characters"
	conv, err := svc.AssignConversation(ctx, "uid-1", "", longText, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "this message is definitely lon…", conv.Title)
}

func TestListConversationsPartitionsPinned(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	t1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	convA, err := svc.AssignConversation(ctx, "uid-1", "", "a", t1)
	require.NoError(t, err)
	require.NoError(t, svc.SetPinned(ctx, "uid-1", convA.ConversationID, true))

	t2 := t1.Add(2 * time.Hour)
	_, err = svc.AssignConversation(ctx, "uid-1", "", "b", t2)
	require.NoError(t, err)

	page, err := svc.ListConversations(ctx, "uid-1", "")
	require.NoError(t, err)
	assert.Len(t, page.Pinned, 1)
	assert.Len(t, page.Recent, 1)
	assert.Equal(t, convA.ConversationID, page.Pinned[0].ConversationID)
}

func TestMigrationAssignsConversationsAcrossGap(t *testing.T) {
	ctx := context.Background()
	kv := memkv.New()
	store := history.NewStore(kv, 0)
	counter := 0
	newID := func() string {
		counter++
		return fmt.Sprintf("mig-conv-%d", counter)
	}

	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	msgs := []history.Message{
		{UnifiedUserID: "uid-9", TimestampMsgID: history.NewTimestampMsgID(base), Role: history.RoleUser, Content: history.Content{Text: "first"}, Channel: "telegram"},
		{UnifiedUserID: "uid-9", TimestampMsgID: history.NewTimestampMsgID(base.Add(10 * time.Minute)), Role: history.RoleAssistant, Content: history.Content{Text: "reply"}, Channel: "telegram"},
		{UnifiedUserID: "uid-9", TimestampMsgID: history.NewTimestampMsgID(base.Add(3 * time.Hour)), Role: history.RoleUser, Content: history.Content{Text: "much later"}, Channel: "telegram"},
	}
	for i := range msgs {
		require.NoError(t, store.PutMessage(ctx, &msgs[i]))
	}

	migrator := history.NewMigrator(store, newID)
	report, err := migrator.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.UsersProcessed)
	assert.Equal(t, 3, report.MessagesAssigned)
	assert.Equal(t, 2, report.ConversationsCreated)

	all, err := store.ListAllMessagesChronological(ctx, "uid-9")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, all[0].ConversationID, all[1].ConversationID)
	assert.NotEqual(t, all[0].ConversationID, all[2].ConversationID)

	// Re-running must be a no-op: every message already carries a
	// conversation_id.
	report2, err := migrator.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report2.MessagesAssigned)
	assert.Equal(t, 0, report2.ConversationsCreated)
}

func TestBucketForBoundaries(t *testing.T) {
	now := time.Date(2026, 1, 10, 15, 0, 0, 0, time.UTC)

	assert.Equal(t, history.BucketToday, history.BucketFor(time.Date(2026, 1, 10, 1, 0, 0, 0, time.UTC), now))
	assert.Equal(t, history.BucketYesterday, history.BucketFor(time.Date(2026, 1, 9, 23, 0, 0, 0, time.UTC), now))
	assert.Equal(t, history.BucketThisWeek, history.BucketFor(time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC), now))
	assert.Equal(t, history.BucketEarlier, history.BucketFor(time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC), now))
}

func TestExportJSONAndMarkdown(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	t1 := time.Date(2026, 1, 1, 10, 30, 0, 0, time.UTC)
	conv, err := svc.AssignConversation(ctx, "uid-1", "", "hello", t1)
	require.NoError(t, err)
	require.NoError(t, svc.RecordTurn(ctx, "uid-1", "web", conv, "hello", "hi there", nil, t1))

	jsonData, err := svc.ExportJSON(ctx, "uid-1")
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), "hello")

	md, err := svc.ExportMarkdown(ctx, "uid-1")
	require.NoError(t, err)
	assert.Contains(t, md, "## 2026-01-01")
	assert.Contains(t, md, "10:30:00")
	assert.Contains(t, md, "[user/web]")
}
