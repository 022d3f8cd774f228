package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shi0417/kongfuworld-sub004/hook"
	"github.com/shi0417/kongfuworld-sub004/model"
	"github.com/shi0417/kongfuworld-sub004/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func nop() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

func TestNew_StartsWorker(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())
	require.NotNil(t, svc)
	svc.Stop(context.Background())
}

func TestLog_EnqueuedAndFlushed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())

	userID := int64(7)
	svc.Log(AuditEntry{
		TraceID:    "trace-123",
		UserID:     &userID,
		Action:     "mission.claim",
		Request:    map[string]int64{"mission_id": 3},
		Response:   map[string]int{"reward_keys": 2},
		IP:         "127.0.0.1",
		DurationMs: 42,
	})

	// Stop flushes remaining entries
	svc.Stop(context.Background())

	var logs []model.AuditLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "trace-123", logs[0].TraceID)
	require.NotNil(t, logs[0].UserID)
	assert.Equal(t, int64(7), *logs[0].UserID)
	assert.Equal(t, "mission.claim", logs[0].Action)
	assert.Equal(t, "127.0.0.1", logs[0].IP)
	assert.Equal(t, 42, logs[0].DurationMs)
	assert.JSONEq(t, `{"reward_keys":2}`, string(logs[0].Response))
}

func TestLog_MultipleLogs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())

	for i := 0; i < 10; i++ {
		svc.Log(AuditEntry{Action: "checkin", IP: "10.0.0.1"})
	}
	svc.Stop(context.Background())

	var count int64
	db.Model(&model.AuditLog{}).Count(&count)
	assert.Equal(t, int64(10), count)
}

func TestLog_BatchFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewWithOptions(db, nop(), Options{BatchSize: 5, FlushInterval: time.Hour})

	for i := 0; i < 5; i++ {
		svc.Log(AuditEntry{Action: "batch"})
	}

	assert.Eventually(t, func() bool {
		var count int64
		db.Model(&model.AuditLog{}).Count(&count)
		return count == 5
	}, 2*time.Second, 20*time.Millisecond)
	svc.Stop(context.Background())
}

func TestLog_TimerFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewWithOptions(db, nop(), Options{FlushInterval: 50 * time.Millisecond})
	defer svc.Stop(context.Background())

	svc.Log(AuditEntry{Action: "timer_test"})

	assert.Eventually(t, func() bool {
		var count int64
		db.Model(&model.AuditLog{}).Where("action = ?", "timer_test").Count(&count)
		return count == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStop_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())
	svc.Stop(context.Background())
	svc.Stop(context.Background()) // must not panic
}

func TestLog_NilFields(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())

	svc.Log(AuditEntry{Action: "anonymous"})
	svc.Stop(context.Background())

	var logs []model.AuditLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Nil(t, logs[0].UserID)
	assert.Empty(t, logs[0].Request)
}

func TestLog_DropsWhenFull(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewWithOptions(db, nop(), Options{Buffer: 4, BatchSize: 1000, FlushInterval: time.Hour})

	// Only verifies the full-queue path does not block or panic.
	for i := 0; i < 100; i++ {
		svc.Log(AuditEntry{Action: "flood"})
	}
	svc.Stop(context.Background())

	var count int64
	db.Model(&model.AuditLog{}).Count(&count)
	assert.LessOrEqual(t, count, int64(100))
	assert.Positive(t, count)
}

func TestSubscribe_RecordsActivities(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())
	hc := hook.NewCenter()
	hc.Register(hook.ChapterRead, 10, "mission", func(_ context.Context, act *hook.Activity) error {
		act.Put("missions", map[string]bool{"completed": true})
		return nil
	})
	svc.Subscribe(hc)
	assert.Equal(t, []string{"mission", "audit"}, hc.Names(hook.ChapterRead))

	chapter := int64(12)
	require.NoError(t, hc.Trigger(context.Background(), hook.NewActivity(hook.ChapterRead, 5, &chapter)))
	require.NoError(t, hc.Trigger(context.Background(), hook.NewActivity(hook.DailyCheckin, 5, nil)))
	svc.Stop(context.Background())

	var logs []model.AuditLog
	require.NoError(t, db.Order("id").Find(&logs).Error)
	require.Len(t, logs, 2)
	assert.Equal(t, "activity.chapter_read", logs[0].Action)
	assert.JSONEq(t, `{"chapter_id":12}`, string(logs[0].Request))

	var resp map[string]map[string]bool
	require.NoError(t, json.Unmarshal(logs[0].Response, &resp))
	assert.True(t, resp["missions"]["completed"])
	assert.Equal(t, "activity.daily_checkin", logs[1].Action)
}

func TestTraceID(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))

	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(),
		trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid}))
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", TraceID(ctx))
}
