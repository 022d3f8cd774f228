package model_test

import (
	"testing"
	"time"

	"github.com/shi0417/kongfuworld-sub004/model"
	"github.com/shi0417/kongfuworld-sub004/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	u := &model.User{Username: "reader", Points: 5}
	require.NoError(t, db.Create(u).Error)
	assert.Greater(t, u.ID, int64(0))

	var found model.User
	require.NoError(t, db.First(&found, u.ID).Error)
	assert.Equal(t, "reader", found.Username)
	assert.Equal(t, int64(5), found.Points)

	m := &model.MissionConfig{
		MissionKey: "read_2_chapters", Title: "Read 2 chapters", TargetValue: 2,
		RewardKeys: 2, MissionType: model.MissionTypeDaily, ResetType: model.MissionTypeDaily,
		Event: "chapter_read", IsActive: true,
	}
	require.NoError(t, db.Create(m).Error)

	p := &model.UserMissionProgress{UserID: u.ID, MissionID: m.ID, ProgressDate: "2025-06-10"}
	require.NoError(t, db.Create(p).Error)

	now := time.Now().UTC()
	require.NoError(t, db.Create(&model.ReadingLog{UserID: u.ID, ChapterID: 1, ReadAt: now, FirstReadAt: now}).Error)
	require.NoError(t, db.Create(&model.ChapterUnlock{UserID: u.ID, ChapterID: 1, UnlockMethod: model.UnlockMethodFree, Status: model.UnlockStatusUnlocked, UnlockedAt: &now}).Error)
	require.NoError(t, db.Create(&model.DailyCheckin{UserID: u.ID, CheckinDate: "2025-06-10", KeysEarned: 3, StreakDays: 1, TotalKeys: 8}).Error)
	require.NoError(t, db.Create(&model.KeyTransaction{UserID: u.ID, TransactionType: model.KeyTxCheckin, Amount: 3, BalanceBefore: 5, BalanceAfter: 8}).Error)
	require.NoError(t, db.Create(&model.AuditLog{TraceID: "trace-001", UserID: &u.ID, Action: "checkin"}).Error)
}

func TestUniqueProgressPerDay(t *testing.T) {
	db := testutil.SetupTestDB(t)
	p := model.UserMissionProgress{UserID: 1, MissionID: 1, ProgressDate: "2025-06-10"}
	require.NoError(t, db.Create(&p).Error)

	dup := model.UserMissionProgress{UserID: 1, MissionID: 1, ProgressDate: "2025-06-10"}
	assert.Error(t, db.Create(&dup).Error)

	next := model.UserMissionProgress{UserID: 1, MissionID: 1, ProgressDate: "2025-06-11"}
	assert.NoError(t, db.Create(&next).Error)
}

func TestCompletionLogDedup_NullChapterNotDeduped(t *testing.T) {
	db := testutil.SetupTestDB(t)
	chapter := int64(42)
	base := model.MissionCompletionLog{UserID: 1, MissionID: 1, LogDate: "2025-06-10", ProgressValue: 1, CompletedAt: time.Now()}

	withChapter := base
	withChapter.ChapterID = &chapter
	require.NoError(t, db.Create(&withChapter).Error)
	again := base
	again.ChapterID = &chapter
	assert.Error(t, db.Create(&again).Error)

	a, b := base, base
	require.NoError(t, db.Create(&a).Error)
	require.NoError(t, db.Create(&b).Error)
}

func TestMissionStatus(t *testing.T) {
	u := model.User{MissionDate: "2025-06-10", MissionState: model.MissionUncompleted}
	s := u.MissionStatus()
	assert.True(t, s.ActiveOn("2025-06-10"))
	assert.False(t, s.ActiveOn("2025-06-11"))
	assert.False(t, s.CompletedOn("2025-06-10"))

	u.MissionState = model.MissionCompleted
	assert.True(t, u.MissionStatus().CompletedOn("2025-06-10"))
	assert.False(t, u.MissionStatus().ActiveOn("2025-06-10"))

	assert.False(t, model.MissionStatus{}.ActiveOn(""))
}

func TestChapterUnlock_Paid(t *testing.T) {
	assert.True(t, (&model.ChapterUnlock{UnlockMethod: model.UnlockMethodKey}).Paid())
	assert.True(t, (&model.ChapterUnlock{UnlockMethod: model.UnlockMethodKarma}).Paid())
	assert.False(t, (&model.ChapterUnlock{UnlockMethod: model.UnlockMethodTime}).Paid())
	assert.False(t, (&model.ChapterUnlock{UnlockMethod: model.UnlockMethodChampion}).Paid())
}
