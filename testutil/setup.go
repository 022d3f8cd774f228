package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shi0417/kongfuworld-sub004/cache"
	"github.com/shi0417/kongfuworld-sub004/clock"
	"github.com/shi0417/kongfuworld-sub004/config"
	dbadapter "github.com/shi0417/kongfuworld-sub004/db"
	"github.com/shi0417/kongfuworld-sub004/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// CST is the reference location used by tests (UTC+8, no DST).
var CST = time.FixedZone("CST", 8*3600)

// SetupTestDB creates a private in-memory SQLite database and runs AutoMigrate.
// It requires no external services and is safe to use in parallel tests.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode:       dbadapter.ModeSQLite,
		SQLitePath: dsn,
	})
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SetupTestCache creates LocalCache and LocalPubSub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := cache.CacheConfig{} // empty RedisAddr → LocalCache
	c, err := cache.NewCache(cfg)
	require.NoError(t, err, "SetupTestCache: NewCache")
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "SetupTestCache: NewPubSub")
	return c, ps
}

// NewClock returns a fake clock at 09:00 CST on 2025-06-10.
func NewClock() *clock.Fake {
	return clock.NewFake(time.Date(2025, 6, 10, 9, 0, 0, 0, CST))
}

// SeedUser inserts a user with the given key balance.
func SeedUser(t *testing.T, db *gorm.DB, name string, points int64) *model.User {
	t.Helper()
	u := &model.User{Username: name, Points: points}
	require.NoError(t, db.Create(u).Error, "SeedUser")
	return u
}

// SeedUnlock records an unlocked chapter grant at the given instant.
func SeedUnlock(t *testing.T, db *gorm.DB, userID, chapterID int64, method string, at time.Time) *model.ChapterUnlock {
	t.Helper()
	utc := at.UTC()
	u := &model.ChapterUnlock{
		UserID:       userID,
		ChapterID:    chapterID,
		UnlockMethod: method,
		Status:       model.UnlockStatusUnlocked,
		UnlockedAt:   &utc,
	}
	require.NoError(t, db.Create(u).Error, "SeedUnlock")
	return u
}
