package model

import "time"

const (
	UnlockMethodTime     = "time_unlock"
	UnlockMethodKey      = "key"
	UnlockMethodKarma    = "karma"
	UnlockMethodChampion = "champion"
	UnlockMethodFree     = "free"

	UnlockStatusPending  = "pending"
	UnlockStatusUnlocked = "unlocked"
)

// ReadingLog keeps the first and latest read of a chapter by a user; one row per pair.
type ReadingLog struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64     `gorm:"uniqueIndex:uniq_reading_user_chapter;not null" json:"user_id"`
	ChapterID   int64     `gorm:"uniqueIndex:uniq_reading_user_chapter;not null" json:"chapter_id"`
	ReadAt      time.Time `gorm:"not null" json:"read_at"`
	FirstReadAt time.Time `gorm:"not null" json:"first_read_at"`
}

// ChapterUnlock is a user's access grant to a paywalled chapter. Time unlocks
// start pending and become unlocked once UnlockAt has passed.
type ChapterUnlock struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64      `gorm:"index:idx_unlock_user_chapter;not null" json:"user_id"`
	ChapterID    int64      `gorm:"index:idx_unlock_user_chapter;not null" json:"chapter_id"`
	UnlockMethod string     `gorm:"size:20;not null" json:"unlock_method"`
	Status       string     `gorm:"index:idx_unlock_due;size:16;not null" json:"status"`
	Cost         int        `gorm:"not null;default:0" json:"cost"`
	UnlockAt     *time.Time `gorm:"index:idx_unlock_due" json:"unlock_at"`
	UnlockedAt   *time.Time `json:"unlocked_at"`
	IsRead       bool       `gorm:"not null" json:"is_read"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// Paid reports whether the unlock cost the reader a currency.
func (u *ChapterUnlock) Paid() bool {
	return u.UnlockMethod == UnlockMethodKey || u.UnlockMethod == UnlockMethodKarma
}
