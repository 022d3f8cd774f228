package model

import "time"

type DailyCheckin struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64     `gorm:"uniqueIndex:uniq_checkin_user_date;not null" json:"user_id"`
	CheckinDate string    `gorm:"uniqueIndex:uniq_checkin_user_date;size:10;not null" json:"checkin_date"`
	KeysEarned  int       `gorm:"not null" json:"keys_earned"`
	StreakDays  int       `gorm:"not null" json:"streak_days"`
	TotalKeys   int64     `gorm:"not null" json:"total_keys"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
