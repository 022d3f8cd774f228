package model

import "time"

const (
	MissionTypeDaily   = "daily"
	MissionTypeWeekly  = "weekly"
	MissionTypeMonthly = "monthly"
)

// MissionConfig is one entry of the admin-managed mission catalog.
// Event names the activity that advances the mission automatically
// (chapter_read, daily_checkin); empty means progress is reported explicitly.
type MissionConfig struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MissionKey  string    `gorm:"uniqueIndex;size:50;not null" json:"mission_key"`
	Title       string    `gorm:"size:128;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	TargetValue int       `gorm:"not null" json:"target_value"`
	RewardKeys  int       `gorm:"not null;default:0" json:"reward_keys"`
	RewardKarma int       `gorm:"not null;default:0" json:"reward_karma"`
	MissionType string    `gorm:"index:idx_mission_type_active;size:16;not null" json:"mission_type"`
	ResetType   string    `gorm:"size:16;not null" json:"reset_type"`
	Event       string    `gorm:"index:idx_mission_event;size:32" json:"event"`
	IsActive    bool      `gorm:"index:idx_mission_type_active;not null" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// UserMissionProgress is one user's counter for one mission on one day.
type UserMissionProgress struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64     `gorm:"uniqueIndex:uniq_progress_user_mission_date;not null" json:"user_id"`
	MissionID       int64     `gorm:"uniqueIndex:uniq_progress_user_mission_date;not null" json:"mission_id"`
	ProgressDate    string    `gorm:"uniqueIndex:uniq_progress_user_mission_date;size:10;not null" json:"progress_date"`
	CurrentProgress int       `gorm:"not null;default:0" json:"current_progress"`
	IsCompleted     bool      `gorm:"not null" json:"is_completed"`
	IsClaimed       bool      `gorm:"not null" json:"is_claimed"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (UserMissionProgress) TableName() string { return "user_mission_progress" }

// MissionCompletionLog records a counted contribution together with the
// reward values in force at that moment. A non-null ChapterID is counted at
// most once per (user, mission, day).
type MissionCompletionLog struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64      `gorm:"uniqueIndex:uniq_completion_dedup;not null" json:"user_id"`
	MissionID     int64      `gorm:"uniqueIndex:uniq_completion_dedup;not null" json:"mission_id"`
	ChapterID     *int64     `gorm:"uniqueIndex:uniq_completion_dedup" json:"chapter_id"`
	LogDate       string     `gorm:"uniqueIndex:uniq_completion_dedup;size:10;not null" json:"log_date"`
	ProgressValue int        `gorm:"not null" json:"progress_value"`
	RewardKeys    int        `gorm:"not null" json:"reward_keys"`
	RewardKarma   int        `gorm:"not null" json:"reward_karma"`
	CompletedAt   time.Time  `json:"completed_at"`
	ClaimedAt     *time.Time `json:"claimed_at"`
}
