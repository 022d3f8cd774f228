package model

import "time"

// MissionState is the per-user daily mission flag.
type MissionState string

const (
	MissionUncompleted MissionState = "uncompleted"
	MissionCompleted   MissionState = "completed"
)

// User holds the platform-side account fields this service reads and writes.
// Accounts are created by the main site; Points is the key balance.
type User struct {
	ID           int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string       `gorm:"uniqueIndex;size:64;not null" json:"username"`
	Points       int64        `gorm:"not null;default:0" json:"points"`
	Karma        int64        `gorm:"not null;default:0" json:"karma"`
	MissionDate  string       `gorm:"size:10" json:"mission_date"`
	MissionState MissionState `gorm:"size:16" json:"mission_state"`
	CheckinDay   string       `gorm:"size:10" json:"checkin_day"`
	CreatedAt    time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

// MissionStatus is the (date, state) pair stored on the user row.
type MissionStatus struct {
	Date  string       `json:"date"`
	State MissionState `json:"state"`
}

func (u *User) MissionStatus() MissionStatus {
	return MissionStatus{Date: u.MissionDate, State: u.MissionState}
}

// ActiveOn reports whether the user is in mission mode for day.
func (s MissionStatus) ActiveOn(day string) bool {
	return s.Date == day && s.State == MissionUncompleted
}

// CompletedOn reports whether every mission of day has been flagged done.
func (s MissionStatus) CompletedOn(day string) bool {
	return s.Date == day && s.State == MissionCompleted
}
