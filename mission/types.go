package mission

import (
	"math"

	"github.com/shi0417/kongfuworld-sub004/model"
)

// InitResult reports the outcome of EnsureTodayInitialized.
type InitResult struct {
	// Initialized is true when this call seeded today's task set.
	Initialized bool                  `json:"initialized"`
	Status      model.MissionState    `json:"status"`
	Missions    []model.MissionConfig `json:"missions,omitempty"`
}

type ProgressResult struct {
	MissionKey        string `json:"mission_key"`
	Progress          int    `json:"progress"`
	Target            int    `json:"target"`
	Completed         bool   `json:"completed"`
	Percentage        int    `json:"percentage"`
	AllTasksCompleted bool   `json:"all_tasks_completed"`
}

// TaskProgress is one of today's progress rows joined to its definition.
type TaskProgress struct {
	MissionID   int64  `json:"mission_id"`
	MissionKey  string `json:"mission_key"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Event       string `json:"event,omitempty"`
	Progress    int    `json:"progress"`
	Target      int    `json:"target"`
	Completed   bool   `json:"completed"`
	Claimed     bool   `json:"claimed"`
	Percentage  int    `json:"percentage"`
	RewardKeys  int    `json:"reward_keys"`
	RewardKarma int    `json:"reward_karma"`
}

// CompletionResult carries the full task list when every task is done and the
// completed/total breakdown otherwise. A cached completed status returns no rows.
type CompletionResult struct {
	Completed      bool           `json:"completed"`
	Tasks          []TaskProgress `json:"tasks,omitempty"`
	CompletedCount int            `json:"completed_count"`
	TotalCount     int            `json:"total_count"`
}

// MissionUpdate is the per-mission outcome of an activity event.
type MissionUpdate struct {
	MissionKey string          `json:"mission_key"`
	Result     *ProgressResult `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// EventOutcome aggregates what an activity event did to the user's missions.
type EventOutcome struct {
	Event         string            `json:"event"`
	Initialized   bool              `json:"initialized"`
	Updates       []MissionUpdate   `json:"updates"`
	Completion    *CompletionResult `json:"completion,omitempty"`
	JustCompleted bool              `json:"just_completed"`
}

// DailyView is today's mission board for one user.
type DailyView struct {
	Date              string             `json:"date"`
	Status            model.MissionState `json:"status"`
	Missions          []TaskProgress     `json:"missions"`
	CompletedCount    int                `json:"completed_count"`
	TotalCount        int                `json:"total_count"`
	AllTasksCompleted bool               `json:"all_tasks_completed"`
}

type ClaimResult struct {
	MissionID   int64  `json:"mission_id"`
	MissionKey  string `json:"mission_key"`
	RewardKeys  int    `json:"reward_keys"`
	RewardKarma int    `json:"reward_karma"`
	Balance     int64  `json:"balance"`
	Karma       int64  `json:"karma"`
}

// Percentage is round(100*progress/target) capped at 100.
func Percentage(progress, target int) int {
	if target <= 0 {
		return 100
	}
	p := int(math.Round(100 * float64(progress) / float64(target)))
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}
