package mission

import (
	"context"
	"errors"
	"time"

	"github.com/shi0417/kongfuworld-sub004/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the persistence contract of the mission engine: the user status
// pair, today's progress rows and the completion log.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithContext(ctx context.Context) *Store {
	return &Store{db: s.db.WithContext(ctx)}
}

// Tx runs fn inside one database transaction.
func (s *Store) Tx(fn func(tx *Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// DB exposes the underlying handle so collaborators (the ledger) can join the transaction.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) user(userID int64, columns ...string) (*model.User, error) {
	var u model.User
	q := s.db
	if len(columns) > 0 {
		q = q.Select(append([]string{"id"}, columns...))
	}
	err := q.First(&u, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Status reads the user's mission status pair.
func (s *Store) Status(userID int64) (model.MissionStatus, error) {
	u, err := s.user(userID, "mission_date", "mission_state")
	if err != nil {
		return model.MissionStatus{}, err
	}
	return u.MissionStatus(), nil
}

func (s *Store) SetStatus(userID int64, st model.MissionStatus) error {
	res := s.db.Model(&model.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"mission_date":  st.Date,
		"mission_state": st.State,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *Store) CountProgress(userID int64, day string) (int64, error) {
	var n int64
	err := s.db.Model(&model.UserMissionProgress{}).
		Where("user_id = ? AND progress_date = ?", userID, day).
		Count(&n).Error
	return n, err
}

// SeedProgress inserts a zeroed row per definition. Rows that already exist
// are left untouched; the returned count is the number actually inserted.
func (s *Store) SeedProgress(userID int64, defs []model.MissionConfig, day string, now time.Time) (int64, error) {
	if len(defs) == 0 {
		return 0, nil
	}
	rows := make([]model.UserMissionProgress, 0, len(defs))
	for _, d := range defs {
		rows = append(rows, model.UserMissionProgress{
			UserID:       userID,
			MissionID:    d.ID,
			ProgressDate: day,
			UpdatedAt:    now,
		})
	}
	res := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "mission_id"}, {Name: "progress_date"}},
		DoNothing: true,
	}).Create(&rows)
	return res.RowsAffected, res.Error
}

// MissionByKey resolves an active definition.
func (s *Store) MissionByKey(key string) (*model.MissionConfig, error) {
	var m model.MissionConfig
	err := s.db.Where("mission_key = ? AND is_active = ?", key, true).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMissionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) MissionByID(id int64) (*model.MissionConfig, error) {
	var m model.MissionConfig
	err := s.db.First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMissionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ActiveMissions lists active definitions of one mission type, in catalog order.
func (s *Store) ActiveMissions(missionType string) ([]model.MissionConfig, error) {
	var defs []model.MissionConfig
	err := s.db.Where("mission_type = ? AND is_active = ?", missionType, true).
		Order("id ASC").Find(&defs).Error
	return defs, err
}

func (s *Store) Progress(userID, missionID int64, day string) (*model.UserMissionProgress, error) {
	var p model.UserMissionProgress
	err := s.db.Where("user_id = ? AND mission_id = ? AND progress_date = ?", userID, missionID, day).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoProgressToday
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// advanceSQL adds incr to a row and clamps at target in a single statement.
// is_completed is assigned first: MySQL evaluates SET left to right with
// already-updated values, SQLite reads the old row throughout, and ordering it
// first gives both the same result. A row already at or above target never moves.
const advanceSQL = `UPDATE user_mission_progress SET
	is_completed = CASE WHEN current_progress + ? >= ? THEN 1 ELSE 0 END,
	current_progress = CASE
		WHEN current_progress >= ? THEN current_progress
		WHEN current_progress + ? >= ? THEN ?
		ELSE current_progress + ?
	END,
	updated_at = ?
WHERE id = ?`

// Advance applies an increment to a progress row and returns the row as stored.
func (s *Store) Advance(rowID int64, incr, target int, now time.Time) (*model.UserMissionProgress, error) {
	err := s.db.Exec(advanceSQL,
		incr, target,
		target,
		incr, target, target,
		incr,
		now, rowID,
	).Error
	if err != nil {
		return nil, err
	}
	var p model.UserMissionProgress
	if err := s.db.First(&p, rowID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

type taskRow struct {
	MissionID       int64
	MissionKey      string
	Title           string
	Description     string
	Event           string
	CurrentProgress int
	TargetValue     int
	IsCompleted     bool
	IsClaimed       bool
	RewardKeys      int
	RewardKarma     int
}

// TodayTasks joins the user's progress rows for day to their definitions.
func (s *Store) TodayTasks(userID int64, day string) ([]TaskProgress, error) {
	var rows []taskRow
	err := s.db.Table("user_mission_progress AS p").
		Select("p.mission_id, m.mission_key, m.title, m.description, m.event, p.current_progress, " +
			"m.target_value, p.is_completed, p.is_claimed, m.reward_keys, m.reward_karma").
		Joins("JOIN mission_configs m ON m.id = p.mission_id").
		Where("p.user_id = ? AND p.progress_date = ?", userID, day).
		Order("p.mission_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	tasks := make([]TaskProgress, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, TaskProgress{
			MissionID:   r.MissionID,
			MissionKey:  r.MissionKey,
			Title:       r.Title,
			Description: r.Description,
			Event:       r.Event,
			Progress:    r.CurrentProgress,
			Target:      r.TargetValue,
			Completed:   r.IsCompleted,
			Claimed:     r.IsClaimed,
			Percentage:  Percentage(r.CurrentProgress, r.TargetValue),
			RewardKeys:  r.RewardKeys,
			RewardKarma: r.RewardKarma,
		})
	}
	return tasks, nil
}

// HasChapterLog reports whether chapterID already contributed to missionID on day.
func (s *Store) HasChapterLog(userID, missionID, chapterID int64, day string) (bool, error) {
	var n int64
	err := s.db.Model(&model.MissionCompletionLog{}).
		Where("user_id = ? AND mission_id = ? AND chapter_id = ? AND log_date = ?", userID, missionID, chapterID, day).
		Count(&n).Error
	return n > 0, err
}

// AppendLog inserts a completion log row; a duplicate chapter row is ignored.
func (s *Store) AppendLog(entry *model.MissionCompletionLog) (bool, error) {
	res := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "mission_id"}, {Name: "chapter_id"}, {Name: "log_date"}},
		DoNothing: true,
	}).Create(entry)
	return res.RowsAffected > 0, res.Error
}

// MarkClaimed flips is_claimed on a completed, unclaimed row for day.
// It reports false when no such row exists.
func (s *Store) MarkClaimed(userID, missionID int64, day string, now time.Time) (bool, error) {
	res := s.db.Model(&model.UserMissionProgress{}).
		Where("user_id = ? AND mission_id = ? AND progress_date = ? AND is_completed = ? AND is_claimed = ?",
			userID, missionID, day, true, false).
		Updates(map[string]interface{}{"is_claimed": true, "updated_at": now})
	return res.RowsAffected > 0, res.Error
}

func (s *Store) AddKarma(userID int64, amount int) error {
	return s.db.Model(&model.User{}).Where("id = ?", userID).
		Update("karma", gorm.Expr("karma + ?", amount)).Error
}

// StampLogsClaimed marks the user's unclaimed logs for missionID on day as paid out.
func (s *Store) StampLogsClaimed(userID, missionID int64, day string, now time.Time) error {
	return s.db.Model(&model.MissionCompletionLog{}).
		Where("user_id = ? AND mission_id = ? AND log_date = ? AND claimed_at IS NULL", userID, missionID, day).
		Update("claimed_at", now).Error
}

// Balances returns the user's key and karma balances.
func (s *Store) Balances(userID int64) (points, karma int64, err error) {
	u, err := s.user(userID, "points", "karma")
	if err != nil {
		return 0, 0, err
	}
	return u.Points, u.Karma, nil
}
