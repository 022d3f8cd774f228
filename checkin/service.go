// Package checkin implements the daily check-in with its weekly key reward
// cycle. A successful check-in is announced as a daily_checkin activity.
package checkin

import (
	"context"
	"errors"
	"fmt"

	"github.com/shi0417/kongfuworld-sub004/clock"
	dbadapter "github.com/shi0417/kongfuworld-sub004/db"
	"github.com/shi0417/kongfuworld-sub004/hook"
	"github.com/shi0417/kongfuworld-sub004/ledger"
	"github.com/shi0417/kongfuworld-sub004/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrAlreadyCheckedIn = errors.New("already checked in today")
	ErrUserNotFound     = errors.New("user not found")
)

// DefaultRewards is the key reward for streak days 1..7; day 8 starts over.
var DefaultRewards = []int{3, 3, 3, 5, 3, 3, 6}

var tracer = otel.Tracer("github.com/shi0417/kongfuworld-sub004/checkin")

type Status struct {
	Today          string              `json:"today"`
	CheckedInToday bool                `json:"checked_in_today"`
	StreakDays     int                 `json:"streak_days"`
	NextReward     int                 `json:"next_reward"`
	Last           *model.DailyCheckin `json:"last_checkin,omitempty"`
}

type Result struct {
	Checkin *model.DailyCheckin    `json:"checkin"`
	Balance int64                  `json:"balance"`
	Results map[string]interface{} `json:"results,omitempty"`
}

type Service struct {
	db      *gorm.DB
	ledger  *ledger.Ledger
	clock   clock.Clock
	rewards []int
	hooks   *hook.Center
	logger  *zap.Logger
}

// NewService creates a check-in service. An empty reward table falls back to
// DefaultRewards; hooks may be nil.
func NewService(db *gorm.DB, led *ledger.Ledger, clk clock.Clock, rewards []int, hooks *hook.Center, logger *zap.Logger) *Service {
	if len(rewards) == 0 {
		rewards = DefaultRewards
	}
	return &Service{db: db, ledger: led, clock: clk, rewards: rewards, hooks: hooks, logger: logger}
}

// RewardFor returns the keys paid on the given streak day.
func (s *Service) RewardFor(streak int) int {
	if streak < 1 {
		streak = 1
	}
	return s.rewards[(streak-1)%len(s.rewards)]
}

func (s *Service) last(tx *gorm.DB, userID int64) (*model.DailyCheckin, error) {
	var rows []model.DailyCheckin
	if err := tx.Where("user_id = ?", userID).Order("checkin_date DESC").Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Status reports today's check-in state and the live streak. A streak whose
// last day is older than yesterday is broken and reported as zero.
func (s *Service) Status(ctx context.Context, userID int64) (*Status, error) {
	last, err := s.last(s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, fmt.Errorf("checkin: load last: %w", err)
	}
	today, yesterday := clock.Today(s.clock), clock.Yesterday(s.clock)
	st := &Status{Today: today, Last: last}
	if last != nil {
		switch last.CheckinDate {
		case today:
			st.CheckedInToday = true
			st.StreakDays = last.StreakDays
		case yesterday:
			st.StreakDays = last.StreakDays
		}
	}
	st.NextReward = s.RewardFor(st.StreakDays + 1)
	return st, nil
}

// CheckIn records today's check-in, pays the streak reward and then fires
// the daily_checkin activity.
func (s *Service) CheckIn(ctx context.Context, userID int64) (res *Result, err error) {
	ctx, span := tracer.Start(ctx, "checkin.CheckIn")
	defer func() {
		if err != nil && !errors.Is(err, ErrAlreadyCheckedIn) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(attribute.Int64("user.id", userID))

	today, yesterday := clock.Today(s.clock), clock.Yesterday(s.clock)
	row := &model.DailyCheckin{UserID: userID, CheckinDate: today}
	var balance int64

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		last, err := s.last(tx, userID)
		if err != nil {
			return err
		}
		row.StreakDays = 1
		if last != nil {
			switch last.CheckinDate {
			case today:
				return ErrAlreadyCheckedIn
			case yesterday:
				row.StreakDays = last.StreakDays + 1
			}
		}
		row.KeysEarned = s.RewardFor(row.StreakDays)

		if err := tx.Create(row).Error; err != nil {
			if dbadapter.IsUniqueViolation(err) {
				return ErrAlreadyCheckedIn
			}
			return err
		}
		ref := row.ID
		rec, err := s.ledger.Credit(tx, ledger.Entry{
			UserID:        userID,
			Type:          model.KeyTxCheckin,
			Amount:        int64(row.KeysEarned),
			ReferenceID:   &ref,
			ReferenceType: "daily_checkin",
			Description:   fmt.Sprintf("Daily check-in reward (day %d)", row.StreakDays),
		})
		if err != nil {
			return err
		}
		balance = rec.BalanceAfter
		row.TotalKeys = balance
		if err := tx.Model(row).Update("total_keys", balance).Error; err != nil {
			return err
		}
		return tx.Model(&model.User{}).Where("id = ?", userID).Update("checkin_day", today).Error
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyCheckedIn):
		return nil, err
	case errors.Is(err, ledger.ErrUserNotFound):
		return nil, ErrUserNotFound
	default:
		s.logger.Error("check-in failed", zap.Int64("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("checkin: %w", err)
	}

	s.logger.Info("checked in",
		zap.Int64("user_id", userID), zap.Int("streak_days", row.StreakDays), zap.Int("keys", row.KeysEarned))

	res = &Result{Checkin: row, Balance: balance}
	if s.hooks != nil {
		act := hook.NewActivity(hook.DailyCheckin, userID, nil)
		if err := s.hooks.Trigger(ctx, act); err != nil {
			s.logger.Warn("daily_checkin hooks interrupted", zap.Int64("user_id", userID), zap.Error(err))
		}
		res.Results = act.Outputs()
	}
	return res, nil
}

// History lists the user's check-ins, newest first.
func (s *Service) History(ctx context.Context, userID int64, limit int) ([]model.DailyCheckin, error) {
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	var rows []model.DailyCheckin
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("checkin_date DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
