package reading

import (
	"context"
	"fmt"
	"time"

	"github.com/shi0417/kongfuworld-sub004/clock"
	"github.com/shi0417/kongfuworld-sub004/hook"
	"github.com/shi0417/kongfuworld-sub004/model"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReadResult is returned for every chapter view, eligible or not.
type ReadResult struct {
	ChapterID int64                  `json:"chapter_id"`
	NewRead   bool                   `json:"is_new_read"`
	Reason    string                 `json:"reason"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	ReadAt    *time.Time             `json:"read_at,omitempty"`
	Results   map[string]interface{} `json:"results,omitempty"`
}

// Service records chapter reads.
type Service struct {
	db     *gorm.DB
	gate   *Gate
	clock  clock.Clock
	hooks  *hook.Center
	logger *zap.Logger
}

func NewService(db *gorm.DB, gate *Gate, clk clock.Clock, hooks *hook.Center, logger *zap.Logger) *Service {
	return &Service{db: db, gate: gate, clock: clk, hooks: hooks, logger: logger}
}

func (s *Service) Gate() *Gate { return s.gate }

// ReadChapter promotes a due time unlock for the pair, runs the gate and, for
// a fresh read, stores the reading log and fires the chapter_read activity.
func (s *Service) ReadChapter(ctx context.Context, userID, chapterID int64) (*ReadResult, error) {
	ctx, span := tracer.Start(ctx, "reading.ReadChapter")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID), attribute.Int64("chapter.id", chapterID))

	if _, err := s.promoteDue(s.db.WithContext(ctx).Where("user_id = ? AND chapter_id = ?", userID, chapterID)); err != nil {
		s.logger.Warn("time unlock promotion failed",
			zap.Int64("user_id", userID), zap.Int64("chapter_id", chapterID), zap.Error(err))
	}

	el := s.gate.IsEligibleNewRead(ctx, userID, chapterID)
	res := &ReadResult{ChapterID: chapterID, NewRead: el.Eligible, Reason: el.Reason, Detail: el.Detail}
	if !el.Eligible {
		return res, nil
	}

	now := clock.Stamp(s.clock)
	entry := model.ReadingLog{UserID: userID, ChapterID: chapterID, ReadAt: now, FirstReadAt: now}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "chapter_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"read_at"}),
	}).Create(&entry).Error
	if err != nil {
		s.logger.Error("reading log upsert failed",
			zap.Int64("user_id", userID), zap.Int64("chapter_id", chapterID), zap.Error(err))
		return nil, fmt.Errorf("reading: record read: %w", err)
	}
	res.ReadAt = &now

	if err := s.db.WithContext(ctx).Model(&model.ChapterUnlock{}).
		Where("user_id = ? AND chapter_id = ? AND status = ?", userID, chapterID, model.UnlockStatusUnlocked).
		Update("is_read", true).Error; err != nil {
		s.logger.Warn("marking unlock as read failed", zap.Int64("user_id", userID), zap.Error(err))
	}

	if s.hooks != nil {
		act := hook.NewActivity(hook.ChapterRead, userID, &chapterID)
		if err := s.hooks.Trigger(ctx, act); err != nil {
			s.logger.Warn("chapter_read hooks interrupted", zap.Int64("user_id", userID), zap.Error(err))
		}
		res.Results = act.Outputs()
	}
	return res, nil
}

// PromoteDueTimeUnlocks flips every pending time unlock whose unlock_at has
// passed. unlocked_at is set to unlock_at, the moment the chapter became free.
func (s *Service) PromoteDueTimeUnlocks(ctx context.Context) (int64, error) {
	n, err := s.promoteDue(s.db.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("reading: promote time unlocks: %w", err)
	}
	if n > 0 {
		s.logger.Info("time unlocks promoted", zap.Int64("count", n))
	}
	return n, nil
}

func (s *Service) promoteDue(q *gorm.DB) (int64, error) {
	res := q.Model(&model.ChapterUnlock{}).
		Where("unlock_method = ? AND status = ? AND unlock_at <= ?",
			model.UnlockMethodTime, model.UnlockStatusPending, clock.Stamp(s.clock)).
		Updates(map[string]interface{}{
			"status":      model.UnlockStatusUnlocked,
			"unlocked_at": gorm.Expr("unlock_at"),
		})
	return res.RowsAffected, res.Error
}
