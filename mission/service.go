// Package mission implements the daily mission engine: per-user task sets
// seeded once per day, clamped progress counters, the all-complete flag and
// reward claims.
package mission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shi0417/kongfuworld-sub004/clock"
	"github.com/shi0417/kongfuworld-sub004/ledger"
	"github.com/shi0417/kongfuworld-sub004/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrMissionNotFound      = errors.New("mission not found or inactive")
	ErrNoMissionsConfigured = errors.New("no missions configured")
	ErrNotInMissionMode     = errors.New("not in mission mode or already completed")
	ErrNoProgressToday      = errors.New("no progress record for today")
	ErrNoTasksToday         = errors.New("no tasks today")
	ErrInvalidIncrement     = errors.New("increment must be at least 1")
	ErrNotClaimable         = errors.New("mission not completed or already claimed")
	ErrBusy                 = errors.New("missions are being updated, retry shortly")
	ErrEventDriven          = errors.New("mission advances only through its activity event")
)

// IsPrecondition reports whether err is a business-rule rejection rather than
// a persistence failure.
func IsPrecondition(err error) bool {
	for _, e := range []error{
		ErrUserNotFound, ErrMissionNotFound, ErrNoMissionsConfigured, ErrNotInMissionMode,
		ErrNoProgressToday, ErrNoTasksToday, ErrInvalidIncrement, ErrNotClaimable, ErrBusy,
		ErrEventDriven,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

var tracer = otel.Tracer("github.com/shi0417/kongfuworld-sub004/mission")

// Publisher delivers mission events to a user's stream.
type Publisher interface {
	Publish(ctx context.Context, channel, message string) error
}

// Locker is the subset of cache.Cache used for the per-user event lock.
type Locker interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	DelIfEqual(ctx context.Context, key, value string) (bool, error)
}

// Service evaluates and mutates daily missions.
type Service struct {
	store   *Store
	catalog *Catalog
	ledger  *ledger.Ledger
	clock   clock.Clock
	logger  *zap.Logger

	locker   Locker
	lockTTL  time.Duration
	lockWait time.Duration
	pub      Publisher
}

// NewService creates a mission Service.
func NewService(db *gorm.DB, catalog *Catalog, led *ledger.Ledger, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{
		store:    NewStore(db),
		catalog:  catalog,
		ledger:   led,
		clock:    clk,
		logger:   logger,
		lockTTL:  10 * time.Second,
		lockWait: 3 * time.Second,
	}
}

// WithLocker serialises OnEvent and ReportProgress per user through l.
func (svc *Service) WithLocker(l Locker, ttl, wait time.Duration) *Service {
	svc.locker = l
	if ttl > 0 {
		svc.lockTTL = ttl
	}
	if wait > 0 {
		svc.lockWait = wait
	}
	return svc
}

// WithPublisher streams progress and completion events through p.
func (svc *Service) WithPublisher(p Publisher) *Service {
	svc.pub = p
	return svc
}

func (svc *Service) Catalog() *Catalog { return svc.catalog }

func startSpan(ctx context.Context, name string, userID int64) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.Int64("user.id", userID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil && !IsPrecondition(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// EnsureTodayInitialized seeds today's task set unless it already exists.
// A status dated today with no progress rows is treated as corrupt and re-seeded.
func (svc *Service) EnsureTodayInitialized(ctx context.Context, userID int64) (res *InitResult, err error) {
	ctx, span := startSpan(ctx, "mission.EnsureTodayInitialized", userID)
	defer func() { endSpan(span, err) }()

	day := clock.Today(svc.clock)
	store := svc.store.WithContext(ctx)

	status, err := store.Status(userID)
	if err != nil {
		return nil, err
	}
	if status.Date == day {
		n, err := store.CountProgress(userID, day)
		if err != nil {
			return nil, fmt.Errorf("mission: count progress: %w", err)
		}
		if n > 0 {
			return &InitResult{Status: status.State}, nil
		}
		svc.logger.Warn("mission status dated today without progress rows, re-initializing",
			zap.Int64("user_id", userID), zap.String("day", day))
	}

	defs, err := svc.catalog.ActiveDaily(ctx)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, ErrNoMissionsConfigured
	}

	res = &InitResult{Status: model.MissionUncompleted, Missions: defs}
	err = store.Tx(func(tx *Store) error {
		seeded, err := tx.SeedProgress(userID, defs, day, clock.Stamp(svc.clock))
		if err != nil {
			return fmt.Errorf("mission: seed progress: %w", err)
		}
		if seeded == 0 && status.Date != day {
			// A concurrent initializer won the race; report its status.
			cur, err := tx.Status(userID)
			if err != nil {
				return err
			}
			if cur.Date == day {
				res.Status = cur.State
				res.Missions = nil
				return nil
			}
		}
		res.Initialized = true
		return tx.SetStatus(userID, model.MissionStatus{Date: day, State: model.MissionUncompleted})
	})
	if err != nil {
		return nil, err
	}
	if res.Initialized {
		svc.logger.Info("daily missions initialized",
			zap.Int64("user_id", userID), zap.String("day", day), zap.Int("missions", len(defs)))
	}
	return res, nil
}

// UpdateProgress adds increment to one of today's missions. chapterID, when
// given, is recorded in the completion log at most once per mission and day.
func (svc *Service) UpdateProgress(ctx context.Context, userID int64, missionKey string, increment int, chapterID *int64) (res *ProgressResult, err error) {
	ctx, span := startSpan(ctx, "mission.UpdateProgress", userID)
	span.SetAttributes(attribute.String("mission.key", missionKey))
	defer func() { endSpan(span, err) }()

	if increment < 1 {
		return nil, ErrInvalidIncrement
	}
	day := clock.Today(svc.clock)
	now := clock.Stamp(svc.clock)

	var def *model.MissionConfig
	var row *model.UserMissionProgress
	err = svc.store.WithContext(ctx).Tx(func(tx *Store) error {
		status, err := tx.Status(userID)
		if err != nil {
			return err
		}
		if !status.ActiveOn(day) {
			return ErrNotInMissionMode
		}
		if def, err = tx.MissionByKey(missionKey); err != nil {
			return err
		}
		p, err := tx.Progress(userID, def.ID, day)
		if err != nil {
			return err
		}
		row, err = tx.Advance(p.ID, increment, def.TargetValue, now)
		return err
	})
	if err != nil {
		if !IsPrecondition(err) {
			svc.logger.Error("mission progress update failed",
				zap.Int64("user_id", userID), zap.String("mission_key", missionKey), zap.Error(err))
			err = fmt.Errorf("mission: update progress: %w", err)
		}
		return nil, err
	}

	svc.appendLog(ctx, userID, def, increment, chapterID, day, now)

	res = &ProgressResult{
		MissionKey: def.MissionKey,
		Progress:   row.CurrentProgress,
		Target:     def.TargetValue,
		Completed:  row.IsCompleted,
		Percentage: Percentage(row.CurrentProgress, def.TargetValue),
	}
	comp, cerr := svc.CheckCompletion(ctx, userID)
	if cerr != nil {
		svc.logger.Warn("completion check after progress failed",
			zap.Int64("user_id", userID), zap.Error(cerr))
	} else {
		res.AllTasksCompleted = comp.Completed
	}
	svc.publish(ctx, userID, "mission_progress", res)
	return res, nil
}

// appendLog writes the completion log row outside the progress transaction.
// Failures here never undo progress.
func (svc *Service) appendLog(ctx context.Context, userID int64, def *model.MissionConfig, increment int, chapterID *int64, day string, now time.Time) {
	store := svc.store.WithContext(ctx)
	if chapterID != nil {
		exists, err := store.HasChapterLog(userID, def.ID, *chapterID, day)
		if err != nil {
			svc.logger.Warn("completion log dedup check failed, skipping log",
				zap.Int64("user_id", userID), zap.String("mission_key", def.MissionKey), zap.Error(err))
			return
		}
		if exists {
			return
		}
	}
	entry := &model.MissionCompletionLog{
		UserID:        userID,
		MissionID:     def.ID,
		ChapterID:     chapterID,
		LogDate:       day,
		ProgressValue: increment,
		RewardKeys:    def.RewardKeys,
		RewardKarma:   def.RewardKarma,
		CompletedAt:   now,
	}
	if _, err := store.AppendLog(entry); err != nil {
		svc.logger.Warn("completion log insert failed",
			zap.Int64("user_id", userID), zap.String("mission_key", def.MissionKey), zap.Error(err))
	}
}

// CheckCompletion reports whether every task of today is complete and flips
// the user's status to completed the first time that holds.
func (svc *Service) CheckCompletion(ctx context.Context, userID int64) (res *CompletionResult, err error) {
	ctx, span := startSpan(ctx, "mission.CheckCompletion", userID)
	defer func() { endSpan(span, err) }()

	day := clock.Today(svc.clock)
	flipped := false
	err = svc.store.WithContext(ctx).Tx(func(tx *Store) error {
		status, err := tx.Status(userID)
		if err != nil {
			return err
		}
		if status.CompletedOn(day) {
			res = &CompletionResult{Completed: true}
			return nil
		}
		tasks, err := tx.TodayTasks(userID, day)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			return ErrNoTasksToday
		}
		done := 0
		for _, t := range tasks {
			if t.Completed {
				done++
			}
		}
		res = &CompletionResult{CompletedCount: done, TotalCount: len(tasks)}
		if done < len(tasks) {
			return nil
		}
		if err := tx.SetStatus(userID, model.MissionStatus{Date: day, State: model.MissionCompleted}); err != nil {
			return err
		}
		res.Completed = true
		res.Tasks = tasks
		flipped = true
		return nil
	})
	if err != nil {
		if !IsPrecondition(err) {
			svc.logger.Error("mission completion check failed", zap.Int64("user_id", userID), zap.Error(err))
			err = fmt.Errorf("mission: check completion: %w", err)
		}
		return nil, err
	}
	if flipped {
		svc.logger.Info("all daily missions completed", zap.Int64("user_id", userID), zap.String("day", day))
		svc.publish(ctx, userID, "missions_completed", res)
	}
	return res, nil
}

// Channel is the pubsub channel carrying a user's mission events.
func Channel(userID int64) string {
	return fmt.Sprintf("missions:%d", userID)
}

// Event is the message published on Channel.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func (svc *Service) publish(ctx context.Context, userID int64, typ string, data interface{}) {
	if svc.pub == nil {
		return
	}
	raw, err := json.Marshal(Event{Type: typ, Data: data})
	if err != nil {
		return
	}
	if err := svc.pub.Publish(ctx, Channel(userID), string(raw)); err != nil {
		svc.logger.Warn("mission event publish failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}
