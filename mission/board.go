package mission

import (
	"context"

	"github.com/shi0417/kongfuworld-sub004/clock"
	"github.com/shi0417/kongfuworld-sub004/ledger"
	"github.com/shi0417/kongfuworld-sub004/model"
	"go.uber.org/zap"
)

// ListToday initializes the user's day when needed and returns every active
// daily mission with its progress.
func (svc *Service) ListToday(ctx context.Context, userID int64) (*DailyView, error) {
	init, err := svc.EnsureTodayInitialized(ctx, userID)
	if err != nil {
		return nil, err
	}
	defs, err := svc.catalog.ActiveDaily(ctx)
	if err != nil {
		return nil, err
	}
	day := clock.Today(svc.clock)
	tasks, err := svc.store.WithContext(ctx).TodayTasks(userID, day)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]TaskProgress, len(tasks))
	for _, t := range tasks {
		byID[t.MissionID] = t
	}

	view := &DailyView{Date: day, Status: init.Status, Missions: make([]TaskProgress, 0, len(defs))}
	for _, d := range defs {
		t, ok := byID[d.ID]
		if !ok {
			// Added to the catalog after today's seeding; it starts tomorrow.
			t = TaskProgress{
				MissionID: d.ID, MissionKey: d.MissionKey, Title: d.Title, Description: d.Description,
				Event: d.Event, Target: d.TargetValue, RewardKeys: d.RewardKeys, RewardKarma: d.RewardKarma,
			}
		} else {
			view.TotalCount++
			if t.Completed {
				view.CompletedCount++
			}
		}
		view.Missions = append(view.Missions, t)
	}

	comp, err := svc.CheckCompletion(ctx, userID)
	if err != nil {
		return nil, err
	}
	view.AllTasksCompleted = comp.Completed
	if comp.Completed {
		view.Status = model.MissionCompleted
	}
	return view, nil
}

// Claim pays out a completed mission of today once.
func (svc *Service) Claim(ctx context.Context, userID, missionID int64) (*ClaimResult, error) {
	ctx, span := startSpan(ctx, "mission.Claim", userID)
	var err error
	defer func() { endSpan(span, err) }()

	day := clock.Today(svc.clock)
	now := clock.Stamp(svc.clock)
	res := &ClaimResult{MissionID: missionID}

	err = svc.store.WithContext(ctx).Tx(func(tx *Store) error {
		def, err := tx.MissionByID(missionID)
		if err != nil {
			return err
		}
		ok, err := tx.MarkClaimed(userID, missionID, day, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotClaimable
		}
		if def.RewardKeys > 0 {
			ref := def.ID
			if _, err := svc.ledger.Credit(tx.DB(), ledger.Entry{
				UserID:        userID,
				Type:          model.KeyTxMission,
				Amount:        int64(def.RewardKeys),
				ReferenceID:   &ref,
				ReferenceType: "mission",
				Description:   "Mission reward: " + def.Title,
			}); err != nil {
				return err
			}
		}
		if def.RewardKarma > 0 {
			if err := tx.AddKarma(userID, def.RewardKarma); err != nil {
				return err
			}
		}
		if err := tx.StampLogsClaimed(userID, missionID, day, now); err != nil {
			return err
		}
		res.MissionKey = def.MissionKey
		res.RewardKeys = def.RewardKeys
		res.RewardKarma = def.RewardKarma
		res.Balance, res.Karma, err = tx.Balances(userID)
		return err
	})
	if err != nil {
		if !IsPrecondition(err) {
			svc.logger.Error("mission claim failed",
				zap.Int64("user_id", userID), zap.Int64("mission_id", missionID), zap.Error(err))
		}
		return nil, err
	}
	svc.logger.Info("mission reward claimed",
		zap.Int64("user_id", userID), zap.String("mission_key", res.MissionKey),
		zap.Int("keys", res.RewardKeys), zap.Int("karma", res.RewardKarma))
	svc.publish(ctx, userID, "mission_claimed", res)
	return res, nil
}
