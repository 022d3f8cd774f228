package mission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shi0417/kongfuworld-sub004/hook"
	"github.com/shi0417/kongfuworld-sub004/model"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OutputKey is the hook.Activity output under which OnEvent stores its *EventOutcome.
const OutputKey = "missions"

// OnEvent advances every active daily mission subscribed to event. The
// initialize, update and check steps run under a per-user lock so concurrent
// activity for one user is applied one event at a time.
func (svc *Service) OnEvent(ctx context.Context, userID int64, event string, chapterID *int64) (out *EventOutcome, err error) {
	ctx, span := startSpan(ctx, "mission.OnEvent", userID)
	span.SetAttributes(attribute.String("mission.event", event))
	defer func() { endSpan(span, err) }()

	unlock, err := svc.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	init, err := svc.EnsureTodayInitialized(ctx, userID)
	if err != nil {
		return nil, err
	}
	defs, err := svc.catalog.ActiveForEvent(ctx, event)
	if err != nil {
		return nil, err
	}

	out = &EventOutcome{Event: event, Initialized: init.Initialized, Updates: make([]MissionUpdate, 0, len(defs))}
	for _, def := range defs {
		upd := MissionUpdate{MissionKey: def.MissionKey}
		res, err := svc.UpdateProgress(ctx, userID, def.MissionKey, 1, chapterID)
		if err != nil {
			upd.Error = err.Error()
		} else {
			upd.Result = res
		}
		out.Updates = append(out.Updates, upd)
	}

	comp, err := svc.CheckCompletion(ctx, userID)
	if err != nil {
		svc.logger.Warn("completion check after event failed",
			zap.Int64("user_id", userID), zap.String("event", event), zap.Error(err))
		return out, nil
	}
	out.Completion = comp
	out.JustCompleted = comp.Completed && init.Status != model.MissionCompleted
	return out, nil
}

// ReportProgress advances a mission that has no activity event, such as
// write_review. Missions bound to an event are refused with ErrEventDriven:
// chapter reads must pass the reading gate. Runs under the same per-user lock
// as OnEvent.
func (svc *Service) ReportProgress(ctx context.Context, userID int64, missionKey string, increment int, chapterID *int64) (res *ProgressResult, err error) {
	ctx, span := startSpan(ctx, "mission.ReportProgress", userID)
	span.SetAttributes(attribute.String("mission.key", missionKey))
	defer func() { endSpan(span, err) }()

	def, err := svc.store.WithContext(ctx).MissionByKey(missionKey)
	if err != nil {
		return nil, err
	}
	if def.Event != "" {
		return nil, ErrEventDriven
	}

	unlock, err := svc.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := svc.EnsureTodayInitialized(ctx, userID); err != nil {
		return nil, err
	}
	return svc.UpdateProgress(ctx, userID, missionKey, increment, chapterID)
}

func (svc *Service) lock(ctx context.Context, userID int64) (func(), error) {
	if svc.locker == nil {
		return func() {}, nil
	}
	key := fmt.Sprintf("mission:lock:%d", userID)
	token := uuid.NewString()
	deadline := time.Now().Add(svc.lockWait)
	backoff := 10 * time.Millisecond

	for {
		ok, err := svc.locker.SetNX(ctx, key, token, svc.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("mission: acquire lock: %w", err)
		}
		if ok {
			return func() {
				if _, err := svc.locker.DelIfEqual(context.WithoutCancel(ctx), key, token); err != nil {
					svc.logger.Warn("mission lock release failed", zap.Int64("user_id", userID), zap.Error(err))
				}
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 200*time.Millisecond {
			backoff *= 2
		}
	}
}

// Subscribe binds the evaluator to every activity event of hc.
func (svc *Service) Subscribe(hc *hook.Center) {
	for _, ev := range hook.Events {
		hc.Register(ev, 10, "mission", func(ctx context.Context, act *hook.Activity) error {
			out, err := svc.OnEvent(ctx, act.UserID, act.Event, act.ChapterID)
			if err != nil {
				if !errors.Is(err, ErrNoMissionsConfigured) {
					svc.logger.Warn("mission event handling failed",
						zap.Int64("user_id", act.UserID), zap.String("event", act.Event), zap.Error(err))
				}
				act.Put(OutputKey+"_error", err.Error())
				return nil
			}
			act.Put(OutputKey, out)
			return nil
		})
	}
}
