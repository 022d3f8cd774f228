// Package reading decides which chapter views count as fresh reads and
// forwards those reads to the activity hooks.
package reading

import (
	"context"
	"time"

	"github.com/shi0417/kongfuworld-sub004/clock"
	"github.com/shi0417/kongfuworld-sub004/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// Gate verdict reasons.
const (
	ReasonFreshRead          = "unlocked today and not read today"
	ReasonReadToday          = "already read today"
	ReasonNotUnlocked        = "chapter not unlocked"
	ReasonNotUnlockedToday   = "not unlocked today"
	ReasonPaidUnlockExcluded = "paid unlocks do not count toward missions"
	ReasonCheckFailed        = "eligibility check failed"
)

var tracer = otel.Tracer("github.com/shi0417/kongfuworld-sub004/reading")

// Eligibility is the gate's verdict for one (user, chapter) read.
type Eligibility struct {
	Eligible bool                   `json:"eligible"`
	Reason   string                 `json:"reason"`
	Detail   map[string]interface{} `json:"detail"`
}

// Gate evaluates, in order: not read today, unlocked, unlocked today.
type Gate struct {
	db        *gorm.DB
	clock     clock.Clock
	countPaid bool
}

// NewGate creates a Gate. With countPaidUnlocks false, key and karma unlocks
// made today are rejected as well.
func NewGate(db *gorm.DB, clk clock.Clock, countPaidUnlocks bool) *Gate {
	return &Gate{db: db, clock: clk, countPaid: countPaidUnlocks}
}

// IsEligibleNewRead never returns an error: a failed lookup is a rejection
// carrying the error text in Detail.
func (g *Gate) IsEligibleNewRead(ctx context.Context, userID, chapterID int64) Eligibility {
	ctx, span := tracer.Start(ctx, "reading.IsEligibleNewRead")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID), attribute.Int64("chapter.id", chapterID))

	today := clock.Today(g.clock)
	detail := map[string]interface{}{"today": today, "chapter_id": chapterID}
	reject := func(reason string) Eligibility {
		span.SetAttributes(attribute.String("reading.reason", reason))
		return Eligibility{Reason: reason, Detail: detail}
	}
	fail := func(err error) Eligibility {
		span.RecordError(err)
		detail["error"] = err.Error()
		return reject(ReasonCheckFailed)
	}
	db := g.db.WithContext(ctx)

	var logs []model.ReadingLog
	if err := db.Where("user_id = ? AND chapter_id = ?", userID, chapterID).Limit(1).Find(&logs).Error; err != nil {
		return fail(err)
	}
	if len(logs) > 0 {
		lastRead := clock.DateOf(g.clock, logs[0].ReadAt)
		detail["last_read_date"] = lastRead
		if lastRead == today {
			return reject(ReasonReadToday)
		}
	}

	now := clock.Stamp(g.clock)
	var unlocks []model.ChapterUnlock
	err := db.Where("user_id = ? AND chapter_id = ?", userID, chapterID).
		Where(g.db.Where("status = ?", model.UnlockStatusUnlocked).
			Or("status = ? AND unlock_method = ? AND unlock_at <= ?", model.UnlockStatusPending, model.UnlockMethodTime, now)).
		Find(&unlocks).Error
	if err != nil {
		return fail(err)
	}
	latest, at := latestUnlock(unlocks)
	if latest == nil {
		return reject(ReasonNotUnlocked)
	}

	unlockDay := clock.DateOf(g.clock, at)
	detail["unlock_method"] = latest.UnlockMethod
	detail["unlock_date"] = unlockDay
	if unlockDay != today {
		return reject(ReasonNotUnlockedToday)
	}
	if !g.countPaid && latest.Paid() {
		return reject(ReasonPaidUnlockExcluded)
	}
	return Eligibility{Eligible: true, Reason: ReasonFreshRead, Detail: detail}
}

// latestUnlock picks the grant that became effective most recently.
func latestUnlock(unlocks []model.ChapterUnlock) (*model.ChapterUnlock, time.Time) {
	var best *model.ChapterUnlock
	var bestAt time.Time
	for i := range unlocks {
		at := effectiveAt(&unlocks[i])
		if best == nil || at.After(bestAt) {
			best, bestAt = &unlocks[i], at
		}
	}
	return best, bestAt
}

// effectiveAt is when the grant made the chapter readable.
func effectiveAt(u *model.ChapterUnlock) time.Time {
	switch {
	case u.UnlockedAt != nil:
		return *u.UnlockedAt
	case u.UnlockAt != nil:
		return *u.UnlockAt
	default:
		return u.CreatedAt
	}
}
