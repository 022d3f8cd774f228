package mission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/shi0417/kongfuworld-sub004/cache"
	dbadapter "github.com/shi0417/kongfuworld-sub004/db"
	"github.com/shi0417/kongfuworld-sub004/hook"
	"github.com/shi0417/kongfuworld-sub004/model"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const catalogCacheKey = "mission:catalog:daily"

var (
	ErrInvalidMission      = errors.New("mission: invalid mission definition")
	ErrDuplicateMissionKey = errors.New("mission: mission key already exists")
)

// Catalog serves mission definitions. Active daily definitions are cached
// (in Redis when configured) and concurrent reloads collapse into one query.
type Catalog struct {
	db     *gorm.DB
	cache  cache.Cache
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger
}

// NewCatalog creates a Catalog. A nil cache disables caching.
func NewCatalog(db *gorm.DB, c cache.Cache, ttl time.Duration, logger *zap.Logger) *Catalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Catalog{db: db, cache: c, ttl: ttl, logger: logger}
}

// ActiveDaily returns every active daily definition ordered by id.
func (c *Catalog) ActiveDaily(ctx context.Context) ([]model.MissionConfig, error) {
	if c.cache != nil {
		if raw, err := c.cache.Get(ctx, catalogCacheKey); err == nil {
			var defs []model.MissionConfig
			if err := json.Unmarshal([]byte(raw), &defs); err == nil {
				return defs, nil
			}
			c.logger.Warn("discarding unreadable catalog cache entry")
		}
	}

	v, err, _ := c.group.Do(catalogCacheKey, func() (interface{}, error) {
		defs, err := NewStore(c.db.WithContext(ctx)).ActiveMissions(model.MissionTypeDaily)
		if err != nil {
			return nil, fmt.Errorf("mission: load catalog: %w", err)
		}
		if c.cache != nil {
			if raw, err := json.Marshal(defs); err == nil {
				if err := c.cache.Set(ctx, catalogCacheKey, string(raw), c.ttl); err != nil {
					c.logger.Warn("catalog cache write failed", zap.Error(err))
				}
			}
		}
		return defs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.MissionConfig), nil
}

// ActiveForEvent returns the active daily definitions subscribed to event.
func (c *Catalog) ActiveForEvent(ctx context.Context, event string) ([]model.MissionConfig, error) {
	defs, err := c.ActiveDaily(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.MissionConfig
	for _, d := range defs {
		if d.Event == event {
			out = append(out, d)
		}
	}
	return out, nil
}

// Invalidate drops the cached catalog so the next read reloads it.
func (c *Catalog) Invalidate(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Del(ctx, catalogCacheKey)
}

// List returns every definition, active or not.
func (c *Catalog) List(ctx context.Context) ([]model.MissionConfig, error) {
	var defs []model.MissionConfig
	err := c.db.WithContext(ctx).Order("id ASC").Find(&defs).Error
	return defs, err
}

// Definition is the admin input for a new mission.
type Definition struct {
	MissionKey  string
	Title       string
	Description string
	TargetValue int
	RewardKeys  int
	RewardKarma int
	MissionType string
	Event       string
	IsActive    bool
}

// Patch updates selected fields; nil pointers are left unchanged.
type Patch struct {
	Title       *string
	Description *string
	TargetValue *int
	RewardKeys  *int
	RewardKarma *int
	Event       *string
	IsActive    *bool
}

// KeyFromTitle derives a mission key such as "read_5_chapters" from a title.
func KeyFromTitle(title string) string {
	return strings.ReplaceAll(slug.Make(title), "-", "_")
}

// Create adds a definition. An empty key is derived from the title.
func (c *Catalog) Create(ctx context.Context, d Definition) (*model.MissionConfig, error) {
	if d.MissionKey == "" {
		d.MissionKey = KeyFromTitle(d.Title)
	}
	if d.MissionType == "" {
		d.MissionType = model.MissionTypeDaily
	}
	if d.MissionKey == "" || strings.TrimSpace(d.Title) == "" || d.TargetValue < 1 || d.RewardKeys < 0 || d.RewardKarma < 0 {
		return nil, ErrInvalidMission
	}
	m := &model.MissionConfig{
		MissionKey:  d.MissionKey,
		Title:       d.Title,
		Description: d.Description,
		TargetValue: d.TargetValue,
		RewardKeys:  d.RewardKeys,
		RewardKarma: d.RewardKarma,
		MissionType: d.MissionType,
		ResetType:   d.MissionType,
		Event:       d.Event,
		IsActive:    d.IsActive,
	}
	if err := c.db.WithContext(ctx).Create(m).Error; err != nil {
		if dbadapter.IsUniqueViolation(err) {
			return nil, ErrDuplicateMissionKey
		}
		return nil, err
	}
	c.afterWrite(ctx)
	return m, nil
}

// Update applies p to definition id. Completion logs keep the reward values
// they were written with.
func (c *Catalog) Update(ctx context.Context, id int64, p Patch) (*model.MissionConfig, error) {
	updates := map[string]interface{}{}
	if p.Title != nil {
		if strings.TrimSpace(*p.Title) == "" {
			return nil, ErrInvalidMission
		}
		updates["title"] = *p.Title
	}
	if p.Description != nil {
		updates["description"] = *p.Description
	}
	if p.TargetValue != nil {
		if *p.TargetValue < 1 {
			return nil, ErrInvalidMission
		}
		updates["target_value"] = *p.TargetValue
	}
	if p.RewardKeys != nil {
		if *p.RewardKeys < 0 {
			return nil, ErrInvalidMission
		}
		updates["reward_keys"] = *p.RewardKeys
	}
	if p.RewardKarma != nil {
		if *p.RewardKarma < 0 {
			return nil, ErrInvalidMission
		}
		updates["reward_karma"] = *p.RewardKarma
	}
	if p.Event != nil {
		updates["event"] = *p.Event
	}
	if p.IsActive != nil {
		updates["is_active"] = *p.IsActive
	}

	store := NewStore(c.db.WithContext(ctx))
	m, err := store.MissionByID(id)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return m, nil
	}
	if err := c.db.WithContext(ctx).Model(m).Updates(updates).Error; err != nil {
		return nil, err
	}
	c.afterWrite(ctx)
	return store.MissionByID(id)
}

func (c *Catalog) afterWrite(ctx context.Context) {
	if err := c.Invalidate(ctx); err != nil {
		c.logger.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}

// DefaultDefinitions is the catalog a fresh installation starts with.
var DefaultDefinitions = []model.MissionConfig{
	{MissionKey: "read_2_chapters", Title: "Read 2 new chapters", TargetValue: 2, RewardKeys: 2, Event: hook.ChapterRead},
	{MissionKey: "read_5_chapters", Title: "Read 5 new chapters", TargetValue: 5, RewardKeys: 2, Event: hook.ChapterRead},
	{MissionKey: "read_10_chapters", Title: "Read 10 new chapters", TargetValue: 10, RewardKeys: 4, Event: hook.ChapterRead},
	{MissionKey: "write_review", Title: "Write a review", TargetValue: 1, RewardKeys: 1},
	{MissionKey: "daily_checkin", Title: "Daily check-in", TargetValue: 1, RewardKeys: 3, Event: hook.DailyCheckin},
}

// SeedDefaults inserts DefaultDefinitions whose keys are not present yet.
func (c *Catalog) SeedDefaults(ctx context.Context) (int64, error) {
	rows := make([]model.MissionConfig, len(DefaultDefinitions))
	copy(rows, DefaultDefinitions)
	for i := range rows {
		rows[i].MissionType = model.MissionTypeDaily
		rows[i].ResetType = model.MissionTypeDaily
		rows[i].IsActive = true
	}
	res := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mission_key"}},
		DoNothing: true,
	}).Create(&rows)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		c.afterWrite(ctx)
	}
	return res.RowsAffected, nil
}
