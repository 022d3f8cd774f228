package rest

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	mw "github.com/shi0417/kongfuworld-sub004/middleware"
	"github.com/shi0417/kongfuworld-sub004/mission"
	"github.com/shi0417/kongfuworld-sub004/reading"
	"github.com/shi0417/kongfuworld-sub004/scheduler"
	"go.uber.org/zap"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	catalog *mission.Catalog
	sched   *scheduler.Scheduler
	reading *reading.Service
	logger  *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(catalog *mission.Catalog, sched *scheduler.Scheduler, readingSvc *reading.Service, logger *zap.Logger) *AdminHandler {
	if err := RegisterValidators(); err != nil {
		logger.Error("register validators", zap.Error(err))
	}
	return &AdminHandler{catalog: catalog, sched: sched, reading: readingSvc, logger: logger}
}

// ListMissions GET /api/admin/missions
func (h *AdminHandler) ListMissions(c *gin.Context) {
	defs, err := h.catalog.List(c.Request.Context())
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	ok(c, defs)
}

type createMissionRequest struct {
	MissionKey  string `json:"mission_key"  binding:"omitempty,mission_key"`
	Title       string `json:"title"        binding:"required,max=255"`
	Description string `json:"description"  binding:"max=1000"`
	TargetValue int    `json:"target_value" binding:"required,min=1"`
	RewardKeys  int    `json:"reward_keys"  binding:"min=0"`
	RewardKarma int    `json:"reward_karma" binding:"min=0"`
	MissionType string `json:"mission_type" binding:"omitempty,oneof=daily weekly monthly"`
	Event       string `json:"event"        binding:"omitempty,oneof=chapter_read daily_checkin"`
	IsActive    *bool  `json:"is_active"`
}

// CreateMission POST /api/admin/missions
func (h *AdminHandler) CreateMission(c *gin.Context) {
	var req createMissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	active := req.IsActive == nil || *req.IsActive
	m, err := h.catalog.Create(c.Request.Context(), mission.Definition{
		MissionKey:  req.MissionKey,
		Title:       req.Title,
		Description: req.Description,
		TargetValue: req.TargetValue,
		RewardKeys:  req.RewardKeys,
		RewardKarma: req.RewardKarma,
		MissionType: req.MissionType,
		Event:       req.Event,
		IsActive:    active,
	})
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	h.logger.Info("mission created", zap.String("mission_key", m.MissionKey), zap.String("trace_id", mw.GetTraceID(c)))
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": m})
}

type updateMissionRequest struct {
	Title       *string `json:"title"        binding:"omitempty,max=255"`
	Description *string `json:"description"  binding:"omitempty,max=1000"`
	TargetValue *int    `json:"target_value" binding:"omitempty,min=1"`
	RewardKeys  *int    `json:"reward_keys"  binding:"omitempty,min=0"`
	RewardKarma *int    `json:"reward_karma" binding:"omitempty,min=0"`
	Event       *string `json:"event"        binding:"omitempty,oneof=chapter_read daily_checkin none"`
	IsActive    *bool   `json:"is_active"`
}

// UpdateMission PUT /api/admin/missions/:id
// The event value "none" detaches a mission from activity events.
func (h *AdminHandler) UpdateMission(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req updateMissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.Event != nil && *req.Event == "none" {
		empty := ""
		req.Event = &empty
	}
	m, err := h.catalog.Update(c.Request.Context(), id, mission.Patch{
		Title:       req.Title,
		Description: req.Description,
		TargetValue: req.TargetValue,
		RewardKeys:  req.RewardKeys,
		RewardKarma: req.RewardKarma,
		Event:       req.Event,
		IsActive:    req.IsActive,
	})
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	ok(c, m)
}

// ListSchedulerTasks returns all registered background jobs.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	ok(c, gin.H{"tasks": h.sched.List()})
}

// SweepUnlocks promotes every due time unlock now.
// POST /api/admin/unlocks/sweep
func (h *AdminHandler) SweepUnlocks(c *gin.Context) {
	n, err := h.reading.PromoteDueTimeUnlocks(c.Request.Context())
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	ok(c, gin.H{"promoted": n})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// If adminKey is empty all admin endpoints are disabled (503). Set a
// non-empty server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			fail(c, http.StatusServiceUnavailable, "admin endpoints disabled: set server.admin_key in config")
			return
		}
		if subtle.ConstantTimeCompare([]byte(c.GetHeader(mw.AdminKeyHeader)), []byte(adminKey)) != 1 {
			fail(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		c.Next()
	}
}
