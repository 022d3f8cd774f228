package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shi0417/kongfuworld-sub004/audit"
	mw "github.com/shi0417/kongfuworld-sub004/middleware"
	"github.com/shi0417/kongfuworld-sub004/mission"
	"go.uber.org/zap"
)

// MissionHandler serves the signed-in user's daily missions.
type MissionHandler struct {
	svc    *mission.Service
	audit  *audit.Service
	logger *zap.Logger
}

func NewMissionHandler(svc *mission.Service, auditSvc *audit.Service, logger *zap.Logger) *MissionHandler {
	if err := RegisterValidators(); err != nil {
		logger.Error("register validators", zap.Error(err))
	}
	return &MissionHandler{svc: svc, audit: auditSvc, logger: logger}
}

// List returns today's mission board, seeding it on first visit.
// GET /api/missions
func (h *MissionHandler) List(c *gin.Context) {
	view, err := h.svc.ListToday(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	ok(c, view)
}

// Completion reports whether every task of the day is done.
// GET /api/missions/completion
func (h *MissionHandler) Completion(c *gin.Context) {
	ctx, uid := c.Request.Context(), mw.GetUserID(c)
	if _, err := h.svc.EnsureTodayInitialized(ctx, uid); err != nil {
		respondErr(c, h.logger, err)
		return
	}
	res, err := h.svc.CheckCompletion(ctx, uid)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	ok(c, res)
}

type progressRequest struct {
	MissionKey    string `json:"mission_key"    binding:"required,mission_key"`
	ProgressValue int    `json:"progress_value" binding:"omitempty,min=1,max=100"`
	ChapterID     *int64 `json:"chapter_id"     binding:"omitempty,min=1"`
}

// Progress advances a mission that is not tied to an activity event, e.g.
// after a review was written. Reading missions are refused here.
// POST /api/missions/progress
func (h *MissionHandler) Progress(c *gin.Context) {
	var req progressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.ProgressValue == 0 {
		req.ProgressValue = 1
	}
	res, err := h.svc.ReportProgress(c.Request.Context(), mw.GetUserID(c), req.MissionKey, req.ProgressValue, req.ChapterID)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	ok(c, res)
}

// Claim pays out a completed mission once.
// POST /api/missions/:id/claim
func (h *MissionHandler) Claim(c *gin.Context) {
	start := time.Now()
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	res, err := h.svc.Claim(c.Request.Context(), mw.GetUserID(c), id)
	record(h.audit, c, "mission.claim", start, gin.H{"mission_id": id}, res, err)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	ok(c, res)
}
