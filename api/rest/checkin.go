package rest

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shi0417/kongfuworld-sub004/audit"
	"github.com/shi0417/kongfuworld-sub004/checkin"
	mw "github.com/shi0417/kongfuworld-sub004/middleware"
	"go.uber.org/zap"
)

type CheckinHandler struct {
	svc    *checkin.Service
	audit  *audit.Service
	logger *zap.Logger
}

func NewCheckinHandler(svc *checkin.Service, auditSvc *audit.Service, logger *zap.Logger) *CheckinHandler {
	return &CheckinHandler{svc: svc, audit: auditSvc, logger: logger}
}

// Status GET /api/checkin
func (h *CheckinHandler) Status(c *gin.Context) {
	st, err := h.svc.Status(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	ok(c, st)
}

// CheckIn POST /api/checkin
func (h *CheckinHandler) CheckIn(c *gin.Context) {
	start := time.Now()
	res, err := h.svc.CheckIn(c.Request.Context(), mw.GetUserID(c))
	var resp interface{}
	if res != nil {
		resp = gin.H{"checkin": res.Checkin, "balance": res.Balance}
	}
	record(h.audit, c, "checkin", start, nil, resp, err)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	ok(c, res)
}

// History GET /api/checkin/history?limit=
func (h *CheckinHandler) History(c *gin.Context) {
	rows, err := h.svc.History(c.Request.Context(), mw.GetUserID(c), queryInt(c, "limit", 30))
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	ok(c, rows)
}
