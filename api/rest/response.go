package rest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shi0417/kongfuworld-sub004/audit"
	"github.com/shi0417/kongfuworld-sub004/checkin"
	"github.com/shi0417/kongfuworld-sub004/ledger"
	mw "github.com/shi0417/kongfuworld-sub004/middleware"
	"github.com/shi0417/kongfuworld-sub004/mission"
	"go.uber.org/zap"
)

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": msg})
}

// statusOf maps service errors onto HTTP status codes; anything unknown is a 500.
func statusOf(err error) int {
	switch {
	case errors.Is(err, mission.ErrUserNotFound),
		errors.Is(err, mission.ErrMissionNotFound),
		errors.Is(err, checkin.ErrUserNotFound),
		errors.Is(err, ledger.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, mission.ErrNotClaimable),
		errors.Is(err, mission.ErrDuplicateMissionKey),
		errors.Is(err, mission.ErrEventDriven),
		errors.Is(err, checkin.ErrAlreadyCheckedIn):
		return http.StatusConflict
	case errors.Is(err, mission.ErrBusy):
		return http.StatusServiceUnavailable
	case mission.IsPrecondition(err),
		errors.Is(err, mission.ErrInvalidMission),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondErr writes err as a failure body. Internal errors are logged and
// never echoed to the client.
func respondErr(c *gin.Context, logger *zap.Logger, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("trace_id", mw.GetTraceID(c)),
			zap.Int64("user_id", mw.GetUserID(c)),
			zap.Error(err))
		fail(c, status, "internal server error")
		return
	}
	fail(c, status, err.Error())
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}

// record writes an audit entry for a reward-bearing request. svc may be nil.
func record(svc *audit.Service, c *gin.Context, action string, start time.Time, req, resp interface{}, err error) {
	if svc == nil {
		return
	}
	entry := audit.AuditEntry{
		TraceID:    mw.GetTraceID(c),
		Action:     action,
		Request:    req,
		Response:   resp,
		IP:         c.ClientIP(),
		DurationMs: int(time.Since(start).Milliseconds()),
	}
	if uid := mw.GetUserID(c); uid != 0 {
		entry.UserID = &uid
	}
	if err != nil {
		entry.Error = err.Error()
	}
	svc.Log(entry)
}
