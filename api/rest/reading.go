package rest

import (
	"github.com/gin-gonic/gin"
	mw "github.com/shi0417/kongfuworld-sub004/middleware"
	"github.com/shi0417/kongfuworld-sub004/reading"
	"go.uber.org/zap"
)

type ReadingHandler struct {
	svc    *reading.Service
	logger *zap.Logger
}

func NewReadingHandler(svc *reading.Service, logger *zap.Logger) *ReadingHandler {
	return &ReadingHandler{svc: svc, logger: logger}
}

// Read records a chapter view. Views that are not fresh reads still succeed
// with is_new_read=false and the gate's reason.
// POST /api/reading/chapters/:id/read
func (h *ReadingHandler) Read(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	res, err := h.svc.ReadChapter(c.Request.Context(), mw.GetUserID(c), id)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	ok(c, res)
}

// Eligibility runs the gate without recording anything.
// GET /api/reading/chapters/:id/eligibility
func (h *ReadingHandler) Eligibility(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	ok(c, h.svc.Gate().IsEligibleNewRead(c.Request.Context(), mw.GetUserID(c), id))
}
