// Package sse streams a user's mission events to the browser.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shi0417/kongfuworld-sub004/cache"
	mw "github.com/shi0417/kongfuworld-sub004/middleware"
	"github.com/shi0417/kongfuworld-sub004/mission"
	"go.uber.org/zap"
)

const announceChannel = "announce"

// Handler handles the SSE endpoint.
type Handler struct {
	pubsub    cache.PubSub
	keepalive time.Duration
	logger    *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, keepalive: 30 * time.Second, logger: logger}
}

// ServeSSE handles GET /sse?token=<jwt>; mount it behind middleware.Auth.
// It streams the user's mission events (mission_progress, missions_completed,
// mission_claimed) and site-wide announcements.
func (h *Handler) ServeSSE(c *gin.Context) {
	uid := mw.GetUserID(c)
	if uid == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing token"})
		return
	}

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	userChannel := mission.Channel(uid)
	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, userChannel, announceChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Int64("user_id", uid), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal server error"})
		return
	}
	defer unsub()

	// Set SSE headers.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"user_id\":%d}\n\n", uid)
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			event := "announce"
			data := msg.Payload
			if msg.Channel == userChannel {
				var ev struct {
					Type string          `json:"type"`
					Data json.RawMessage `json:"data"`
				}
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil || ev.Type == "" {
					h.logger.Warn("sse dropped malformed mission event", zap.Int64("user_id", uid), zap.Error(err))
					continue
				}
				event = ev.Type
				data = string(ev.Data)
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

// Announce publishes an announcement message to all SSE subscribers.
func (h *Handler) Announce(ctx context.Context, message string) error {
	return h.pubsub.Publish(ctx, announceChannel, message)
}
