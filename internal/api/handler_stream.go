package api

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

// StreamNotifications handles GET /api/notifications/stream. It joins the
// caller's channel and relays every notification as a server-sent event until
// the client disconnects.
func (h *Handler) StreamNotifications(c *gin.Context) {
	user := caller(c)
	sub := h.hub.Join(user.ID)
	defer sub.Leave()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.SSEvent("ready", gin.H{"userId": user.ID, "connectionId": sub.ID})
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent(msg.Event, msg.Data)
			return true
		case now := <-heartbeat.C:
			c.SSEvent("ping", now.UTC().Format(time.RFC3339))
			return true
		}
	})
}
