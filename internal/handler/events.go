package handler

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

const keepAliveInterval = 25 * time.Second

// Events GET /wallet/events
//
// Streams the caller's wallet events as server-sent events until the client
// goes away.
func (h *Handler) Events(c *gin.Context) {
	userID := currentUserID(c)
	ctx := c.Request.Context()

	events, cancel := h.events.Subscribe(ctx, userID)
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	c.SSEvent("ready", gin.H{"user_id": userID})
	c.Writer.Flush()
	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(msg.Event, msg)
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		case <-ctx.Done():
			return false
		}
	})
}
