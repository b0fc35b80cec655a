package v1

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"lootbox-hub/internal/api/middleware"
	"lootbox-hub/internal/api/response"
	"lootbox-hub/internal/sse"
)

type SSEHandler struct {
	hub *sse.SSEHub
}

func NewSSEHandler(hub *sse.SSEHub) *SSEHandler {
	return &SSEHandler{hub: hub}
}

// RegisterSSERoutes expects group to carry JWT auth already.
func RegisterSSERoutes(group *gin.RouterGroup, hub *sse.SSEHub) {
	handler := NewSSEHandler(hub)
	group.GET("/events", handler.Events)
}

// Events
// @Summary Per-user stream of draw, withdrawal and deposit updates
// @Tags sse
// @Router /api/v1/events [get]
func (h *SSEHandler) Events(c *gin.Context) {
	if h.hub == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrUnavailable, "sse hub unavailable")
		return
	}

	claims, ok := middleware.GetClaims(c)
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "stream unsupported")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	sub := sse.NewSubscriber(claims.UserID, claims.Role)
	h.hub.Register(sub)
	defer h.hub.Detach(sub)

	for _, event := range h.hub.Replay(sub, c.GetHeader("Last-Event-ID")) {
		if err := writeSSEEvent(c, event); err != nil {
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-sub.Done():
			return
		case event := <-sub.Events():
			if err := writeSSEEvent(c, event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(c *gin.Context, event sse.SSEEvent) error {
	if event.ID != "" {
		if _, err := fmt.Fprintf(c.Writer, "id: %s\n", event.ID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(c.Writer, "event: %s\n", event.Type); err != nil {
		return err
	}

	for _, line := range strings.Split(event.Data, "\n") {
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n", line); err != nil {
			return err
		}
	}

	_, err := fmt.Fprint(c.Writer, "\n")
	return err
}
