package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/calai-cam/backend/internal/apperr"
	"github.com/calai-cam/backend/internal/service"
)

// heartbeatInterval keeps proxies from idling out quiet streams.
const heartbeatInterval = 25 * time.Second

// SSEHandler serves the per-user food-analysis event stream.
type SSEHandler struct {
	notifier *service.Notifier
}

// NewSSEHandler creates an SSEHandler.
func NewSSEHandler(notifier *service.Notifier) *SSEHandler {
	return &SSEHandler{notifier: notifier}
}

// RegisterRoutes mounts the stream endpoint.
func (h *SSEHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/sse/food-analysis", h.Stream)
}

// Stream opens a long-lived event stream for the given user. The first
// event is a "connected" acknowledgment; analysis completions and errors
// follow until the client disconnects or the server shuts down.
func (h *SSEHandler) Stream(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		respondErr(c, apperr.New(http.StatusBadRequest, apperr.CodeMissingData, "User ID is required"))
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		respondErr(c, apperr.New(http.StatusInternalServerError, apperr.CodeInternalError, "streaming unsupported"))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	events, cancel := h.notifier.Subscribe(userID)
	defer cancel()

	slog.Info("sse stream opened", "user_id", userID)
	defer slog.Info("sse stream closed", "user_id", userID)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case ev, open := <-events:
			if !open {
				// Replaced by a newer subscription or server shutdown.
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(c.Writer, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}
