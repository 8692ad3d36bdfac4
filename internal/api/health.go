package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthResponse struct {
	Status     string                            `json:"status"`
	Timestamp  time.Time                         `json:"timestamp"`
	Database   string                            `json:"database"`
	Components map[string]map[string]interface{} `json:"components"`
	System     map[string]interface{}            `json:"system"`
}

// GET /health answers 503 when the database is unreachable.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:     "healthy",
		Timestamp:  time.Now().UTC(),
		Database:   "healthy",
		Components: make(map[string]map[string]interface{}, len(h.stats)),
		System: map[string]interface{}{
			"goroutines":     runtime.NumGoroutine(),
			"uptime_seconds": int64(time.Since(h.started).Seconds()),
		},
	}

	if h.database != nil {
		if err := h.database.HealthCheck(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Database = "error: " + err.Error()
		}
	}
	for name, p := range h.stats {
		resp.Components[name] = p.GetStats()
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
