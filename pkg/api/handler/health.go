// Package handler implements the HTTP handlers of the procflow API.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Engine        string `json:"engine"`
	Authenticated bool   `json:"authenticated"`
	Uptime        string `json:"uptime"`
	Timestamp     string `json:"timestamp"`
}

// HealthHandler serves liveness information.
type HealthHandler struct {
	facade    Facade
	version   string
	startTime time.Time
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(facade Facade, version string) *HealthHandler {
	return &HealthHandler{
		facade:    facade,
		version:   version,
		startTime: time.Now(),
	}
}

// Health reports the service status.
// GET /healthz
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:        "healthy",
		Version:       h.version,
		Engine:        h.facade.EngineType(),
		Authenticated: h.facade.Authenticated(),
		Uptime:        time.Since(h.startTime).Truncate(time.Second).String(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}
