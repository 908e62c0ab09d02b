package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/annotate/internal/checkpoint"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	store *checkpoint.Store
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store *checkpoint.Store) *HealthHandler {
	return &HealthHandler{store: store}
}

// Health returns the health status of the service and the checkpoint it serves.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"checkpoint": h.store.Path(),
	})
}
