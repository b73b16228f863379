package api

import (
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"production-tracker-backend/internal/graph"
	"production-tracker-backend/internal/logger"
	"production-tracker-backend/internal/movement"
	"production-tracker-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	engine  *movement.Engine
	builder *graph.Builder
	webpush *webpush.Options
	log     *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, engine *movement.Engine, webpushOptions *webpush.Options, log *logger.Logger) *Handler {
	h := &Handler{
		store:   s,
		engine:  engine,
		webpush: webpushOptions,
		log:     log,
	}
	if s != nil {
		h.builder = graph.NewBuilder(s)
	}
	return h
}

// respondError maps domain errors onto HTTP statuses.
func (h *Handler) respondError(c *gin.Context, err error) {
	if verr, ok := movement.AsError(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": verr.Message, "code": verr.Code})
		return
	}
	switch {
	case errors.Is(err, movement.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "concurrent update, retry the scan"})
	case errors.Is(err, graph.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, graph.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, graph.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// Health pings the database.
func (h *Handler) Health(c *gin.Context) {
	sqlDB, err := h.store.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		h.log.Warn("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
