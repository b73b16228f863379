package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"production-tracker-backend/internal/model"
	"production-tracker-backend/internal/movement"
	"production-tracker-backend/internal/mw"
)

type movementRequest struct {
	MovementType string `json:"movement_type"`
	ProcessID    int64  `json:"process_id"`
	FullSN       string `json:"full_sn" binding:"required"`
	PlaceName    string `json:"place_name"`
	Result       *bool  `json:"result"`
	PrinterName  string `json:"printer_name"`
}

// PostMovement handles POST /api/movements. The operator comes from the
// X-Actor header set by the station.
func (h *Handler) PostMovement(c *gin.Context) {
	var req movementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.engine.HandleMovement(c.Request.Context(), movement.Request{
		Type:        model.MovementType(req.MovementType),
		ProcessID:   req.ProcessID,
		FullSN:      req.FullSN,
		PlaceName:   req.PlaceName,
		Actor:       c.GetHeader(mw.ActorHeader),
		Result:      req.Result,
		PrinterName: req.PrinterName,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
