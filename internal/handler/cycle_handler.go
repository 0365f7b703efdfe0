package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"digest-relay-go/internal/scheduler"
)

// RunCycle runs one ingestion cycle and returns its result
func (h *Handlers) RunCycle(c *gin.Context) {
	result, err := h.deps.Scheduler.RunOnce(c.Request.Context())
	if errors.Is(err, scheduler.ErrCycleRunning) {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "cycle_running",
			Message: err.Error(),
			Code:    http.StatusConflict,
		})
		return
	}
	if err != nil {
		logrus.WithError(err).WithField("cycle_id", result.CycleID).Error("Manual ingestion cycle failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "cycle_failed",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetLastCycle returns the result of the most recent cycle
func (h *Handlers) GetLastCycle(c *gin.Context) {
	result, err := h.deps.Scheduler.LastResult()
	if result == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "No cycle has run yet",
			Code:    http.StatusNotFound,
		})
		return
	}

	response := gin.H{"result": result}
	if err != nil {
		response["error"] = err.Error()
	}
	c.JSON(http.StatusOK, response)
}
