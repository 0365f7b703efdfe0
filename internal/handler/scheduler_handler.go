package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// StartScheduler enables the periodic ingestion cycle and the retention job
func (h *Handlers) StartScheduler(c *gin.Context) {
	if h.deps.Scheduler.IsRunning() {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "scheduler_running",
			Message: "Ingestion cycles are already scheduled",
			Code:    http.StatusConflict,
		})
		return
	}
	if err := h.deps.Scheduler.Start(); err != nil {
		logrus.WithError(err).Error("Failed to start cycle scheduler")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "scheduler_error",
			Message: "Cannot schedule ingestion cycles: " + err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, SchedulerStatusResponse{
		Status:    "running",
		NextCycle: timePtr(h.deps.Scheduler.GetNextRun()),
	})
}

// StopScheduler disables periodic cycles; a cycle in progress is cancelled at its next source boundary
func (h *Handlers) StopScheduler(c *gin.Context) {
	if err := h.deps.Scheduler.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "scheduler_error",
			Message: "Failed to stop cycle scheduler: " + err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, SchedulerStatusResponse{
		Status:    "stopped",
		LastCycle: timePtr(h.deps.Scheduler.GetLastRun()),
	})
}

// GetSchedulerStatus reports the next planned cycle and a summary of the last one
func (h *Handlers) GetSchedulerStatus(c *gin.Context) {
	response := SchedulerStatusResponse{
		Status:    "stopped",
		NextCycle: timePtr(h.deps.Scheduler.GetNextRun()),
		LastCycle: timePtr(h.deps.Scheduler.GetLastRun()),
	}
	if h.deps.Scheduler.IsRunning() {
		response.Status = "running"
	}

	if result, err := h.deps.Scheduler.LastResult(); result != nil {
		summary := &CycleSummary{
			CycleID:          result.CycleID,
			NewItems:         result.NewItemsCount,
			DigestIsFallback: result.DigestIsFallback,
			Cancelled:        result.Cancelled,
		}
		for _, s := range result.PerSourceStats {
			if !s.Success {
				summary.FailedSources++
			}
		}
		if result.PublishResult != nil {
			summary.PublishReason = string(result.PublishResult.Reason)
		}
		if err != nil {
			summary.Error = err.Error()
		}
		response.LastResult = summary
	}

	c.JSON(http.StatusOK, response)
}
