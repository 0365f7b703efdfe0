package handler

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"digest-relay-go/internal/model"
)

// GetSources lists configured sources with their checkpoints
func (h *Handlers) GetSources(c *gin.Context) {
	ctx := c.Request.Context()

	checkpoints, err := h.deps.Checkpoints.List(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to list checkpoints")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to list sources",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	count, err := h.deps.Fingerprints.Count(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to count fingerprints")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to count fingerprints",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	bySource := make(map[string]SourceResponse)
	for _, id := range h.deps.Sources {
		bySource[id] = SourceResponse{SourceID: id, Configured: true, State: string(model.StateOf(false))}
	}
	for _, cp := range checkpoints {
		resp := bySource[cp.SourceID]
		resp.SourceID = cp.SourceID
		resp.Title = cp.Title
		resp.State = string(model.StateOf(true))
		resp.LastItemID = cp.LastItemID
		resp.ItemsSeenTotal = cp.ItemsSeenTotal
		lastRun := cp.LastRunAt
		resp.LastRunAt = &lastRun
		bySource[cp.SourceID] = resp
	}

	response := SourcesResponse{Fingerprints: count, Sources: make([]SourceResponse, 0, len(bySource))}
	for _, s := range bySource {
		response.Sources = append(response.Sources, s)
	}
	sort.Slice(response.Sources, func(i, j int) bool {
		return response.Sources[i].SourceID < response.Sources[j].SourceID
	})

	c.JSON(http.StatusOK, response)
}

// ResetSource deletes a source checkpoint so its next read is a first run
func (h *Handlers) ResetSource(c *gin.Context) {
	id := c.Param("id")

	deleted, err := h.deps.Checkpoints.Delete(c.Request.Context(), id)
	if err != nil {
		logrus.WithError(err).WithField("source_id", id).Error("Failed to reset source")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to reset source",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Source has no checkpoint",
			Code:    http.StatusNotFound,
		})
		return
	}

	if h.deps.Forget != nil {
		h.deps.Forget(id)
	}
	logrus.WithField("source_id", id).Info("Source checkpoint reset")
	c.JSON(http.StatusOK, gin.H{"message": "Source reset successfully", "source_id": id})
}
