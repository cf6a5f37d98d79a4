package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// maxReportedErrors bounds the per-entry error list in job responses.
const maxReportedErrors = 10

// ProcessQueue runs one dispatch cycle immediately. An optional batch_size
// query parameter overrides the configured batch size.
func (h *Handlers) ProcessQueue(c *gin.Context) {
	batchSize, _ := strconv.Atoi(c.DefaultQuery("batch_size", "0"))

	result, err := h.engine.ProcessBatch(c.Request.Context(), batchSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "dispatch_error",
			Message: "Failed to process email queue",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	if len(result.Errors) > maxReportedErrors {
		result.Errors = result.Errors[:maxReportedErrors]
	}
	c.JSON(http.StatusOK, result)
}

// RefreshTokens runs one proactive token refresh sweep immediately.
func (h *Handlers) RefreshTokens(c *gin.Context) {
	result, err := h.tokens.RefreshExpiringBatch(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "refresh_error",
			Message: "Failed to refresh tokens",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// MaintenanceResult reports what the maintenance pass changed.
type MaintenanceResult struct {
	QuotasReset    int64 `json:"quotasReset"`
	EntriesDeleted int64 `json:"entriesDeleted"`
}

// RunMaintenance resets due quotas and prunes old sent entries.
func (h *Handlers) RunMaintenance(c *gin.Context) {
	quotasReset, err := h.tracker.ResetDue()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "maintenance_error",
			Message: "Failed to reset quotas",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	cutoff := time.Now().AddDate(0, 0, -h.retentionDays)
	deleted, err := h.repo.CleanupSentBefore(cutoff)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "maintenance_error",
			Message: "Failed to clean up sent entries",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, MaintenanceResult{
		QuotasReset:    quotasReset,
		EntriesDeleted: deleted,
	})
}
