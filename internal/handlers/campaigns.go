package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"coldflow/internal/ingest"
)

// CreateCampaign ingests a campaign submission and enqueues its emails.
func (h *Handlers) CreateCampaign(c *gin.Context) {
	var input ingest.CampaignInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body: " + err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	campaign, err := h.ingest.Create(&input)
	if err != nil {
		status, code := ingestErrorStatus(err)
		c.JSON(status, ErrorResponse{
			Error:   code,
			Message: err.Error(),
			Code:    status,
		})
		return
	}

	c.JSON(http.StatusCreated, campaign)
}

func ingestErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ingest.ErrNoRecipients),
		errors.Is(err, ingest.ErrTooManyRecipients):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, ingest.ErrAccountNotFound):
		return http.StatusNotFound, "account_not_found"
	case errors.Is(err, ingest.ErrAccountForbidden):
		return http.StatusForbidden, "account_forbidden"
	case errors.Is(err, ingest.ErrAccountNotConnected):
		return http.StatusConflict, "account_not_connected"
	default:
		return http.StatusInternalServerError, "database_error"
	}
}

// GetCampaign returns a campaign with its live queue breakdown.
func (h *Handlers) GetCampaign(c *gin.Context) {
	campaign, err := h.repo.GetCampaign(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch campaign",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	if campaign == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Campaign not found",
			Code:    http.StatusNotFound,
		})
		return
	}

	stats, err := h.repo.QueueStatsByCampaign(campaign.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch queue stats",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"campaign": campaign,
		"queue":    stats,
	})
}

// ListCampaigns returns campaigns for one user, newest first.
func (h *Handlers) ListCampaigns(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "userId query parameter is required",
			Code:    http.StatusBadRequest,
		})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	campaigns, err := h.repo.ListCampaigns(userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to list campaigns",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, campaigns)
}

// RecomputeCampaignStats rebuilds the cached counters from the source tables.
func (h *Handlers) RecomputeCampaignStats(c *gin.Context) {
	campaign, err := h.repo.GetCampaign(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch campaign",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	if campaign == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Campaign not found",
			Code:    http.StatusNotFound,
		})
		return
	}

	repaired, err := h.repo.RecomputeCampaignStats(campaign.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to recompute campaign stats",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, repaired)
}
