// Package handlers contains the HTTP surface: public tracking endpoints and
// the authenticated management and job-trigger API.
package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"coldflow/internal/dispatch"
	"coldflow/internal/engage"
	"coldflow/internal/ingest"
	"coldflow/internal/quota"
	"coldflow/internal/repository"
	"coldflow/internal/tokens"
	"coldflow/internal/transport"
	"coldflow/internal/vault"
)

// ErrorResponse is the uniform error body for API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// SchedulerStatus reports whether the background scheduler is running.
type SchedulerStatus interface {
	IsRunning() bool
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	repo    *repository.Repository
	ingest  *ingest.Service
	engage  *engage.Service
	engine  *dispatch.Engine
	tokens  *tokens.Manager
	tracker *quota.Tracker
	gmail   *transport.GmailTransport
	vault   *vault.Vault
	sched   SchedulerStatus
	logger  *logrus.Logger

	authToken     string
	retentionDays int
}

// NewHandlers creates the HTTP handler set.
func NewHandlers(
	repo *repository.Repository,
	ingestService *ingest.Service,
	engageService *engage.Service,
	engine *dispatch.Engine,
	tokenManager *tokens.Manager,
	tracker *quota.Tracker,
	gmail *transport.GmailTransport,
	v *vault.Vault,
	sched SchedulerStatus,
	authToken string,
	retentionDays int,
	logger *logrus.Logger,
) *Handlers {
	return &Handlers{
		repo:          repo,
		ingest:        ingestService,
		engage:        engageService,
		engine:        engine,
		tokens:        tokenManager,
		tracker:       tracker,
		gmail:         gmail,
		vault:         v,
		sched:         sched,
		logger:        logger,
		authToken:     authToken,
		retentionDays: retentionDays,
	}
}

// SetupRoutes sets up all HTTP routes. Tracking endpoints are public because
// they are hit from recipient mail clients; everything under /api requires
// the bearer token.
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	trackingGroup := router.Group("/tracking")
	{
		trackingGroup.GET("/pixel/:trackingId", h.TrackingPixel)
		trackingGroup.GET("/click/:trackingId", h.TrackingClick)
		trackingGroup.GET("/unsubscribe/:trackingId", h.TrackingUnsubscribeConfirm)
		trackingGroup.POST("/unsubscribe/:trackingId", h.TrackingUnsubscribe)
	}

	api := router.Group("/api", h.requireAuth)
	{
		api.POST("/jobs/process-queue", h.ProcessQueue)
		api.POST("/jobs/refresh-tokens", h.RefreshTokens)
		api.POST("/jobs/maintenance", h.RunMaintenance)

		api.POST("/campaigns", h.CreateCampaign)
		api.GET("/campaigns", h.ListCampaigns)
		api.GET("/campaigns/:id", h.GetCampaign)
		api.POST("/campaigns/:id/recompute", h.RecomputeCampaignStats)

		api.GET("/accounts/oauth-url", h.OAuthURL)
		api.POST("/accounts", h.ConnectAccount)
		api.GET("/accounts/:id", h.GetAccount)
		api.POST("/accounts/:id/refresh", h.RefreshAccount)
		api.DELETE("/accounts/:id", h.DeleteAccount)

		api.POST("/unsubscribes/:email", h.SuppressEmail)
		api.DELETE("/unsubscribes/:email", h.Resubscribe)
	}
}

// requireAuth enforces the static bearer token on the management API.
func (h *Handlers) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if header == "" || token == header ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.authToken)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Missing or invalid bearer token",
			Code:    http.StatusUnauthorized,
		})
		return
	}
	c.Next()
}
