package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"coldflow/internal/model"
	"coldflow/internal/repository"
)

// OAuthURL returns the Google consent URL for connecting a new account.
func (h *Handlers) OAuthURL(c *gin.Context) {
	state := c.Query("state")
	if state == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "state query parameter is required",
			Code:    http.StatusBadRequest,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": h.gmail.AuthCodeURL(state)})
}

// ConnectAccountRequest is the body for completing an OAuth connection.
type ConnectAccountRequest struct {
	UserID     string `json:"userId" binding:"required"`
	Code       string `json:"code" binding:"required"`
	DailyQuota int    `json:"dailyQuota"`
}

// ConnectAccount exchanges an authorization code, resolves the mailbox
// address, and stores the account with encrypted credentials.
func (h *Handlers) ConnectAccount(c *gin.Context) {
	var req ConnectAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body: " + err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	ctx := c.Request.Context()
	token, err := h.gmail.ExchangeAuthCode(ctx, req.Code)
	if err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "oauth_error",
			Message: "Authorization code exchange failed: " + err.Error(),
			Code:    http.StatusBadGateway,
		})
		return
	}

	email, err := h.gmail.UserInfo(ctx, token.AccessToken)
	if err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "oauth_error",
			Message: "Failed to resolve account email: " + err.Error(),
			Code:    http.StatusBadGateway,
		})
		return
	}

	encryptedAccess, err := h.vault.Encrypt(token.AccessToken)
	if err != nil {
		h.storageError(c, err)
		return
	}
	encryptedRefresh, err := h.vault.Encrypt(token.RefreshToken)
	if err != nil {
		h.storageError(c, err)
		return
	}

	quota := req.DailyQuota
	if quota <= 0 {
		quota = 500
	}
	expiry := token.Expiry
	nextReset := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)

	account := &model.EmailAccount{
		ID:                    uuid.NewString(),
		UserID:                req.UserID,
		Email:                 email,
		Provider:              model.ProviderGmail,
		EncryptedAccessToken:  encryptedAccess,
		EncryptedRefreshToken: encryptedRefresh,
		TokenExpiresAt:        &expiry,
		Scopes:                token.Scope,
		Status:                model.AccountStatusConnected,
		DailyQuota:            quota,
		QuotaResetAt:          &nextReset,
	}
	if err := h.repo.CreateAccount(account); err != nil {
		h.storageError(c, err)
		return
	}

	c.JSON(http.StatusCreated, account)
}

func (h *Handlers) storageError(c *gin.Context, err error) {
	h.logger.WithError(err).Error("Failed to store connected account")
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "storage_error",
		Message: "Failed to store connected account",
		Code:    http.StatusInternalServerError,
	})
}

// GetAccount returns one account. Encrypted credentials never serialize.
func (h *Handlers) GetAccount(c *gin.Context) {
	account, err := h.repo.GetAccount(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch account",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	if account == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Account not found",
			Code:    http.StatusNotFound,
		})
		return
	}
	c.JSON(http.StatusOK, account)
}

// RefreshAccount forces an immediate token refresh for one account.
func (h *Handlers) RefreshAccount(c *gin.Context) {
	account, err := h.tokens.RefreshAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "refresh_error",
			Message: "Token refresh failed: " + err.Error(),
			Code:    http.StatusBadGateway,
		})
		return
	}
	if account == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Account not found",
			Code:    http.StatusNotFound,
		})
		return
	}
	c.JSON(http.StatusOK, account)
}

// DeleteAccount removes an account unless pending sends still reference it.
func (h *Handlers) DeleteAccount(c *gin.Context) {
	err := h.repo.DeleteAccount(c.Param("id"))
	if errors.Is(err, repository.ErrAccountBusy) {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "account_busy",
			Message: "Account has pending queue entries",
			Code:    http.StatusConflict,
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to delete account",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// SuppressEmail adds an address to the suppression set directly.
func (h *Handlers) SuppressEmail(c *gin.Context) {
	reason := c.DefaultQuery("reason", "manual")
	result, err := h.engage.SuppressEmail(c.Param("email"), reason)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to suppress email",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Resubscribe removes an address from the suppression set.
func (h *Handlers) Resubscribe(c *gin.Context) {
	removed, err := h.engage.Resubscribe(c.Param("email"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to remove suppression",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Email is not on the suppression list",
			Code:    http.StatusNotFound,
		})
		return
	}
	c.Status(http.StatusNoContent)
}
