package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"coldflow/internal/model"
)

// ErrAccountBusy is returned when an account cannot be deleted because
// pending queue entries still reference it.
var ErrAccountBusy = errors.New("account has pending queue entries")

// refreshWindow is how far ahead of expiry a token counts as stale.
const refreshWindow = 5 * time.Minute

func (r *Repository) CreateAccount(account *model.EmailAccount) error {
	if err := r.db.Create(account).Error; err != nil {
		return fmt.Errorf("failed to create email account: %w", err)
	}
	return nil
}

func (r *Repository) GetAccount(id string) (*model.EmailAccount, error) {
	var account model.EmailAccount
	result := r.db.Where("id = ?", id).First(&account)
	if result.Error == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("database error loading account: %w", result.Error)
	}
	return &account, nil
}

// UpdateAccountTokens persists freshly issued credentials.
func (r *Repository) UpdateAccountTokens(id, encryptedAccess, encryptedRefresh string, expiresAt time.Time) error {
	result := r.db.Model(&model.EmailAccount{}).Where("id = ?", id).Updates(map[string]interface{}{
		"encrypted_access_token":  encryptedAccess,
		"encrypted_refresh_token": encryptedRefresh,
		"token_expires_at":        expiresAt,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update account tokens: %w", result.Error)
	}
	return nil
}

func (r *Repository) UpdateAccountStatus(id, status, errorMessage string) error {
	result := r.db.Model(&model.EmailAccount{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        status,
		"error_message": errorMessage,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update account status: %w", result.Error)
	}
	return nil
}

// IncrementQuotaUsage bumps quota_used_today by one as a single SQL
// increment so concurrent workers never lose updates.
func (r *Repository) IncrementQuotaUsage(id string) error {
	result := r.db.Model(&model.EmailAccount{}).Where("id = ?", id).
		Update("quota_used_today", gorm.Expr("quota_used_today + ?", 1))
	if result.Error != nil {
		return fmt.Errorf("failed to increment quota usage: %w", result.Error)
	}
	return nil
}

// AccountsNeedingRefresh returns connected accounts whose access token
// expires within the refresh window.
func (r *Repository) AccountsNeedingRefresh(now time.Time) ([]model.EmailAccount, error) {
	var accounts []model.EmailAccount
	result := r.db.
		Where("status = ? AND token_expires_at IS NOT NULL AND token_expires_at < ?",
			model.AccountStatusConnected, now.Add(refreshWindow)).
		Find(&accounts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list accounts needing refresh: %w", result.Error)
	}
	return accounts, nil
}

// ResetDueQuotas zeroes usage for accounts whose reset time has passed and
// schedules the next reset. Returns the number of accounts touched.
func (r *Repository) ResetDueQuotas(now time.Time) (int64, error) {
	nextReset := now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	result := r.db.Model(&model.EmailAccount{}).
		Where("quota_reset_at IS NOT NULL AND quota_reset_at <= ?", now).
		Updates(map[string]interface{}{
			"quota_used_today": 0,
			"quota_reset_at":   nextReset,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset quotas: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteAccount removes an account unless pending sends still reference it.
func (r *Repository) DeleteAccount(id string) error {
	var pending int64
	if err := r.db.Model(&model.QueueEntry{}).
		Where("email_account_id = ? AND status IN ?", id, []string{model.QueueStatusPending, model.QueueStatusProcessing}).
		Count(&pending).Error; err != nil {
		return fmt.Errorf("failed to count pending entries: %w", err)
	}
	if pending > 0 {
		return ErrAccountBusy
	}

	if err := r.db.Delete(&model.EmailAccount{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}
