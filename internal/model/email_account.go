package model

import (
	"time"
)

// Email account statuses.
const (
	AccountStatusConnected    = "connected"
	AccountStatusDisconnected = "disconnected"
	AccountStatusError        = "error"
)

// Supported providers.
const (
	ProviderGmail   = "gmail"
	ProviderOutlook = "outlook"
	ProviderIMAP    = "imap"
)

// EmailAccount represents a connected sending identity with encrypted OAuth
// credentials and a per-day sending quota.
type EmailAccount struct {
	ID                    string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID                string     `json:"user_id" gorm:"type:varchar(36);not null;index"`
	Email                 string     `json:"email" gorm:"type:varchar(255);not null;index"`
	Provider              string     `json:"provider" gorm:"type:varchar(20);not null"`
	EncryptedAccessToken  string     `json:"-" gorm:"type:text"`
	EncryptedRefreshToken string     `json:"-" gorm:"type:text"`
	TokenExpiresAt        *time.Time `json:"token_expires_at" gorm:"index"`
	Scopes                string     `json:"scopes" gorm:"type:text"`
	Status                string     `json:"status" gorm:"type:varchar(20);not null;default:connected;index"`
	DailyQuota            int        `json:"daily_quota" gorm:"not null;default:500"`
	QuotaUsedToday        int        `json:"quota_used_today" gorm:"not null;default:0"`
	QuotaResetAt          *time.Time `json:"quota_reset_at"`
	LastSyncedAt          *time.Time `json:"last_synced_at"`
	ErrorMessage          string     `json:"error_message" gorm:"type:text"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// TableName specifies the table name for EmailAccount
func (EmailAccount) TableName() string {
	return "email_accounts"
}
