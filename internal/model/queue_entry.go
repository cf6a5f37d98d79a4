package model

import (
	"time"
)

// Queue entry statuses. An entry is claimed by moving it from pending to
// processing with a conditional update; sent and failed are terminal.
const (
	QueueStatusPending    = "pending"
	QueueStatusProcessing = "processing"
	QueueStatusSent       = "sent"
	QueueStatusFailed     = "failed"
	QueueStatusBounced    = "bounced"
)

// DefaultMaxAttempts bounds retries for a single queue entry.
const DefaultMaxAttempts = 3

// QueueEntry is one outbound message instance. Subject and bodies are stored
// with per-recipient variables already substituted.
type QueueEntry struct {
	ID             string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CampaignID     string     `json:"campaign_id" gorm:"type:varchar(36);not null;index"`
	EmailAccountID string     `json:"email_account_id" gorm:"type:varchar(36);not null;index"`
	RecipientEmail string     `json:"recipient_email" gorm:"type:varchar(255);not null;index"`
	RecipientName  string     `json:"recipient_name" gorm:"type:varchar(255)"`
	Subject        string     `json:"subject" gorm:"type:text;not null"`
	BodyHTML       string     `json:"body_html" gorm:"type:longtext"`
	BodyText       string     `json:"body_text" gorm:"type:longtext"`
	ScheduledFor   time.Time  `json:"scheduled_for" gorm:"not null;index:idx_email_queue_claim,priority:2"`
	Status         string     `json:"status" gorm:"type:varchar(20);not null;default:pending;index:idx_email_queue_claim,priority:1"`
	Priority       int        `json:"priority" gorm:"not null;default:0"`
	AttemptCount   int        `json:"attempt_count" gorm:"not null;default:0"`
	MaxAttempts    int        `json:"max_attempts" gorm:"not null;default:3"`
	LastAttemptAt  *time.Time `json:"last_attempt_at"`
	SentAt         *time.Time `json:"sent_at"`
	ErrorMessage   string     `json:"error_message" gorm:"type:text"`
	TrackingID     string     `json:"tracking_id" gorm:"type:varchar(36);not null;uniqueIndex"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName specifies the table name for QueueEntry
func (QueueEntry) TableName() string {
	return "email_queue"
}
