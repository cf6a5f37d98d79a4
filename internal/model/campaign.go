package model

import (
	"time"
)

// Campaign statuses.
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusSending   = "sending"
	CampaignStatusCompleted = "completed"
	CampaignStatusPaused    = "paused"
)

// Campaign counter columns that may be atomically incremented. The counters
// are cached aggregates; RecomputeCampaignStats rebuilds them from the queue
// and event tables, which remain the source of truth.
const (
	StatSent        = "sent_count"
	StatOpen        = "open_count"
	StatClick       = "click_count"
	StatReply       = "reply_count"
	StatBounce      = "bounce_count"
	StatUnsubscribe = "unsubscribe_count"
)

// Campaign represents a named send operation over a recipient list.
type Campaign struct {
	ID               string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID           string     `json:"user_id" gorm:"type:varchar(36);not null;index"`
	EmailAccountID   string     `json:"email_account_id" gorm:"type:varchar(36);index"`
	Name             string     `json:"name" gorm:"type:varchar(255);not null"`
	Subject          string     `json:"subject" gorm:"type:text"`
	BodyHTML         string     `json:"body_html" gorm:"type:longtext"`
	BodyText         string     `json:"body_text" gorm:"type:longtext"`
	Status           string     `json:"status" gorm:"type:varchar(20);not null;default:draft;index"`
	ScheduledFor     *time.Time `json:"scheduled_for"`
	TotalRecipients  int        `json:"total_recipients" gorm:"not null;default:0"`
	SentCount        int        `json:"sent_count" gorm:"not null;default:0"`
	OpenCount        int        `json:"open_count" gorm:"not null;default:0"`
	ClickCount       int        `json:"click_count" gorm:"not null;default:0"`
	ReplyCount       int        `json:"reply_count" gorm:"not null;default:0"`
	BounceCount      int        `json:"bounce_count" gorm:"not null;default:0"`
	UnsubscribeCount int        `json:"unsubscribe_count" gorm:"not null;default:0"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName specifies the table name for Campaign
func (Campaign) TableName() string {
	return "email_campaigns"
}
