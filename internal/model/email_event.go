package model

import (
	"time"

	"gorm.io/datatypes"
)

// Email event types.
const (
	EventSent         = "sent"
	EventOpened       = "opened"
	EventClicked      = "clicked"
	EventReplied      = "replied"
	EventBounced      = "bounced"
	EventUnsubscribed = "unsubscribed"
)

// EmailEvent is an immutable observation tied to a queue entry. Events are
// append-only; repeat opens and clicks create additional rows.
type EmailEvent struct {
	ID         string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	QueueID    string         `json:"queue_id" gorm:"type:varchar(36);not null;index"`
	TrackingID string         `json:"tracking_id" gorm:"type:varchar(36);not null;index"`
	EventType  string         `json:"event_type" gorm:"type:varchar(20);not null;index"`
	IPAddress  string         `json:"ip_address" gorm:"type:varchar(64)"`
	UserAgent  string         `json:"user_agent" gorm:"type:text"`
	Timestamp  time.Time      `json:"timestamp" gorm:"not null;index"`
	Metadata   datatypes.JSON `json:"metadata,omitempty"`
}

// TableName specifies the table name for EmailEvent
func (EmailEvent) TableName() string {
	return "email_events"
}
