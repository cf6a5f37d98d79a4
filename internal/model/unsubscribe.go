package model

import (
	"time"
)

// UnsubscribeRecord is a global suppression entry. The email is stored
// lower-cased and is unique; inserting a duplicate is a no-op.
type UnsubscribeRecord struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email      string    `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	Reason     string    `json:"reason" gorm:"type:varchar(255)"`
	CampaignID *string   `json:"campaign_id" gorm:"type:varchar(36)"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for UnsubscribeRecord
func (UnsubscribeRecord) TableName() string {
	return "email_unsubscribes"
}
