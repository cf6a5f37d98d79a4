package repository

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"coldflow/internal/model"
)

// AddUnsubscribe inserts a suppression record for the normalized address.
// A conflicting insert is a no-op; the bool reports whether a new record was
// created.
func (r *Repository) AddUnsubscribe(email, reason string, campaignID *string) (bool, error) {
	record := model.UnsubscribeRecord{
		ID:         uuid.NewString(),
		Email:      strings.ToLower(email),
		Reason:     reason,
		CampaignID: campaignID,
	}

	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(&record)
	if result.Error != nil {
		return false, fmt.Errorf("failed to add unsubscribe record: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// IsUnsubscribed checks the global suppression set.
func (r *Repository) IsUnsubscribed(email string) (bool, error) {
	var count int64
	result := r.db.Model(&model.UnsubscribeRecord{}).
		Where("email = ?", strings.ToLower(email)).
		Limit(1).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("database error checking unsubscribe list: %w", result.Error)
	}
	return count > 0, nil
}

// RemoveUnsubscribe deletes a suppression record (explicit resubscribe).
func (r *Repository) RemoveUnsubscribe(email string) (bool, error) {
	result := r.db.Where("email = ?", strings.ToLower(email)).Delete(&model.UnsubscribeRecord{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to remove unsubscribe record: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
