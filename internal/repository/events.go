package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"coldflow/internal/model"
)

// CreateEvent appends one immutable event row. Metadata is marshaled to JSON;
// a nil map stores NULL.
func (r *Repository) CreateEvent(queueID, trackingID, eventType, ip, userAgent string, metadata map[string]interface{}) error {
	event := model.EmailEvent{
		ID:         uuid.NewString(),
		QueueID:    queueID,
		TrackingID: trackingID,
		EventType:  eventType,
		IPAddress:  ip,
		UserAgent:  userAgent,
		Timestamp:  time.Now(),
	}

	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata: %w", err)
		}
		event.Metadata = datatypes.JSON(raw)
	}

	if err := r.db.Create(&event).Error; err != nil {
		return fmt.Errorf("failed to create email event: %w", err)
	}
	return nil
}

// EventExists reports whether any event of the given type was already
// recorded for a tracking id. Used for first-open detection.
func (r *Repository) EventExists(trackingID, eventType string) (bool, error) {
	var count int64
	result := r.db.Model(&model.EmailEvent{}).
		Where("tracking_id = ? AND event_type = ?", trackingID, eventType).
		Limit(1).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("database error checking event existence: %w", result.Error)
	}
	return count > 0, nil
}

func (r *Repository) EventsByQueueID(queueID string) ([]model.EmailEvent, error) {
	var events []model.EmailEvent
	result := r.db.Where("queue_id = ?", queueID).Order("timestamp ASC").Find(&events)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list events: %w", result.Error)
	}
	return events, nil
}
