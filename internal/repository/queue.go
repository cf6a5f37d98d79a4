package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"coldflow/internal/model"
)

// BulkCreateEntries inserts queue entries in batches.
func (r *Repository) BulkCreateEntries(entries []model.QueueEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := r.db.CreateInBatches(entries, 500).Error; err != nil {
		return fmt.Errorf("failed to create queue entries: %w", err)
	}
	return nil
}

// NextPending returns due pending entries, highest priority first, earliest
// schedule first. This is only the candidate read; exclusivity comes from
// ClaimEntry.
func (r *Repository) NextPending(limit int, now time.Time) ([]model.QueueEntry, error) {
	var entries []model.QueueEntry
	result := r.db.
		Where("status = ? AND scheduled_for <= ?", model.QueueStatusPending, now).
		Order("priority DESC").
		Order("scheduled_for ASC").
		Limit(limit).
		Find(&entries)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to fetch pending entries: %w", result.Error)
	}
	return entries, nil
}

// ClaimEntry moves one entry from pending to processing with a conditional
// update. It returns false when another worker already claimed the entry;
// it never blocks on rows held by other claimants.
func (r *Repository) ClaimEntry(id string) (bool, error) {
	result := r.db.Model(&model.QueueEntry{}).
		Where("id = ? AND status = ?", id, model.QueueStatusPending).
		Update("status", model.QueueStatusProcessing)
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim entry: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// MarkEntrySent records a successful send and clears any stale error.
func (r *Repository) MarkEntrySent(id string, sentAt time.Time) error {
	result := r.db.Model(&model.QueueEntry{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        model.QueueStatusSent,
		"sent_at":       sentAt,
		"error_message": "",
	})
	if result.Error != nil {
		return fmt.Errorf("failed to mark entry sent: %w", result.Error)
	}
	return nil
}

// MarkEntryFailed moves an entry to the terminal failed state.
func (r *Repository) MarkEntryFailed(id, errorMessage string) error {
	result := r.db.Model(&model.QueueEntry{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        model.QueueStatusFailed,
		"error_message": errorMessage,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to mark entry failed: %w", result.Error)
	}
	return nil
}

// RequeueEntry returns an entry to pending so a later cycle retries it.
func (r *Repository) RequeueEntry(id, errorMessage string) error {
	result := r.db.Model(&model.QueueEntry{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        model.QueueStatusPending,
		"error_message": errorMessage,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to requeue entry: %w", result.Error)
	}
	return nil
}

// NoteQuotaDeferral records why a still-pending entry was skipped.
func (r *Repository) NoteQuotaDeferral(id string) error {
	result := r.db.Model(&model.QueueEntry{}).
		Where("id = ? AND status = ?", id, model.QueueStatusPending).
		Update("error_message", "Quota exceeded - rescheduled")
	if result.Error != nil {
		return fmt.Errorf("failed to note quota deferral: %w", result.Error)
	}
	return nil
}

// IncrementAttempt bumps the attempt counter atomically and stamps the
// attempt time. The new count is computed by the caller from the entry it
// holds; the database increment itself never loses concurrent updates.
func (r *Repository) IncrementAttempt(id string, at time.Time) error {
	result := r.db.Model(&model.QueueEntry{}).Where("id = ?", id).Updates(map[string]interface{}{
		"attempt_count":   gorm.Expr("attempt_count + ?", 1),
		"last_attempt_at": at,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to increment attempt count: %w", result.Error)
	}
	return nil
}

// EntryByTrackingID resolves a queue entry from an engagement signal.
// A missing entry returns nil, nil: tracking lookups tolerate unknown ids.
func (r *Repository) EntryByTrackingID(trackingID string) (*model.QueueEntry, error) {
	var entry model.QueueEntry
	result := r.db.Where("tracking_id = ?", trackingID).First(&entry)
	if result.Error == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("database error loading entry by tracking id: %w", result.Error)
	}
	return &entry, nil
}

// CancelPendingForRecipient fails every pending entry for a recipient except
// the excluded one. Re-running against an already-cancelled recipient is a
// no-op because the predicate matches only pending rows.
func (r *Repository) CancelPendingForRecipient(recipientEmail, excludeID string) (int64, error) {
	query := r.db.Model(&model.QueueEntry{}).
		Where("recipient_email = ? AND status = ?", recipientEmail, model.QueueStatusPending)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}

	result := query.Updates(map[string]interface{}{
		"status":        model.QueueStatusFailed,
		"error_message": "Recipient unsubscribed",
	})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to cancel pending entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CleanupSentBefore deletes sent entries older than the cutoff. Events
// cascade through the queue entry ownership.
func (r *Repository) CleanupSentBefore(cutoff time.Time) (int64, error) {
	var ids []string
	if err := r.db.Model(&model.QueueEntry{}).
		Where("status = ? AND sent_at IS NOT NULL AND sent_at < ?", model.QueueStatusSent, cutoff).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("failed to list entries for cleanup: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := r.db.Where("queue_id IN ?", ids).Delete(&model.EmailEvent{}).Error; err != nil {
		return 0, fmt.Errorf("failed to delete events for cleanup: %w", err)
	}
	result := r.db.Where("id IN ?", ids).Delete(&model.QueueEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete entries for cleanup: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// QueueStats summarizes entry statuses for one campaign.
type QueueStats struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Bounced    int64 `json:"bounced"`
}

func (r *Repository) QueueStatsByCampaign(campaignID string) (*QueueStats, error) {
	var rows []struct {
		Status string
		N      int64
	}
	if err := r.db.Model(&model.QueueEntry{}).
		Select("status, count(*) as n").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to compute queue stats: %w", err)
	}

	stats := &QueueStats{}
	for _, row := range rows {
		stats.Total += row.N
		switch row.Status {
		case model.QueueStatusPending:
			stats.Pending = row.N
		case model.QueueStatusProcessing:
			stats.Processing = row.N
		case model.QueueStatusSent:
			stats.Sent = row.N
		case model.QueueStatusFailed:
			stats.Failed = row.N
		case model.QueueStatusBounced:
			stats.Bounced = row.N
		}
	}
	return stats, nil
}
