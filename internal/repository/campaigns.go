package repository

import (
	"fmt"

	"gorm.io/gorm"

	"coldflow/internal/model"
)

func (r *Repository) CreateCampaign(campaign *model.Campaign) error {
	if err := r.db.Create(campaign).Error; err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

func (r *Repository) GetCampaign(id string) (*model.Campaign, error) {
	var campaign model.Campaign
	result := r.db.Where("id = ?", id).First(&campaign)
	if result.Error == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("database error loading campaign: %w", result.Error)
	}
	return &campaign, nil
}

func (r *Repository) UpdateCampaignStatus(id, status string) error {
	result := r.db.Model(&model.Campaign{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update campaign status: %w", result.Error)
	}
	return nil
}

var campaignStats = map[string]bool{
	model.StatSent:        true,
	model.StatOpen:        true,
	model.StatClick:       true,
	model.StatReply:       true,
	model.StatBounce:      true,
	model.StatUnsubscribe: true,
}

// IncrementCampaignStat bumps one cached counter column atomically.
func (r *Repository) IncrementCampaignStat(id, stat string) error {
	if !campaignStats[stat] {
		return fmt.Errorf("unknown campaign stat column: %s", stat)
	}
	result := r.db.Model(&model.Campaign{}).Where("id = ?", id).
		Update(stat, gorm.Expr(stat+" + ?", 1))
	if result.Error != nil {
		return fmt.Errorf("failed to increment campaign stat %s: %w", stat, result.Error)
	}
	return nil
}

// RecomputeCampaignStats rebuilds the cached counters from queue entries and
// events. Sent and bounced come from entry statuses. Opens count distinct
// queue entries so repeat pixel renders count once; clicks count every
// event, matching how the live counters move.
func (r *Repository) RecomputeCampaignStats(id string) (*model.Campaign, error) {
	var sent, bounced int64
	if err := r.db.Model(&model.QueueEntry{}).
		Where("campaign_id = ? AND status = ?", id, model.QueueStatusSent).
		Count(&sent).Error; err != nil {
		return nil, fmt.Errorf("failed to count sent entries: %w", err)
	}
	if err := r.db.Model(&model.QueueEntry{}).
		Where("campaign_id = ? AND status = ?", id, model.QueueStatusBounced).
		Count(&bounced).Error; err != nil {
		return nil, fmt.Errorf("failed to count bounced entries: %w", err)
	}

	distinct := map[string]int64{}
	total := map[string]int64{}
	var rows []struct {
		EventType string
		Entries   int64
		Events    int64
	}
	if err := r.db.Model(&model.EmailEvent{}).
		Select("email_events.event_type, count(distinct email_events.queue_id) as entries, count(*) as events").
		Joins("JOIN email_queue ON email_queue.id = email_events.queue_id").
		Where("email_queue.campaign_id = ?", id).
		Group("email_events.event_type").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate events: %w", err)
	}
	for _, row := range rows {
		distinct[row.EventType] = row.Entries
		total[row.EventType] = row.Events
	}

	updates := map[string]interface{}{
		model.StatSent:        sent,
		model.StatBounce:      bounced,
		model.StatOpen:        distinct[model.EventOpened],
		model.StatClick:       total[model.EventClicked],
		model.StatReply:       distinct[model.EventReplied],
		model.StatUnsubscribe: distinct[model.EventUnsubscribed],
	}
	if err := r.db.Model(&model.Campaign{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to store recomputed stats: %w", err)
	}

	return r.GetCampaign(id)
}

func (r *Repository) ListCampaigns(userID string, limit, offset int) ([]model.Campaign, error) {
	var campaigns []model.Campaign
	query := r.db.Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&campaigns).Error; err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}
