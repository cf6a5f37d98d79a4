package engage

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"coldflow/internal/model"
	"coldflow/internal/repository"
)

func newService(t *testing.T) (*Service, *repository.Repository) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.EmailAccount{},
		&model.Campaign{},
		&model.QueueEntry{},
		&model.EmailEvent{},
		&model.UnsubscribeRecord{},
	))
	repo := repository.New(db)
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewService(repo, log), repo
}

func seedCampaign(t *testing.T, repo *repository.Repository) *model.Campaign {
	t.Helper()
	campaign := &model.Campaign{
		ID:     uuid.NewString(),
		UserID: "user-1",
		Name:   "launch",
		Status: model.CampaignStatusSending,
	}
	require.NoError(t, repo.CreateCampaign(campaign))
	return campaign
}

func seedEntry(t *testing.T, repo *repository.Repository, campaignID, recipient, status string) *model.QueueEntry {
	t.Helper()
	entry := model.QueueEntry{
		ID:             uuid.NewString(),
		CampaignID:     campaignID,
		EmailAccountID: uuid.NewString(),
		RecipientEmail: recipient,
		Subject:        "hi",
		BodyText:       "hello",
		ScheduledFor:   time.Now().Add(-time.Minute),
		Status:         status,
		MaxAttempts:    model.DefaultMaxAttempts,
		TrackingID:     uuid.NewString(),
	}
	require.NoError(t, repo.BulkCreateEntries([]model.QueueEntry{entry}))
	return &entry
}

func TestRecordOpenCountsFirstOpenOnce(t *testing.T) {
	svc, repo := newService(t)
	campaign := seedCampaign(t, repo)
	entry := seedEntry(t, repo, campaign.ID, "lead@example.com", model.QueueStatusSent)

	require.NoError(t, svc.RecordOpen(entry.TrackingID, "1.2.3.4", "Mozilla/5.0"))
	require.NoError(t, svc.RecordOpen(entry.TrackingID, "1.2.3.4", "Mozilla/5.0"))
	require.NoError(t, svc.RecordOpen(entry.TrackingID, "5.6.7.8", "curl/8"))

	events, err := repo.EventsByQueueID(entry.ID)
	require.NoError(t, err)
	assert.Len(t, events, 3)

	reloaded, err := repo.GetCampaign(campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.OpenCount)
}

func TestRecordOpenUnknownTrackingID(t *testing.T) {
	svc, _ := newService(t)
	assert.NoError(t, svc.RecordOpen(uuid.NewString(), "1.2.3.4", "ua"))
}

func TestRecordClickStoresTargetURL(t *testing.T) {
	svc, repo := newService(t)
	campaign := seedCampaign(t, repo)
	entry := seedEntry(t, repo, campaign.ID, "lead@example.com", model.QueueStatusSent)

	require.NoError(t, svc.RecordClick(entry.TrackingID, "https://example.org/demo", "1.2.3.4", "ua"))
	require.NoError(t, svc.RecordClick(entry.TrackingID, "https://example.org/pricing", "1.2.3.4", "ua"))

	events, err := repo.EventsByQueueID(entry.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)

	urls := map[string]bool{}
	for _, event := range events {
		var meta map[string]interface{}
		require.NoError(t, json.Unmarshal(event.Metadata, &meta))
		urls[meta["url"].(string)] = true
	}
	assert.True(t, urls["https://example.org/demo"])
	assert.True(t, urls["https://example.org/pricing"])

	reloaded, err := repo.GetCampaign(campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.ClickCount)
}

func TestUnsubscribeCascade(t *testing.T) {
	svc, repo := newService(t)
	c1 := seedCampaign(t, repo)
	c2 := seedCampaign(t, repo)

	// the entry the recipient acted on is still pending, plus one sibling
	origin := seedEntry(t, repo, c1.ID, "gone@example.com", model.QueueStatusPending)
	sibling := seedEntry(t, repo, c2.ID, "gone@example.com", model.QueueStatusPending)
	other := seedEntry(t, repo, c2.ID, "stays@example.com", model.QueueStatusPending)

	result, err := svc.Unsubscribe(origin.TrackingID, "1.2.3.4", "ua")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "gone@example.com", result.Email)
	assert.False(t, result.AlreadyUnsubscribed)
	assert.Equal(t, int64(1), result.CancelledEmails)

	for _, trackingID := range []string{origin.TrackingID, sibling.TrackingID} {
		entry, err := repo.EntryByTrackingID(trackingID)
		require.NoError(t, err)
		assert.Equal(t, model.QueueStatusFailed, entry.Status)
	}
	untouched, err := repo.EntryByTrackingID(other.TrackingID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusPending, untouched.Status)

	unsubscribed, err := repo.IsUnsubscribed("gone@example.com")
	require.NoError(t, err)
	assert.True(t, unsubscribed)

	campaign, err := repo.GetCampaign(c1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, campaign.UnsubscribeCount)

	events, err := repo.EventsByQueueID(origin.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventUnsubscribed, events[0].EventType)
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(events[0].Metadata, &meta))
	assert.Equal(t, float64(1), meta["cancelledEmails"])
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	svc, repo := newService(t)
	campaign := seedCampaign(t, repo)
	entry := seedEntry(t, repo, campaign.ID, "gone@example.com", model.QueueStatusSent)

	first, err := svc.Unsubscribe(entry.TrackingID, "1.2.3.4", "ua")
	require.NoError(t, err)
	assert.False(t, first.AlreadyUnsubscribed)

	second, err := svc.Unsubscribe(entry.TrackingID, "1.2.3.4", "ua")
	require.NoError(t, err)
	assert.True(t, second.AlreadyUnsubscribed)

	reloaded, err := repo.GetCampaign(campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.UnsubscribeCount)
}

func TestUnsubscribeUnknownTrackingID(t *testing.T) {
	svc, _ := newService(t)
	result, err := svc.Unsubscribe(uuid.NewString(), "1.2.3.4", "ua")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestSuppressEmailDirect(t *testing.T) {
	svc, repo := newService(t)
	campaign := seedCampaign(t, repo)
	entry := seedEntry(t, repo, campaign.ID, "gone@example.com", model.QueueStatusPending)

	result, err := svc.SuppressEmail("Gone@Example.com", "complaint")
	require.NoError(t, err)
	assert.Equal(t, "gone@example.com", result.Email)
	assert.Equal(t, int64(1), result.CancelledEmails)

	reloaded, err := repo.EntryByTrackingID(entry.TrackingID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusFailed, reloaded.Status)

	removed, err := svc.Resubscribe("gone@example.com")
	require.NoError(t, err)
	assert.True(t, removed)
}
