package dispatch

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
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
	"coldflow/internal/quota"
	"coldflow/internal/repository"
	"coldflow/internal/tokens"
	"coldflow/internal/transport"
	"coldflow/internal/vault"
)

type fakeTransport struct {
	sendErr  error
	lastMsg  *transport.Message
	sent     int
	msgID    string
	lastAuth string
}

func (f *fakeTransport) Send(ctx context.Context, accessToken string, msg *transport.Message) (string, error) {
	f.lastAuth = accessToken
	f.lastMsg = msg
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent++
	return f.msgID, nil
}

func (f *fakeTransport) Refresh(ctx context.Context, refreshToken string) (*transport.Token, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTransport) ExchangeAuthCode(ctx context.Context, code string) (*transport.Token, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTransport) UserInfo(ctx context.Context, accessToken string) (string, error) {
	return "", errors.New("not implemented")
}

type fixture struct {
	engine   *Engine
	repo     *repository.Repository
	fake     *fakeTransport
	account  *model.EmailAccount
	campaign *model.Campaign
}

func newFixture(t *testing.T) *fixture {
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

	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x11}, 32))
	v, err := vault.New(key)
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	fake := &fakeTransport{msgID: "provider-msg-1"}
	registry := transport.Registry{model.ProviderGmail: fake}
	tokenManager := tokens.NewManager(repo, v, registry, 2, log)
	tracker := quota.NewTracker(repo)

	engine := NewEngine(repo, tracker, tokenManager, registry, 50,
		"https://app.example.com", 5*time.Second, log)

	expiry := time.Now().Add(time.Hour)
	encAccess, err := v.Encrypt("access-token")
	require.NoError(t, err)
	encRefresh, err := v.Encrypt("refresh-token")
	require.NoError(t, err)
	account := &model.EmailAccount{
		ID:                    uuid.NewString(),
		UserID:                "user-1",
		Email:                 "sender@example.com",
		Provider:              model.ProviderGmail,
		Status:                model.AccountStatusConnected,
		EncryptedAccessToken:  encAccess,
		EncryptedRefreshToken: encRefresh,
		TokenExpiresAt:        &expiry,
		DailyQuota:            500,
	}
	require.NoError(t, repo.CreateAccount(account))

	campaign := &model.Campaign{
		ID:     uuid.NewString(),
		UserID: "user-1",
		Name:   "launch",
		Status: model.CampaignStatusSending,
	}
	require.NoError(t, repo.CreateCampaign(campaign))

	return &fixture{engine: engine, repo: repo, fake: fake, account: account, campaign: campaign}
}

func (f *fixture) enqueue(t *testing.T, recipient string, attempts int) *model.QueueEntry {
	t.Helper()
	entry := model.QueueEntry{
		ID:             uuid.NewString(),
		CampaignID:     f.campaign.ID,
		EmailAccountID: f.account.ID,
		RecipientEmail: recipient,
		Subject:        "Quick question",
		BodyHTML:       `<html><body><a href="https://example.org/demo">Demo</a></body></html>`,
		BodyText:       "Quick question",
		ScheduledFor:   time.Now().Add(-time.Minute),
		Status:         model.QueueStatusPending,
		AttemptCount:   attempts,
		MaxAttempts:    model.DefaultMaxAttempts,
		TrackingID:     uuid.NewString(),
	}
	require.NoError(t, f.repo.BulkCreateEntries([]model.QueueEntry{entry}))
	return &entry
}

func TestProcessBatchSendsAndRecords(t *testing.T) {
	f := newFixture(t)
	entry := f.enqueue(t, "lead@example.com", 0)

	result, err := f.engine.ProcessBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 0, result.Failed)

	assert.Equal(t, "access-token", f.fake.lastAuth)
	require.NotNil(t, f.fake.lastMsg)
	assert.Contains(t, f.fake.lastMsg.BodyHTML, "/tracking/pixel/"+entry.TrackingID)
	assert.Contains(t, f.fake.lastMsg.BodyHTML, "/tracking/click/"+entry.TrackingID)

	reloaded, err := f.repo.EntryByTrackingID(entry.TrackingID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusSent, reloaded.Status)
	require.NotNil(t, reloaded.SentAt)

	events, err := f.repo.EventsByQueueID(entry.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventSent, events[0].EventType)

	campaign, err := f.repo.GetCampaign(f.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, campaign.SentCount)

	account, err := f.repo.GetAccount(f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, account.QuotaUsedToday)
}

func TestProcessBatchFailsUnsubscribedBeforeClaim(t *testing.T) {
	f := newFixture(t)
	entry := f.enqueue(t, "gone@example.com", 0)
	_, err := f.repo.AddUnsubscribe("gone@example.com", "user_request", nil)
	require.NoError(t, err)

	result, err := f.engine.ProcessBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Sent)
	assert.Equal(t, 0, f.fake.sent)

	reloaded, err := f.repo.EntryByTrackingID(entry.TrackingID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusFailed, reloaded.Status)
	assert.Equal(t, "Recipient unsubscribed", reloaded.ErrorMessage)
}

func TestProcessBatchDefersWhenQuotaExhausted(t *testing.T) {
	f := newFixture(t)
	// exhaust the budget
	for i := 0; i < 500; i++ {
		require.NoError(t, f.repo.IncrementQuotaUsage(f.account.ID))
	}
	entry := f.enqueue(t, "lead@example.com", 0)

	result, err := f.engine.ProcessBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, f.fake.sent)

	reloaded, err := f.repo.EntryByTrackingID(entry.TrackingID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusPending, reloaded.Status)
	assert.Equal(t, "Quota exceeded - rescheduled", reloaded.ErrorMessage)
}

func TestProcessBatchAuthErrorIsTerminal(t *testing.T) {
	f := newFixture(t)
	f.fake.sendErr = transport.ErrAuthentication
	entry := f.enqueue(t, "lead@example.com", 0)

	result, err := f.engine.ProcessBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	reloaded, err := f.repo.EntryByTrackingID(entry.TrackingID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusFailed, reloaded.Status)
	assert.Equal(t, 1, reloaded.AttemptCount)

	account, err := f.repo.GetAccount(f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AccountStatusError, account.Status)
}

func TestProcessBatchTransientErrorRequeues(t *testing.T) {
	f := newFixture(t)
	f.fake.sendErr = errors.New("connection reset")
	entry := f.enqueue(t, "lead@example.com", 0)

	result, err := f.engine.ProcessBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	reloaded, err := f.repo.EntryByTrackingID(entry.TrackingID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusPending, reloaded.Status)
	assert.Equal(t, 1, reloaded.AttemptCount)
	assert.Equal(t, "connection reset", reloaded.ErrorMessage)
}

func TestProcessBatchExhaustedAttemptsFail(t *testing.T) {
	f := newFixture(t)
	f.fake.sendErr = transport.ErrRateLimited
	entry := f.enqueue(t, "lead@example.com", model.DefaultMaxAttempts-1)

	_, err := f.engine.ProcessBatch(context.Background(), 0)
	require.NoError(t, err)

	reloaded, err := f.repo.EntryByTrackingID(entry.TrackingID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusFailed, reloaded.Status)
	assert.Equal(t, model.DefaultMaxAttempts, reloaded.AttemptCount)
}

func TestProcessBatchDisconnectedAccountFailsEntry(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.UpdateAccountStatus(f.account.ID, model.AccountStatusDisconnected, ""))
	entry := f.enqueue(t, "lead@example.com", 0)

	result, err := f.engine.ProcessBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, f.fake.sent)

	reloaded, err := f.repo.EntryByTrackingID(entry.TrackingID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusFailed, reloaded.Status)
	assert.Equal(t, "Email account is not connected", reloaded.ErrorMessage)
}

func TestProcessBatchEmptyQueue(t *testing.T) {
	f := newFixture(t)

	result, err := f.engine.ProcessBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
}
