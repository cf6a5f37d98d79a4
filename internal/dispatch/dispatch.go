// Package dispatch drains the email queue: it claims due entries, renders
// tracking instrumentation, sends through the provider transport, and
// classifies failures into retries and terminal errors.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"coldflow/internal/metrics"
	"coldflow/internal/model"
	"coldflow/internal/quota"
	"coldflow/internal/repository"
	"coldflow/internal/tokens"
	"coldflow/internal/tracking"
	"coldflow/internal/transport"
)

// Engine runs one dispatch cycle at a time. Multiple engines may run against
// the same database; the conditional claim guarantees each entry is sent at
// most once.
type Engine struct {
	repo       *repository.Repository
	tracker    *quota.Tracker
	tokens     *tokens.Manager
	transports transport.Registry
	logger     *logrus.Logger

	batchSize       int
	trackingBaseURL string
	sendTimeout     time.Duration
}

func NewEngine(
	repo *repository.Repository,
	tracker *quota.Tracker,
	tokenManager *tokens.Manager,
	transports transport.Registry,
	batchSize int,
	trackingBaseURL string,
	sendTimeout time.Duration,
	logger *logrus.Logger,
) *Engine {
	if batchSize < 1 {
		batchSize = 50
	}
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}
	return &Engine{
		repo:            repo,
		tracker:         tracker,
		tokens:          tokenManager,
		transports:      transports,
		logger:          logger,
		batchSize:       batchSize,
		trackingBaseURL: trackingBaseURL,
		sendTimeout:     sendTimeout,
	}
}

// ProcessResult summarizes one dispatch cycle.
type ProcessResult struct {
	Processed int          `json:"processed"`
	Sent      int          `json:"sent"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	Errors    []EntryError `json:"errors,omitempty"`
}

// EntryError reports a per-entry failure without aborting the cycle.
type EntryError struct {
	EntryID   string `json:"entryId"`
	Recipient string `json:"recipient"`
	Error     string `json:"error"`
}

// ProcessBatch picks up due pending entries and works through them in order.
// Unsubscribed recipients are failed before claiming, accounts without quota
// defer their entries to a later cycle, and only successfully claimed entries
// reach the provider. A non-positive batchSize uses the configured default.
func (e *Engine) ProcessBatch(ctx context.Context, batchSize int) (*ProcessResult, error) {
	if batchSize < 1 {
		batchSize = e.batchSize
	}
	now := time.Now()
	entries, err := e.repo.NextPending(batchSize, now)
	if err != nil {
		return nil, err
	}

	metrics.QueueBatchSize.Observe(float64(len(entries)))
	result := &ProcessResult{}
	if len(entries) == 0 {
		return result, nil
	}

	// accounts repeat heavily within a batch; load each once
	accounts := map[string]*model.EmailAccount{}

	for i := range entries {
		entry := &entries[i]
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Processed++

		// the candidate read is not transactional with this loop
		if entry.ScheduledFor.After(time.Now()) {
			result.Skipped++
			continue
		}

		unsubscribed, err := e.repo.IsUnsubscribed(entry.RecipientEmail)
		if err != nil {
			e.recordError(result, entry, err)
			continue
		}
		if unsubscribed {
			if err := e.repo.MarkEntryFailed(entry.ID, "Recipient unsubscribed"); err != nil {
				e.recordError(result, entry, err)
				continue
			}
			result.Skipped++
			metrics.EmailsProcessed.WithLabelValues("skipped").Inc()
			continue
		}

		account, ok := accounts[entry.EmailAccountID]
		if !ok {
			if account, err = e.repo.GetAccount(entry.EmailAccountID); err != nil {
				e.recordError(result, entry, err)
				continue
			}
			accounts[entry.EmailAccountID] = account
		}
		if account == nil || account.Status != model.AccountStatusConnected {
			if err := e.repo.MarkEntryFailed(entry.ID, "Email account is not connected"); err != nil {
				e.recordError(result, entry, err)
				continue
			}
			result.Failed++
			metrics.EmailsProcessed.WithLabelValues("failed").Inc()
			continue
		}

		if !e.tracker.HasAvailable(account) {
			// leave the entry pending for a later cycle
			if err := e.repo.NoteQuotaDeferral(entry.ID); err != nil {
				e.recordError(result, entry, err)
				continue
			}
			result.Skipped++
			metrics.EmailsProcessed.WithLabelValues("skipped").Inc()
			continue
		}

		claimed, err := e.repo.ClaimEntry(entry.ID)
		if err != nil {
			e.recordError(result, entry, err)
			continue
		}
		if !claimed {
			// another worker took it between the read and the claim
			continue
		}

		if err := e.sendEntry(ctx, entry, account); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, EntryError{
				EntryID:   entry.ID,
				Recipient: entry.RecipientEmail,
				Error:     err.Error(),
			})
			continue
		}
		result.Sent++
		account.QuotaUsedToday++
	}

	e.logger.WithFields(logrus.Fields{
		"processed": result.Processed,
		"sent":      result.Sent,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
	}).Info("Queue batch processed")

	return result, nil
}

// sendEntry carries one claimed entry through token resolution, tracking
// instrumentation, and the provider call, then settles the entry state.
func (e *Engine) sendEntry(ctx context.Context, entry *model.QueueEntry, account *model.EmailAccount) error {
	log := e.logger.WithFields(logrus.Fields{
		"entry_id":  entry.ID,
		"recipient": entry.RecipientEmail,
		"account":   account.Email,
	})

	tr, err := e.transports.For(account.Provider)
	if err != nil {
		return e.settleFailure(entry, account, err, log)
	}

	accessToken, err := e.tokens.AccessToken(ctx, account)
	if err != nil {
		// token manager already recorded the account status
		return e.settleFailure(entry, account, err, log)
	}

	msg := &transport.Message{
		From:     account.Email,
		To:       entry.RecipientEmail,
		ToName:   entry.RecipientName,
		Subject:  entry.Subject,
		BodyHTML: tracking.Instrument(entry.BodyHTML, e.trackingBaseURL, entry.TrackingID),
		BodyText: entry.BodyText,
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()

	start := time.Now()
	providerMessageID, err := tr.Send(sendCtx, accessToken, msg)
	metrics.SendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return e.settleFailure(entry, account, err, log)
	}

	sentAt := time.Now()
	if err := e.repo.MarkEntrySent(entry.ID, sentAt); err != nil {
		return err
	}
	if err := e.repo.CreateEvent(entry.ID, entry.TrackingID, model.EventSent, "", "",
		map[string]interface{}{"providerMessageId": providerMessageID}); err != nil {
		log.WithError(err).Error("Failed to record sent event")
	}
	if err := e.repo.IncrementCampaignStat(entry.CampaignID, model.StatSent); err != nil {
		log.WithError(err).Error("Failed to increment campaign sent count")
	}
	if err := e.tracker.RecordSend(account.ID); err != nil {
		log.WithError(err).Error("Failed to record quota usage")
	}

	metrics.EmailsProcessed.WithLabelValues("sent").Inc()
	log.WithField("provider_message_id", providerMessageID).Info("Email sent")
	return nil
}

// settleFailure bumps the attempt counter and decides between a retry and a
// terminal failure. Authentication errors never retry: the account is marked
// and the entry fails immediately.
func (e *Engine) settleFailure(entry *model.QueueEntry, account *model.EmailAccount, sendErr error, log *logrus.Entry) error {
	now := time.Now()
	if err := e.repo.IncrementAttempt(entry.ID, now); err != nil {
		log.WithError(err).Error("Failed to increment attempt count")
	}
	attempts := entry.AttemptCount + 1

	switch {
	case errors.Is(sendErr, transport.ErrAuthentication):
		if err := e.repo.MarkEntryFailed(entry.ID, "Authentication failed: "+sendErr.Error()); err != nil {
			log.WithError(err).Error("Failed to mark entry failed")
		}
		if err := e.repo.UpdateAccountStatus(account.ID, model.AccountStatusError, "Authentication failed during send"); err != nil {
			log.WithError(err).Error("Failed to mark account errored")
		}
		account.Status = model.AccountStatusError
		metrics.EmailsProcessed.WithLabelValues("failed").Inc()
		log.WithError(sendErr).Error("Send failed with authentication error")

	case attempts >= entry.MaxAttempts:
		if err := e.repo.MarkEntryFailed(entry.ID, sendErr.Error()); err != nil {
			log.WithError(err).Error("Failed to mark entry failed")
		}
		metrics.EmailsProcessed.WithLabelValues("failed").Inc()
		log.WithError(sendErr).WithField("attempts", attempts).Error("Send failed, attempts exhausted")

	default:
		if err := e.repo.RequeueEntry(entry.ID, sendErr.Error()); err != nil {
			log.WithError(err).Error("Failed to requeue entry")
		}
		metrics.EmailsProcessed.WithLabelValues("requeued").Inc()
		log.WithError(sendErr).WithField("attempts", attempts).Warn("Send failed, entry requeued")
	}

	return fmt.Errorf("send failed for %s: %w", entry.RecipientEmail, sendErr)
}

func (e *Engine) recordError(result *ProcessResult, entry *model.QueueEntry, err error) {
	result.Failed++
	result.Errors = append(result.Errors, EntryError{
		EntryID:   entry.ID,
		Recipient: entry.RecipientEmail,
		Error:     err.Error(),
	})
	e.logger.WithError(err).WithField("entry_id", entry.ID).Error("Queue entry processing error")
}
