// Package engage records engagement signals (opens, clicks, unsubscribes)
// keyed by the per-message tracking id.
package engage

import (
	"strings"

	"github.com/sirupsen/logrus"

	"coldflow/internal/metrics"
	"coldflow/internal/model"
	"coldflow/internal/repository"
)

// Service resolves tracking ids to queue entries and turns signals into
// events and campaign counter updates. Unknown tracking ids are ignored
// without error so the public endpoints never leak which ids exist.
type Service struct {
	repo   *repository.Repository
	logger *logrus.Logger
}

func NewService(repo *repository.Repository, logger *logrus.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// RecordOpen stores an open event. Every open is recorded, but the campaign
// open counter moves only on the first open per message, so repeat renders
// of the pixel do not inflate the aggregate.
func (s *Service) RecordOpen(trackingID, ip, userAgent string) error {
	entry, err := s.repo.EntryByTrackingID(trackingID)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}

	seen, err := s.repo.EventExists(entry.TrackingID, model.EventOpened)
	if err != nil {
		return err
	}
	if err := s.repo.CreateEvent(entry.ID, entry.TrackingID, model.EventOpened, ip, userAgent,
		map[string]interface{}{"firstOpen": !seen}); err != nil {
		return err
	}
	metrics.TrackingEvents.WithLabelValues(model.EventOpened).Inc()

	if !seen {
		if err := s.repo.IncrementCampaignStat(entry.CampaignID, model.StatOpen); err != nil {
			return err
		}
	}
	return nil
}

// RecordClick stores a click event with the target url in its metadata.
// Unlike opens, every click moves the campaign counter; repeat clicks are a
// deliberate engagement signal, repeat pixel renders are not.
func (s *Service) RecordClick(trackingID, targetURL, ip, userAgent string) error {
	entry, err := s.repo.EntryByTrackingID(trackingID)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}

	if err := s.repo.CreateEvent(entry.ID, entry.TrackingID, model.EventClicked, ip, userAgent,
		map[string]interface{}{"url": targetURL}); err != nil {
		return err
	}
	metrics.TrackingEvents.WithLabelValues(model.EventClicked).Inc()

	return s.repo.IncrementCampaignStat(entry.CampaignID, model.StatClick)
}

// UnsubscribeResult reports what one unsubscribe request changed.
type UnsubscribeResult struct {
	Email               string `json:"email"`
	AlreadyUnsubscribed bool   `json:"alreadyUnsubscribed"`
	CancelledEmails     int64  `json:"cancelledEmails"`
}

// Unsubscribe suppresses the recipient behind a tracking id and cascades:
// every other pending entry for that recipient is cancelled, and the
// originating entry, if somehow still pending, is failed as well without
// counting toward the cancellation total. The whole cascade is one
// transaction. Unknown tracking ids return a nil result.
func (s *Service) Unsubscribe(trackingID, ip, userAgent string) (*UnsubscribeResult, error) {
	entry, err := s.repo.EntryByTrackingID(trackingID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	result := &UnsubscribeResult{Email: entry.RecipientEmail}
	err = s.repo.Transaction(func(tx *repository.Repository) error {
		created, err := tx.AddUnsubscribe(entry.RecipientEmail, "user_request", &entry.CampaignID)
		if err != nil {
			return err
		}
		result.AlreadyUnsubscribed = !created

		cancelled, err := tx.CancelPendingForRecipient(entry.RecipientEmail, entry.ID)
		if err != nil {
			return err
		}
		result.CancelledEmails = cancelled

		// the message the recipient acted on must not send either
		if _, err := tx.CancelPendingForRecipient(entry.RecipientEmail, ""); err != nil {
			return err
		}

		if !created {
			return nil
		}
		if err := tx.CreateEvent(entry.ID, entry.TrackingID, model.EventUnsubscribed, ip, userAgent,
			map[string]interface{}{"cancelledEmails": cancelled}); err != nil {
			return err
		}
		return tx.IncrementCampaignStat(entry.CampaignID, model.StatUnsubscribe)
	})
	if err != nil {
		return nil, err
	}

	metrics.TrackingEvents.WithLabelValues(model.EventUnsubscribed).Inc()
	s.logger.WithFields(logrus.Fields{
		"email":     result.Email,
		"cancelled": result.CancelledEmails,
	}).Info("Recipient unsubscribed")

	return result, nil
}

// SuppressEmail adds an address to the suppression set directly, without a
// tracking id, and cancels every pending entry addressed to it.
func (s *Service) SuppressEmail(email, reason string) (*UnsubscribeResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	result := &UnsubscribeResult{Email: email}

	err := s.repo.Transaction(func(tx *repository.Repository) error {
		created, err := tx.AddUnsubscribe(email, reason, nil)
		if err != nil {
			return err
		}
		result.AlreadyUnsubscribed = !created

		cancelled, err := tx.CancelPendingForRecipient(email, "")
		if err != nil {
			return err
		}
		result.CancelledEmails = cancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Resubscribe removes an address from the suppression set.
func (s *Service) Resubscribe(email string) (bool, error) {
	return s.repo.RemoveUnsubscribe(email)
}
