// Package ingest turns a campaign definition into durable queue entries.
package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"coldflow/internal/model"
	"coldflow/internal/repository"
)

// MaxRecipients caps a single campaign submission.
const MaxRecipients = 10000

// Validation errors surfaced to the API layer.
var (
	ErrNoRecipients        = errors.New("campaign has no recipients")
	ErrTooManyRecipients   = fmt.Errorf("campaign exceeds %d recipients", MaxRecipients)
	ErrAccountNotFound     = errors.New("email account not found")
	ErrAccountNotConnected = errors.New("email account is not connected")
	ErrAccountForbidden    = errors.New("email account belongs to another user")
)

// Recipient is one target of a campaign with its personalization variables.
type Recipient struct {
	Email     string            `json:"email" binding:"required"`
	Name      string            `json:"name"`
	Variables map[string]string `json:"variables"`
}

// CampaignInput is a full campaign submission.
type CampaignInput struct {
	UserID       string      `json:"userId"`
	Name         string      `json:"name" binding:"required"`
	AccountID    string      `json:"accountId" binding:"required"`
	Subject      string      `json:"subject" binding:"required"`
	BodyHTML     string      `json:"bodyHtml"`
	BodyText     string      `json:"bodyText"`
	ScheduledFor *time.Time  `json:"scheduledFor"`
	Priority     int         `json:"priority"`
	Recipients   []Recipient `json:"recipients" binding:"required"`
}

// Service validates submissions, renders per-recipient templates, and writes
// the campaign plus its queue entries.
type Service struct {
	repo   *repository.Repository
	logger *logrus.Logger
}

func NewService(repo *repository.Repository, logger *logrus.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Create ingests one campaign. Templates are rendered once per recipient with
// {{key}} substitution, every entry gets its own tracking id, and the
// campaign moves from draft to scheduled only after all entries are durable.
func (s *Service) Create(input *CampaignInput) (*model.Campaign, error) {
	if len(input.Recipients) == 0 {
		return nil, ErrNoRecipients
	}
	if len(input.Recipients) > MaxRecipients {
		return nil, ErrTooManyRecipients
	}

	account, err := s.repo.GetAccount(input.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	if input.UserID != "" && account.UserID != input.UserID {
		return nil, ErrAccountForbidden
	}
	if account.Status != model.AccountStatusConnected {
		return nil, ErrAccountNotConnected
	}

	scheduledFor := time.Now()
	if input.ScheduledFor != nil {
		scheduledFor = *input.ScheduledFor
	}

	campaign := &model.Campaign{
		ID:              uuid.NewString(),
		UserID:          input.UserID,
		EmailAccountID:  input.AccountID,
		Name:            input.Name,
		Subject:         input.Subject,
		BodyHTML:        input.BodyHTML,
		BodyText:        input.BodyText,
		Status:          model.CampaignStatusDraft,
		ScheduledFor:    &scheduledFor,
		TotalRecipients: len(input.Recipients),
	}

	entries := make([]model.QueueEntry, 0, len(input.Recipients))
	for _, recipient := range input.Recipients {
		entries = append(entries, model.QueueEntry{
			ID:             uuid.NewString(),
			CampaignID:     campaign.ID,
			EmailAccountID: input.AccountID,
			RecipientEmail: strings.ToLower(strings.TrimSpace(recipient.Email)),
			RecipientName:  recipient.Name,
			Subject:        render(input.Subject, recipient),
			BodyHTML:       render(input.BodyHTML, recipient),
			BodyText:       render(input.BodyText, recipient),
			ScheduledFor:   scheduledFor,
			Status:         model.QueueStatusPending,
			Priority:       input.Priority,
			MaxAttempts:    model.DefaultMaxAttempts,
			TrackingID:     uuid.NewString(),
		})
	}

	err = s.repo.Transaction(func(tx *repository.Repository) error {
		if err := tx.CreateCampaign(campaign); err != nil {
			return err
		}
		if err := tx.BulkCreateEntries(entries); err != nil {
			return err
		}
		return tx.UpdateCampaignStatus(campaign.ID, model.CampaignStatusScheduled)
	})
	if err != nil {
		return nil, err
	}
	campaign.Status = model.CampaignStatusScheduled

	s.logger.WithFields(logrus.Fields{
		"campaign_id": campaign.ID,
		"recipients":  len(entries),
		"scheduled":   scheduledFor,
	}).Info("Campaign ingested")

	return campaign, nil
}

// render substitutes {{key}} placeholders with recipient variables. The
// recipient's name and email are always available even when not listed in
// the variables map.
func render(template string, recipient Recipient) string {
	if template == "" {
		return template
	}
	out := template
	for key, value := range recipient.Variables {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
	}
	if _, ok := recipient.Variables["name"]; !ok {
		out = strings.ReplaceAll(out, "{{name}}", recipient.Name)
	}
	if _, ok := recipient.Variables["email"]; !ok {
		out = strings.ReplaceAll(out, "{{email}}", recipient.Email)
	}
	return out
}
