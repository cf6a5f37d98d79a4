// Package quota enforces per-account daily send budgets.
package quota

import (
	"fmt"
	"time"

	"coldflow/internal/model"
	"coldflow/internal/repository"
)

// Tracker answers whether an account may send right now and records sends
// against its daily budget. The limit is soft: the check and the increment
// are separate statements, so concurrent workers can overshoot by a few
// messages. That is acceptable for provider quotas, which are themselves
// fuzzy.
type Tracker struct {
	repo *repository.Repository
}

func NewTracker(repo *repository.Repository) *Tracker {
	return &Tracker{repo: repo}
}

// HasAvailable reports whether the account has budget left. An account whose
// reset timestamp is in the past is treated as having a full budget; the
// actual counter reset is left to the maintenance pass.
func (t *Tracker) HasAvailable(account *model.EmailAccount) bool {
	if account.QuotaResetAt != nil && account.QuotaResetAt.Before(time.Now()) {
		return true
	}
	return account.QuotaUsedToday < account.DailyQuota
}

// RecordSend charges one send to the account with a single atomic increment.
func (t *Tracker) RecordSend(accountID string) error {
	if err := t.repo.IncrementQuotaUsage(accountID); err != nil {
		return fmt.Errorf("failed to record send against quota: %w", err)
	}
	return nil
}

// ResetDue zeroes usage on every account whose reset time has passed and
// schedules the next reset at the following midnight UTC.
func (t *Tracker) ResetDue() (int64, error) {
	return t.repo.ResetDueQuotas(time.Now())
}
