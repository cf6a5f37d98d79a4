// Package tokens keeps OAuth access tokens usable: it hands out decrypted
// access tokens, refreshing stale ones inline, and runs the proactive
// background sweep over accounts approaching expiry.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"coldflow/internal/model"
	"coldflow/internal/repository"
	"coldflow/internal/transport"
	"coldflow/internal/vault"
)

// freshWindow is the margin before expiry inside which a token is already
// considered stale. Matches the window the repository uses to pick sweep
// candidates.
const freshWindow = 5 * time.Minute

// ErrNoRefreshToken is returned when an account has no stored refresh token,
// so the only recovery is a full reauthorization.
var ErrNoRefreshToken = errors.New("account has no refresh token")

// Manager refreshes OAuth tokens through the provider transports and keeps
// the encrypted copies in the database current.
type Manager struct {
	repo       *repository.Repository
	vault      *vault.Vault
	transports transport.Registry
	logger     *logrus.Logger

	// maxConcurrent bounds the background sweep fan-out.
	maxConcurrent int
}

func NewManager(repo *repository.Repository, v *vault.Vault, transports transport.Registry, maxConcurrent int, logger *logrus.Logger) *Manager {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Manager{
		repo:          repo,
		vault:         v,
		transports:    transports,
		logger:        logger,
		maxConcurrent: maxConcurrent,
	}
}

// AccessToken returns a decrypted access token that is valid for at least
// the fresh window. A stale token is refreshed inline before returning.
func (m *Manager) AccessToken(ctx context.Context, account *model.EmailAccount) (string, error) {
	if account.TokenExpiresAt != nil && account.TokenExpiresAt.After(time.Now().Add(freshWindow)) {
		token, err := m.vault.Decrypt(account.EncryptedAccessToken)
		if err != nil {
			return "", fmt.Errorf("failed to decrypt access token for account %s: %w", account.ID, err)
		}
		return token, nil
	}

	return m.refreshAccount(ctx, account)
}

// RefreshAccount forces a refresh for one account regardless of expiry and
// returns the account with its new credentials applied.
func (m *Manager) RefreshAccount(ctx context.Context, accountID string) (*model.EmailAccount, error) {
	account, err := m.repo.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, nil
	}
	if _, err := m.refreshAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// RefreshResult summarizes one background sweep.
type RefreshResult struct {
	Checked   int            `json:"checked"`
	Refreshed int            `json:"refreshed"`
	Failed    int            `json:"failed"`
	Errors    []AccountError `json:"errors,omitempty"`
}

// AccountError reports a per-account failure without aborting the sweep.
type AccountError struct {
	AccountID string `json:"accountId"`
	Email     string `json:"email"`
	Error     string `json:"error"`
}

// RefreshExpiringBatch refreshes every connected account whose token expires
// within the fresh window. Accounts are processed with bounded parallelism
// and failures are isolated per account.
func (m *Manager) RefreshExpiringBatch(ctx context.Context) (*RefreshResult, error) {
	accounts, err := m.repo.AccountsNeedingRefresh(time.Now())
	if err != nil {
		return nil, err
	}

	result := &RefreshResult{Checked: len(accounts)}
	if len(accounts) == 0 {
		return result, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, m.maxConcurrent)
	)
	for i := range accounts {
		account := accounts[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			_, err := m.refreshAccount(ctx, &account)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, AccountError{
					AccountID: account.ID,
					Email:     account.Email,
					Error:     err.Error(),
				})
				return
			}
			result.Refreshed++
		}()
	}
	wg.Wait()

	m.logger.WithFields(logrus.Fields{
		"checked":   result.Checked,
		"refreshed": result.Refreshed,
		"failed":    result.Failed,
	}).Info("Token refresh sweep completed")

	return result, nil
}

// refreshAccount exchanges the stored refresh token for a new access token
// and persists the encrypted result. On failure the account status records
// what happened: a rejected grant disconnects the account, anything else
// marks it errored but recoverable.
func (m *Manager) refreshAccount(ctx context.Context, account *model.EmailAccount) (string, error) {
	log := m.logger.WithFields(logrus.Fields{
		"account_id": account.ID,
		"email":      account.Email,
	})

	if account.EncryptedRefreshToken == "" {
		m.markFailure(account.ID, model.AccountStatusDisconnected, "Reauthorization required: no refresh token stored")
		return "", ErrNoRefreshToken
	}

	refreshToken, err := m.vault.Decrypt(account.EncryptedRefreshToken)
	if err != nil {
		m.markFailure(account.ID, model.AccountStatusError, "Token refresh failed: stored refresh token is unreadable")
		return "", fmt.Errorf("failed to decrypt refresh token for account %s: %w", account.ID, err)
	}

	tr, err := m.transports.For(account.Provider)
	if err != nil {
		m.markFailure(account.ID, model.AccountStatusError, "Token refresh failed: "+err.Error())
		return "", err
	}

	token, err := tr.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, transport.ErrAuthentication) {
			// Grant revoked or expired. Only reauthorization can recover.
			m.markFailure(account.ID, model.AccountStatusDisconnected, "Reauthorization required: refresh token was rejected")
			log.WithError(err).Warn("Refresh token rejected, account disconnected")
		} else {
			m.markFailure(account.ID, model.AccountStatusError, "Token refresh failed: "+err.Error())
			log.WithError(err).Error("Token refresh failed")
		}
		return "", fmt.Errorf("token refresh failed for account %s: %w", account.ID, err)
	}

	encryptedAccess, err := m.vault.Encrypt(token.AccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt refreshed access token: %w", err)
	}

	// Providers rarely rotate the refresh token; keep the stored one unless
	// a new one was issued.
	encryptedRefresh := account.EncryptedRefreshToken
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		if encryptedRefresh, err = m.vault.Encrypt(token.RefreshToken); err != nil {
			return "", fmt.Errorf("failed to encrypt rotated refresh token: %w", err)
		}
	}

	if err := m.repo.UpdateAccountTokens(account.ID, encryptedAccess, encryptedRefresh, token.Expiry); err != nil {
		return "", err
	}
	if err := m.repo.UpdateAccountStatus(account.ID, model.AccountStatusConnected, ""); err != nil {
		return "", err
	}

	account.EncryptedAccessToken = encryptedAccess
	account.EncryptedRefreshToken = encryptedRefresh
	expiry := token.Expiry
	account.TokenExpiresAt = &expiry
	account.Status = model.AccountStatusConnected

	log.WithField("expires_at", token.Expiry).Info("Access token refreshed")
	return token.AccessToken, nil
}

// markFailure records a status flip; persistence errors here are logged and
// swallowed because the refresh error itself is what the caller needs.
func (m *Manager) markFailure(accountID, status, message string) {
	if err := m.repo.UpdateAccountStatus(accountID, status, message); err != nil {
		m.logger.WithError(err).WithField("account_id", accountID).
			Error("Failed to record token refresh failure")
	}
}
