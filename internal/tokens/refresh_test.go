package tokens

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
	"coldflow/internal/repository"
	"coldflow/internal/transport"
	"coldflow/internal/vault"
)

// fakeTransport implements transport.Transport with canned refresh results.
type fakeTransport struct {
	refreshErr   error
	issuedToken  string
	refreshCalls int
}

func (f *fakeTransport) Send(ctx context.Context, accessToken string, msg *transport.Message) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeTransport) Refresh(ctx context.Context, refreshToken string) (*transport.Token, error) {
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &transport.Token{
		AccessToken: f.issuedToken,
		Expiry:      time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeTransport) ExchangeAuthCode(ctx context.Context, code string) (*transport.Token, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTransport) UserInfo(ctx context.Context, accessToken string) (string, error) {
	return "", errors.New("not implemented")
}

func newTestManager(t *testing.T, tr transport.Transport) (*Manager, *repository.Repository, *vault.Vault) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.EmailAccount{}))
	repo := repository.New(db)

	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x2a}, 32))
	v, err := vault.New(key)
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	registry := transport.Registry{model.ProviderGmail: tr}
	return NewManager(repo, v, registry, 4, log), repo, v
}

func seedAccount(t *testing.T, repo *repository.Repository, v *vault.Vault, expiresAt time.Time, refreshToken string) *model.EmailAccount {
	t.Helper()
	account := &model.EmailAccount{
		ID:         uuid.NewString(),
		UserID:     "user-1",
		Email:      "sender@example.com",
		Provider:   model.ProviderGmail,
		Status:     model.AccountStatusConnected,
		DailyQuota: 500,
	}
	enc, err := v.Encrypt("access-old")
	require.NoError(t, err)
	account.EncryptedAccessToken = enc
	if refreshToken != "" {
		enc, err = v.Encrypt(refreshToken)
		require.NoError(t, err)
		account.EncryptedRefreshToken = enc
	}
	account.TokenExpiresAt = &expiresAt
	require.NoError(t, repo.CreateAccount(account))
	return account
}

func TestAccessTokenFreshTokenSkipsRefresh(t *testing.T) {
	fake := &fakeTransport{issuedToken: "access-new"}
	m, repo, v := newTestManager(t, fake)
	account := seedAccount(t, repo, v, time.Now().Add(time.Hour), "refresh-1")

	token, err := m.AccessToken(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, "access-old", token)
	assert.Equal(t, 0, fake.refreshCalls)
}

func TestAccessTokenStaleTokenRefreshesInline(t *testing.T) {
	fake := &fakeTransport{issuedToken: "access-new"}
	m, repo, v := newTestManager(t, fake)
	account := seedAccount(t, repo, v, time.Now().Add(time.Minute), "refresh-1")

	token, err := m.AccessToken(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, "access-new", token)
	assert.Equal(t, 1, fake.refreshCalls)

	reloaded, err := repo.GetAccount(account.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AccountStatusConnected, reloaded.Status)
	assert.True(t, reloaded.TokenExpiresAt.After(time.Now().Add(30*time.Minute)))

	// stored refresh token is unchanged when the provider does not rotate it
	stored, err := v.Decrypt(reloaded.EncryptedRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", stored)

	stored, err = v.Decrypt(reloaded.EncryptedAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "access-new", stored)
}

func TestRefreshRejectedGrantDisconnectsAccount(t *testing.T) {
	fake := &fakeTransport{refreshErr: transport.ErrAuthentication}
	m, repo, v := newTestManager(t, fake)
	account := seedAccount(t, repo, v, time.Now().Add(-time.Minute), "refresh-1")

	_, err := m.AccessToken(context.Background(), account)
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrAuthentication)

	reloaded, err := repo.GetAccount(account.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AccountStatusDisconnected, reloaded.Status)
	assert.Contains(t, reloaded.ErrorMessage, "Reauthorization required")
}

func TestRefreshTransientFailureMarksError(t *testing.T) {
	fake := &fakeTransport{refreshErr: errors.New("connection reset")}
	m, repo, v := newTestManager(t, fake)
	account := seedAccount(t, repo, v, time.Now().Add(-time.Minute), "refresh-1")

	_, err := m.AccessToken(context.Background(), account)
	require.Error(t, err)

	reloaded, err := repo.GetAccount(account.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AccountStatusError, reloaded.Status)
	assert.Contains(t, reloaded.ErrorMessage, "Token refresh failed")
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	fake := &fakeTransport{issuedToken: "access-new"}
	m, repo, v := newTestManager(t, fake)
	account := seedAccount(t, repo, v, time.Now().Add(-time.Minute), "")

	_, err := m.AccessToken(context.Background(), account)
	assert.ErrorIs(t, err, ErrNoRefreshToken)

	reloaded, err := repo.GetAccount(account.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AccountStatusDisconnected, reloaded.Status)
}

func TestRefreshExpiringBatchIsolatesFailures(t *testing.T) {
	fake := &fakeTransport{issuedToken: "access-new"}
	m, repo, v := newTestManager(t, fake)

	seedAccount(t, repo, v, time.Now().Add(time.Minute), "refresh-ok")
	broken := seedAccount(t, repo, v, time.Now().Add(time.Minute), "refresh-broken")
	// corrupt the stored refresh token so only this account fails
	require.NoError(t, repo.UpdateAccountTokens(broken.ID, broken.EncryptedAccessToken, "not-base64!!", *broken.TokenExpiresAt))
	seedAccount(t, repo, v, time.Now().Add(2*time.Hour), "refresh-fresh")

	result, err := m.RefreshExpiringBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Checked)
	assert.Equal(t, 1, result.Refreshed)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, broken.ID, result.Errors[0].AccountID)
}
