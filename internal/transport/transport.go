package transport

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy for provider calls. Callers classify with errors.Is;
// anything not matching these sentinels is treated as transient and retried
// within the per-entry attempt budget.
var (
	// ErrRateLimited indicates the provider rejected the call for quota or
	// rate reasons.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrAuthentication indicates revoked or invalid credentials
	// (invalid_grant and friends). Not retryable without re-authorization.
	ErrAuthentication = errors.New("provider authentication failed")
)

// Message is one outbound email, fully rendered. Tracking instrumentation
// happens before the message reaches a Transport.
type Message struct {
	From     string
	FromName string
	To       string
	ToName   string
	Subject  string
	BodyHTML string
	BodyText string
}

// Token is the result of an OAuth exchange or refresh.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Scope        string
}

// Transport abstracts a mail provider. Send transmits one message using a
// decrypted access token and returns the provider message id. The OAuth
// surface (Refresh, ExchangeAuthCode, UserInfo) lives here as well because
// credentials and sending belong to the same provider.
type Transport interface {
	Send(ctx context.Context, accessToken string, msg *Message) (string, error)
	Refresh(ctx context.Context, refreshToken string) (*Token, error)
	ExchangeAuthCode(ctx context.Context, code string) (*Token, error)
	UserInfo(ctx context.Context, accessToken string) (string, error)
}
