package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// GmailTransport sends mail through the Gmail API and drives the Google
// OAuth endpoints for token exchange and refresh.
type GmailTransport struct {
	config      *oauth2.Config
	sendTimeout time.Duration
}

// NewGmailTransport creates a Gmail transport from OAuth client credentials.
func NewGmailTransport(clientID, clientSecret, redirectURL string, sendTimeout time.Duration) *GmailTransport {
	return &GmailTransport{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes: []string{
				gmail.GmailSendScope,
				"https://www.googleapis.com/auth/userinfo.email",
			},
			Endpoint: google.Endpoint,
		},
		sendTimeout: sendTimeout,
	}
}

// AuthCodeURL returns the consent URL for connecting a new account. Offline
// access and forced consent are required so Google issues a refresh token.
func (t *GmailTransport) AuthCodeURL(state string) string {
	return t.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Send transmits one message and returns the Gmail message id.
func (t *GmailTransport) Send(ctx context.Context, accessToken string, msg *Message) (string, error) {
	if t.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.sendTimeout)
		defer cancel()
	}

	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	service, err := gmail.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return "", fmt.Errorf("failed to create Gmail service: %w", err)
	}

	sent, err := service.Users.Messages.Send("me", &gmail.Message{Raw: BuildMIME(msg)}).Context(ctx).Do()
	if err != nil {
		return "", classifyAPIError(err)
	}
	if sent.Id == "" {
		return "", fmt.Errorf("no message id returned from Gmail API")
	}

	return sent.Id, nil
}

// Refresh exchanges a refresh token for a new access token. The refresh
// token itself is retained by the caller; Google does not rotate it here.
func (t *GmailTransport) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	source := t.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	tok, err := source.Token()
	if err != nil {
		return nil, classifyOAuthError(err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("no access token returned from token refresh")
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(time.Hour)
	}

	return &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: refreshToken,
		Expiry:       expiry,
	}, nil
}

// ExchangeAuthCode exchanges an authorization code for tokens.
func (t *GmailTransport) ExchangeAuthCode(ctx context.Context, code string) (*Token, error) {
	tok, err := t.config.Exchange(ctx, code)
	if err != nil {
		return nil, classifyOAuthError(err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("no access token returned from Google")
	}
	if tok.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token returned from Google; ensure offline access and consent prompt")
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(time.Hour)
	}

	scope, _ := tok.Extra("scope").(string)

	return &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       expiry,
		Scope:        scope,
	}, nil
}

// UserInfo returns the email address behind an access token.
func (t *GmailTransport) UserInfo(ctx context.Context, accessToken string) (string, error) {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	service, err := oauth2api.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return "", fmt.Errorf("failed to create OAuth2 service: %w", err)
	}

	info, err := service.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", classifyAPIError(err)
	}
	if info.Email == "" {
		return "", fmt.Errorf("email not found in user info")
	}

	return info.Email, nil
}

func classifyAPIError(err error) error {
	if apiErr, ok := err.(*googleapi.Error); ok {
		switch {
		case apiErr.Code == 429:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case apiErr.Code == 403 && (strings.Contains(apiErr.Message, "quota") || strings.Contains(apiErr.Message, "rate")):
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case apiErr.Code == 401:
			return fmt.Errorf("%w: %v", ErrAuthentication, err)
		}
	}
	return err
}

func classifyOAuthError(err error) error {
	if retrieveErr, ok := err.(*oauth2.RetrieveError); ok {
		body := string(retrieveErr.Body)
		if strings.Contains(body, "invalid_grant") || strings.Contains(body, "revoked") {
			return fmt.Errorf("%w: refresh token has been revoked or expired", ErrAuthentication)
		}
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode == 429 {
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
	}
	if strings.Contains(err.Error(), "invalid_grant") {
		return fmt.Errorf("%w: refresh token has been revoked or expired", ErrAuthentication)
	}
	return fmt.Errorf("token request failed: %w", err)
}
