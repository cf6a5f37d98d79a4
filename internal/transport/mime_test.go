package transport

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeMIME(t *testing.T, raw string) string {
	t.Helper()
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	require.NoError(t, err)
	return string(decoded)
}

func TestBuildMIMEPlainAndHTML(t *testing.T) {
	msg := &Message{
		From:     "sender@example.com",
		FromName: "Sender",
		To:       "rcpt@example.com",
		ToName:   "Recipient",
		Subject:  "Hello",
		BodyHTML: "<p>Hi there</p>",
		BodyText: "Hi there",
	}

	mime := decodeMIME(t, BuildMIME(msg))

	assert.Contains(t, mime, "From: \"Sender\" <sender@example.com>")
	assert.Contains(t, mime, "To: \"Recipient\" <rcpt@example.com>")
	assert.Contains(t, mime, "Subject: Hello")
	assert.Contains(t, mime, "Content-Type: multipart/alternative")
	assert.Contains(t, mime, "Content-Type: text/plain; charset=UTF-8")
	assert.Contains(t, mime, "Content-Type: text/html; charset=UTF-8")
	assert.Contains(t, mime, "<p>Hi there</p>")
}

func TestBuildMIMETextOnly(t *testing.T) {
	msg := &Message{
		From:     "sender@example.com",
		To:       "rcpt@example.com",
		Subject:  "Plain",
		BodyText: "just text",
	}

	mime := decodeMIME(t, BuildMIME(msg))

	assert.Contains(t, mime, "From: sender@example.com")
	assert.Contains(t, mime, "To: rcpt@example.com")
	assert.NotContains(t, mime, "text/html")
	assert.Contains(t, mime, "just text")
}
