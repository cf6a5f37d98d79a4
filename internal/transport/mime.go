package transport

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// BuildMIME constructs a multipart/alternative MIME message and returns it
// base64url-encoded without padding, as the Gmail API expects for the raw
// message field.
func BuildMIME(msg *Message) string {
	boundary := fmt.Sprintf("----=_Part_%d", time.Now().UnixNano())

	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: %s\r\n", formatAddress(msg.FromName, msg.From)))
	b.WriteString(fmt.Sprintf("To: %s\r\n", formatAddress(msg.ToName, msg.To)))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
	b.WriteString("\r\n")

	b.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 7bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.BodyText)
	b.WriteString("\r\n")

	if msg.BodyHTML != "" {
		b.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
		b.WriteString("Content-Transfer-Encoding: 7bit\r\n")
		b.WriteString("\r\n")
		b.WriteString(msg.BodyHTML)
		b.WriteString("\r\n")
	}

	b.WriteString(fmt.Sprintf("--%s--", boundary))

	return base64.RawURLEncoding.EncodeToString([]byte(b.String()))
}

func formatAddress(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%q <%s>", name, email)
}
