package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// onePixelPNG is a 1x1 transparent PNG served by the open-tracking endpoint.
var onePixelPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x62, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

// TrackingPixel records an open and always serves the pixel, even for
// unknown tracking ids or storage errors, so broken tracking never breaks
// message rendering.
func (h *Handlers) TrackingPixel(c *gin.Context) {
	trackingID := strings.TrimSuffix(c.Param("trackingId"), ".png")

	if err := h.engage.RecordOpen(trackingID, c.ClientIP(), c.Request.UserAgent()); err != nil {
		h.logger.WithError(err).WithField("tracking_id", trackingID).Error("Failed to record open")
	}

	c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Data(http.StatusOK, "image/png", onePixelPNG)
}

// TrackingClick records a click and redirects to the original target. The
// target must be an absolute http or https URL; the redirect happens even
// when the tracking id is unknown so stale links keep working.
func (h *Handlers) TrackingClick(c *gin.Context) {
	trackingID := c.Param("trackingId")
	target := c.Query("url")

	parsed, err := url.Parse(target)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_url",
			Message: "Redirect target must be an absolute http or https URL",
			Code:    http.StatusBadRequest,
		})
		return
	}

	if err := h.engage.RecordClick(trackingID, target, c.ClientIP(), c.Request.UserAgent()); err != nil {
		h.logger.WithError(err).WithField("tracking_id", trackingID).Error("Failed to record click")
	}

	c.Redirect(http.StatusFound, target)
}

const unsubscribeConfirmPage = `<!DOCTYPE html>
<html>
<head><title>Unsubscribe</title></head>
<body style="font-family: sans-serif; max-width: 480px; margin: 80px auto; text-align: center;">
<h1>Unsubscribe</h1>
<p>Click below to stop receiving emails from this sender.</p>
<form method="POST">
<button type="submit" style="padding: 12px 24px; font-size: 16px;">Unsubscribe</button>
</form>
</body>
</html>`

const unsubscribeDonePage = `<!DOCTYPE html>
<html>
<head><title>Unsubscribed</title></head>
<body style="font-family: sans-serif; max-width: 480px; margin: 80px auto; text-align: center;">
<h1>You have been unsubscribed</h1>
<p>You will not receive further emails from this sender.</p>
</body>
</html>`

const unsubscribeNotFoundPage = `<!DOCTYPE html>
<html>
<head><title>Link not found</title></head>
<body style="font-family: sans-serif; max-width: 480px; margin: 80px auto; text-align: center;">
<h1>Link not found</h1>
<p>This unsubscribe link is invalid or has expired.</p>
</body>
</html>`

const unsubscribeErrorPage = `<!DOCTYPE html>
<html>
<head><title>Something went wrong</title></head>
<body style="font-family: sans-serif; max-width: 480px; margin: 80px auto; text-align: center;">
<h1>Something went wrong</h1>
<p>We could not process your request. Please try again later.</p>
</body>
</html>`

// TrackingUnsubscribeConfirm renders the confirmation page for a known
// tracking id; the suppression itself happens on the POST.
func (h *Handlers) TrackingUnsubscribeConfirm(c *gin.Context) {
	entry, err := h.repo.EntryByTrackingID(c.Param("trackingId"))
	if err != nil {
		h.logger.WithError(err).Error("Failed to resolve unsubscribe link")
		c.Data(http.StatusInternalServerError, "text/html; charset=utf-8", []byte(unsubscribeErrorPage))
		return
	}
	if entry == nil {
		c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte(unsubscribeNotFoundPage))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(unsubscribeConfirmPage))
}

// TrackingUnsubscribe suppresses the recipient and cancels their pending
// emails, then renders the confirmation.
func (h *Handlers) TrackingUnsubscribe(c *gin.Context) {
	trackingID := c.Param("trackingId")

	result, err := h.engage.Unsubscribe(trackingID, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		h.logger.WithError(err).WithField("tracking_id", trackingID).Error("Failed to process unsubscribe")
		c.Data(http.StatusInternalServerError, "text/html; charset=utf-8", []byte(unsubscribeErrorPage))
		return
	}
	if result == nil {
		c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte(unsubscribeNotFoundPage))
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(unsubscribeDonePage))
}
