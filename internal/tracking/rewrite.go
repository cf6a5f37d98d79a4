package tracking

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Endpoint paths served by the tracking handlers. The rewriter and the
// router must agree on these.
const (
	PixelPath       = "/tracking/pixel"
	ClickPath       = "/tracking/click"
	UnsubscribePath = "/tracking/unsubscribe"
)

var hrefPattern = regexp.MustCompile(`(?i)<a\s+([^>]*\s+)?href=["']([^"']+)["']`)

// Instrument injects an open-tracking pixel and wraps hyperlinks with the
// click redirect for one rendered HTML body. An empty body is returned
// untouched; links that already point at the click endpoint are left alone
// to avoid double-wrapping.
func Instrument(html, baseURL, trackingID string) string {
	if html == "" || trackingID == "" {
		return html
	}
	html = rewriteLinks(html, baseURL, trackingID)
	return injectPixel(html, baseURL, trackingID)
}

func injectPixel(html, baseURL, trackingID string) string {
	pixel := fmt.Sprintf(
		`<img src="%s%s/%s.png" width="1" height="1" alt="" style="display:none;" />`,
		baseURL, PixelPath, trackingID,
	)
	if strings.Contains(html, "</body>") {
		return strings.Replace(html, "</body>", pixel+"</body>", 1)
	}
	return html + pixel
}

func rewriteLinks(html, baseURL, trackingID string) string {
	return hrefPattern.ReplaceAllStringFunc(html, func(match string) string {
		parts := hrefPattern.FindStringSubmatch(match)
		attrs, target := parts[1], parts[2]

		if strings.Contains(target, ClickPath+"/") {
			return match
		}

		wrapped := fmt.Sprintf("%s%s/%s?url=%s", baseURL, ClickPath, trackingID, url.QueryEscape(target))
		return fmt.Sprintf(`<a %shref="%s"`, attrs, wrapped)
	})
}
