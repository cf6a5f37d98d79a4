package tracking

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	base = "https://mail.example.com"
	tid  = "trk-123"
)

func TestInstrumentInjectsPixelBeforeClosingBody(t *testing.T) {
	html := "<html><body><p>Hi</p></body></html>"
	out := Instrument(html, base, tid)

	pixel := base + PixelPath + "/" + tid + ".png"
	assert.Contains(t, out, pixel)
	assert.True(t, strings.Index(out, pixel) < strings.Index(out, "</body>"))
}

func TestInstrumentAppendsPixelWithoutBodyTag(t *testing.T) {
	out := Instrument("<p>Hi</p>", base, tid)
	assert.True(t, strings.HasSuffix(out, `style="display:none;" />`))
}

func TestInstrumentWrapsLinks(t *testing.T) {
	html := `<p><a class="btn" href="https://example.org/offer?x=1">Offer</a></p>`
	out := Instrument(html, base, tid)

	assert.Contains(t, out, base+ClickPath+"/"+tid+"?url=")
	assert.Contains(t, out, url.QueryEscape("https://example.org/offer?x=1"))
	assert.NotContains(t, out, `href="https://example.org/offer?x=1"`)
	// other attributes survive the rewrite
	assert.Contains(t, out, `class="btn"`)
}

func TestInstrumentSkipsAlreadyWrappedLinks(t *testing.T) {
	wrapped := base + ClickPath + "/" + tid + "?url=https%3A%2F%2Fexample.org"
	html := `<a href="` + wrapped + `">Offer</a><body></body>`
	out := Instrument(html, base, tid)

	assert.Equal(t, 1, strings.Count(out, ClickPath+"/"))
}

func TestInstrumentEmptyBody(t *testing.T) {
	assert.Equal(t, "", Instrument("", base, tid))
	assert.Equal(t, "<p>x</p>", Instrument("<p>x</p>", base, ""))
}
