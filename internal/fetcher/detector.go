package fetcher

import (
	"bytes"
	"net/http"

	"golang.org/x/net/html"
)

// defaultRenderThreshold is the body size below which script-heavy pages are
// considered shells that need JavaScript to produce content.
const defaultRenderThreshold = 2048

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
}

// needsRender reports whether a fetched page looks like a client-rendered
// application shell.
func needsRender(status int, body []byte) bool {
	if status != http.StatusOK {
		return false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	if len(body) < defaultRenderThreshold && scriptDensityHigh(body) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

// scriptDensityHigh reports whether <script> elements, tags included,
// cover a quarter or more of the document.
func scriptDensityHigh(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	z := html.NewTokenizer(bytes.NewReader(body))
	inScript := false
	covered := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		name, _ := z.TagName()
		switch {
		case tt == html.StartTagToken && string(name) == "script":
			inScript = true
		case tt == html.SelfClosingTagToken && string(name) == "script":
			covered += len(z.Raw())
			continue
		}
		if inScript {
			covered += len(z.Raw())
		}
		if tt == html.EndTagToken && string(name) == "script" {
			inScript = false
		}
	}
	return covered*4 >= len(body)
}
