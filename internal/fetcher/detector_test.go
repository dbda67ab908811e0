package fetcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScriptDensityHigh(t *testing.T) {
	t.Parallel()

	bundle := "<script>" + strings.Repeat("window.x=1;", 20) + "</script>"
	tests := []struct {
		name string
		body string
		want bool
	}{
		{name: "empty", body: "", want: false},
		{name: "script heavy shell", body: `<html><body><div></div>` + bundle + `</body></html>`, want: true},
		{name: "mostly prose", body: `<p>` + strings.Repeat("Plain words on the page. ", 40) + `</p>` + `<script>a()</script>`, want: false},
		{name: "script text inside markup text is not a script", body: `<p>` + strings.Repeat("&lt;script&gt; is a tag name. ", 10) + `</p>`, want: false},
		{name: "unterminated script runs to the end", body: `<p>hi</p><script>` + strings.Repeat("y();", 10), want: true},
		{name: "external scripts count their tags", body: strings.Repeat(`<script src="/a.js"></script>`, 3) + `<p>short</p>`, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, scriptDensityHigh([]byte(tt.body)))
		})
	}
}
