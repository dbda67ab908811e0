package fetcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeBody(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		body        []byte
		contentType string
		want        string
		charset     string
	}{
		{"declared latin1", []byte("caf\xe9"), "text/html; charset=iso-8859-1", "café", "windows-1252"},
		{"meta charset", []byte(`<meta charset="windows-1252"><p>caf` + "\xe9"), "text/html", "café", "windows-1252"},
		{"valid utf8", []byte("naïve"), "", "naïve", "utf-8"},
		{"bom stripped", []byte("\xef\xbb\xbfhi"), "", "hi", "utf-8"},
		{"unknown declared falls through", []byte("plain"), "text/html; charset=bogus-9", "plain", "utf-8"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, cs := decodeBody(tc.body, tc.contentType)
			assert.Contains(t, got, tc.want)
			assert.Equal(t, tc.charset, cs)
		})
	}
}

func TestDecodeBodyNeverFails(t *testing.T) {
	t.Parallel()

	got, _ := decodeBody([]byte{0xff, 0xfe, 0x41, 0x80}, "")
	assert.NotEmpty(t, got)
}

func TestMediaType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "application/pdf", mediaType("Application/PDF; charset=binary"))
	assert.Equal(t, "text/html", mediaType("text/html;;"))
}

func TestExtractMetaRefresh(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		`<meta http-equiv="refresh" content="0;URL='http://example.com'">`: "http://example.com",
		`<meta http-equiv="Refresh" content="5; url=/next">`:               "/next",
		`<meta http-equiv="refresh" content="10">`:                         "",
		`<meta name="description" content="0;URL=x">`:                      "",
	}
	for markup, want := range cases {
		assert.Equal(t, want, ExtractMetaRefresh(markup), markup)
	}
}

func TestNeedsRender(t *testing.T) {
	t.Parallel()

	assert.True(t, needsRender(200, nil))
	assert.True(t, needsRender(200, []byte(`<div id="app"></div>`)))
	assert.True(t, needsRender(200, []byte(`<script>var a=1;var b=2;</script><p>x</p>`)))
	assert.False(t, needsRender(404, nil))
	assert.False(t, needsRender(200, []byte(`<article><p>Plenty of server rendered prose here.</p></article>`)))
}
