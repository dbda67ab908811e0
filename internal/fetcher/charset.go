package fetcher

import (
	"bytes"
	"mime"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// fallbackCharset is used when nothing else identifies the encoding.
const fallbackCharset = "iso-8859-1"

// minDetectorConfidence is the chardet confidence (0-100) needed to trust a guess.
const minDetectorConfidence = 50

// decodeBody converts body to UTF-8. It tries, in order: the charset named in
// contentType, a BOM or <meta charset> in the body, UTF-8 validity, a
// statistical guess, and finally ISO-8859-1. It never fails.
func decodeBody(body []byte, contentType string) (string, string) {
	if name := declaredCharset(contentType); name != "" {
		if enc, err := htmlindex.Get(name); err == nil {
			if out, ok := decodeWith(enc, body); ok {
				return out, canonicalName(enc, name)
			}
		}
	}

	// Only a byte order mark makes DetermineEncoding certain.
	if enc, name, certain := charset.DetermineEncoding(body, ""); certain {
		if out, ok := decodeWith(enc, body); ok {
			return strings.TrimPrefix(out, "\ufeff"), name
		}
	}

	if name := metaCharset(body); name != "" {
		if enc, err := htmlindex.Get(name); err == nil {
			if out, ok := decodeWith(enc, body); ok {
				return out, canonicalName(enc, name)
			}
		}
	}

	if utf8.Valid(body) {
		return string(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))), "utf-8"
	}

	if res, err := chardet.NewHtmlDetector().DetectBest(body); err == nil && res.Confidence >= minDetectorConfidence {
		if enc, err := htmlindex.Get(res.Charset); err == nil {
			if out, ok := decodeWith(enc, body); ok {
				return out, canonicalName(enc, res.Charset)
			}
		}
	}

	out, _ := decodeWith(charmap.ISO8859_1, body)
	return out, fallbackCharset
}

var metaCharsetPattern = regexp.MustCompile(`(?i)<meta[^>]+charset\s*=\s*["']?\s*([a-z0-9_:.\-]+)`)

// metaCharset finds a charset declared by a <meta> tag near the top of body.
func metaCharset(body []byte) string {
	if len(body) > 1024 {
		body = body[:1024]
	}
	m := metaCharsetPattern.FindSubmatch(body)
	if m == nil {
		return ""
	}
	return string(m[1])
}

func declaredCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params["charset"])
}

func decodeWith(enc encoding.Encoding, body []byte) (string, bool) {
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", false
	}
	return string(out), true
}

// resolveCharset maps a declared label to its WHATWG name.
func resolveCharset(label string) (string, bool) {
	if label == "" {
		return "", false
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return "", false
	}
	return canonicalName(enc, label), true
}

func canonicalName(enc encoding.Encoding, fallback string) string {
	if name, err := htmlindex.Name(enc); err == nil {
		return name
	}
	return strings.ToLower(fallback)
}

// mediaType returns the lower-case media type without parameters.
func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}
