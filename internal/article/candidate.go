package article

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// ParsingCandidate pairs the URL a page was parsed from with a fingerprint
// of its bytes. It keys per-run resources and is never persisted.
type ParsingCandidate struct {
	URL      string
	LinkHash string
}

// NewParsingCandidate builds the candidate for raw fetched from rawURL.
// A "#!" fragment is rewritten to the "_escaped_fragment_" query form that
// crawlable AJAX pages serve.
func NewParsingCandidate(rawURL string, raw []byte, now time.Time) ParsingCandidate {
	if i := strings.Index(rawURL, "#!"); i >= 0 {
		rawURL = rawURL[:i] + "?_escaped_fragment_=" + rawURL[i+2:]
	}
	sum := sha256.Sum256(raw)
	return ParsingCandidate{
		URL:      rawURL,
		LinkHash: hex.EncodeToString(sum[:]) + "." + strconv.FormatInt(now.UnixNano(), 10),
	}
}
