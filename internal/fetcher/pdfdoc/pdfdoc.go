// Package pdfdoc decodes PDF bodies into plain text for the fetcher.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/JakeFAU/article-pipeline/internal/fetcher"
)

// Decoder implements fetcher.BinaryDecoder.
type Decoder struct{}

// New returns a Decoder.
func New() *Decoder {
	return &Decoder{}
}

// Decode extracts the text of every page. The returned reader gives access
// to the document information dictionary.
func (d *Decoder) Decode(body []byte) (content string, doc fetcher.DocumentReader, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			content, doc, err = "", nil, fmt.Errorf("decode pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", nil, fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", nil, fmt.Errorf("extract pdf text: %w", err)
	}
	data, err := io.ReadAll(plain)
	if err != nil {
		return "", nil, fmt.Errorf("read pdf text: %w", err)
	}
	return strings.TrimSpace(string(data)), &Document{info: r.Trailer().Key("Info")}, nil
}

// Document reads the PDF information dictionary.
type Document struct {
	info pdf.Value
}

// Author returns the /Author entry.
func (d *Document) Author() string {
	return strings.TrimSpace(d.info.Key("Author").Text())
}

// Title returns the /Title entry.
func (d *Document) Title() string {
	return strings.TrimSpace(d.info.Key("Title").Text())
}

// CreationDate parses the /CreationDate entry.
func (d *Document) CreationDate() (time.Time, bool) {
	t, err := ParseDate(d.info.Key("CreationDate").Text())
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

var errBadDate = errors.New("malformed pdf date")

// ParseDate parses the PDF date format D:YYYYMMDDHHmmSSOHH'mm'. Every
// component after the year is optional.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "D:")
	digits := 0
	for digits < len(s) && digits < 14 && s[digits] >= '0' && s[digits] <= '9' {
		digits++
	}
	if digits < 4 || digits%2 != 0 {
		return time.Time{}, errBadDate
	}
	// Pad the missing month/day with 01 and the time with zeros.
	stamp := s[:digits] + "0101000000"[digits-4:]
	loc := time.UTC
	if tz := s[digits:]; tz != "" && tz[0] != 'Z' {
		offset, err := parseOffset(tz)
		if err != nil {
			return time.Time{}, err
		}
		loc = time.FixedZone("", offset)
	}
	t, err := time.ParseInLocation("20060102150405", stamp, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", errBadDate, err)
	}
	return t, nil
}

func parseOffset(tz string) (int, error) {
	sign := 1
	switch tz[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, errBadDate
	}
	clean := strings.NewReplacer("'", "").Replace(tz[1:])
	if len(clean) < 2 {
		return 0, errBadDate
	}
	var hh, mm int
	if _, err := fmt.Sscanf(clean[:2], "%d", &hh); err != nil {
		return 0, errBadDate
	}
	if len(clean) >= 4 {
		if _, err := fmt.Sscanf(clean[2:4], "%d", &mm); err != nil {
			return 0, errBadDate
		}
	}
	return sign * (hh*3600 + mm*60), nil
}
