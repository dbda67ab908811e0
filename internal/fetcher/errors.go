package fetcher

import (
	"errors"
	"fmt"
)

var (
	// ErrHTTPStatus is wrapped by StatusError.
	ErrHTTPStatus = errors.New("unsuccessful http status")
	// ErrUnreadableFile is returned when a file:// URL cannot be read.
	ErrUnreadableFile = errors.New("unreadable local file")
	// ErrNoBinaryDecoder is returned for binary documents when no decoder is configured.
	ErrNoBinaryDecoder = errors.New("no decoder configured for binary document")
	// ErrUnsupportedScheme is returned for URLs that are neither http(s) nor file.
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d for %s", e.Code, e.URL)
}

// Unwrap lets errors.Is match ErrHTTPStatus.
func (e *StatusError) Unwrap() error {
	return ErrHTTPStatus
}
