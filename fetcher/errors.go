package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies a fetch failure for reporting.
type Kind string

const (
	KindDNS     Kind = "dns"
	KindTimeout Kind = "timeout"
	KindHTTP    Kind = "http-error"
	KindUnknown Kind = "unknown"
)

// Error is returned by every failed fetch.
type Error struct {
	Kind       Kind
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: status code %d", e.Kind, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(rawURL string, err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return &Error{Kind: Classify(err), URL: rawURL, Err: err}
}

// KindOf returns the kind of a fetch error, classifying foreign errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Classify(err)
}

var (
	dnsPatterns = []string{
		"no such host",
		"server misbehaving",
		"err_name_not_resolved",
		"err_name_resolution_failed",
		"getaddrinfo",
		"name or service not known",
		"temporary failure in name resolution",
	}
	timeoutPatterns = []string{
		"timeout",
		"timed out",
		"deadline exceeded",
		"err_timed_out",
		"err_connection_timed_out",
	}
	httpPatterns = []string{
		"status code",
		"err_http_response_code_failure",
		"err_invalid_response",
	}
)

// Classify maps an arbitrary failure onto a Kind by inspecting its type
// chain first and its message second.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindDNS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, p := range dnsPatterns {
		if strings.Contains(msg, p) {
			return KindDNS
		}
	}
	for _, p := range timeoutPatterns {
		if strings.Contains(msg, p) {
			return KindTimeout
		}
	}
	for _, p := range httpPatterns {
		if strings.Contains(msg, p) {
			return KindHTTP
		}
	}

	return KindUnknown
}
