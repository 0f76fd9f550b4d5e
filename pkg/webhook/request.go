package webhook

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds a single attempt when the request does not set one.
const DefaultTimeout = 30 * time.Second

// Request describes the outgoing call. It is immutable for the lifetime of a
// delivery and serialized with the Job between attempts.
type Request struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Payload map[string]any    `json:"payload,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Timeout time.Duration     `json:"timeout"`

	// InsecureSkipVerify disables TLS certificate verification. The zero value verifies.
	InsecureSkipVerify bool `json:"insecure_skip_verify,omitempty"`
}

// Validate fails fast on requests that can never be delivered.
func (r Request) Validate() error {
	method := strings.TrimSpace(r.Method)
	if method == "" {
		return fmt.Errorf("%w: method is required", ErrInvalidMethod)
	}
	if strings.ContainsAny(method, " \t\r\n/") {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, r.Method)
	}

	if r.URL == "" {
		return fmt.Errorf("%w: URL is required", ErrInvalidURL)
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: only http and https schemes are supported", ErrInvalidURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidURL)
	}

	if r.Timeout < 0 {
		return fmt.Errorf("%w: timeout cannot be negative", ErrInvalidConfiguration)
	}
	return nil
}

// NormalizedMethod returns the upper-cased verb.
func (r Request) NormalizedMethod() string {
	return strings.ToUpper(strings.TrimSpace(r.Method))
}

// SendsQuery reports whether the payload travels as query parameters. Verbs that
// conventionally carry no body (GET, HEAD) use the query string; everything else
// sends a JSON body.
func (r Request) SendsQuery() bool {
	switch r.NormalizedMethod() {
	case http.MethodGet, http.MethodHead:
		return true
	default:
		return false
	}
}

func (r Request) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return DefaultTimeout
}
