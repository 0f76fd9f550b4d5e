package webhook

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// DefaultMaxResponseBody caps how much of a response body is captured.
const DefaultMaxResponseBody int64 = 1 << 20

// Call is a fully prepared outgoing request: the URL already carries any query
// parameters and Body is nil for query-style verbs.
type Call struct {
	Method             string
	URL                string
	Header             http.Header
	Body               []byte
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Transport performs one network call. It returns a Response for any status
// code and a *TransportError when no response was obtained.
type Transport interface {
	Do(ctx context.Context, call *Call) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, call *Call) (*Response, error)

func (f TransportFunc) Do(ctx context.Context, call *Call) (*Response, error) {
	return f(ctx, call)
}

// HTTPTransport is the net/http Transport. It keeps one pooled client that
// verifies certificates and one that does not, so the per-request flag never
// mutates shared state. Redirects are not followed: a 3xx is reported as-is.
type HTTPTransport struct {
	secure      *http.Client
	insecure    *http.Client
	maxBodySize int64
}

// TransportOption configures an HTTPTransport.
type TransportOption func(*HTTPTransport)

// WithHTTPClient uses client for every call regardless of the TLS flag.
// Useful for tests and custom proxies.
func WithHTTPClient(client *http.Client) TransportOption {
	return func(t *HTTPTransport) {
		if client != nil {
			t.secure = client
			t.insecure = client
		}
	}
}

// WithMaxResponseBody sets how many response body bytes are captured.
func WithMaxResponseBody(n int64) TransportOption {
	return func(t *HTTPTransport) {
		if n > 0 {
			t.maxBodySize = n
		}
	}
}

// NewHTTPTransport creates a transport backed by go-cleanhttp pooled transports.
func NewHTTPTransport(opts ...TransportOption) *HTTPTransport {
	insecureTransport := cleanhttp.DefaultPooledTransport()
	insecureTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per request

	t := &HTTPTransport{
		secure:      newClient(cleanhttp.DefaultPooledTransport()),
		insecure:    newClient(insecureTransport),
		maxBodySize: DefaultMaxResponseBody,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func newClient(rt http.RoundTripper) *http.Client {
	return &http.Client{
		Transport: rt,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Do executes the call within its timeout.
func (t *HTTPTransport) Do(ctx context.Context, call *Call) (*Response, error) {
	if call == nil {
		return nil, &TransportError{Kind: ErrorKindRequest, Err: errors.New("call is nil")}
	}

	timeout := call.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if call.Body != nil {
		body = bytes.NewReader(call.Body)
	}

	req, err := http.NewRequestWithContext(reqCtx, call.Method, call.URL, body)
	if err != nil {
		return nil, &TransportError{Kind: ErrorKindRequest, Err: fmt.Errorf("build request: %w", err)}
	}
	for k, vs := range call.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	client := t.secure
	if call.InsecureSkipVerify {
		client = t.insecure
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, &TransportError{Kind: ErrorKindTimeout, Err: fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, err)}
		}
		return nil, NewTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	// A truncated or interrupted body still leaves the status usable.
	data, _ := io.ReadAll(io.LimitReader(resp.Body, t.maxBodySize))

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       data,
	}, nil
}
