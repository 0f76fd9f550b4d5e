package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrymomot/webhookcall/pkg/logger"
)

// DefaultUserAgent is sent when the request headers do not set one.
const DefaultUserAgent = "webhookcall/1.0"

// maxErrorSnippet bounds how much of a failing response body goes into the error message.
const maxErrorSnippet = 200

// Executor performs a single delivery attempt.
type Executor interface {
	Execute(ctx context.Context, req Request) Outcome
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req Request) Outcome

func (f ExecutorFunc) Execute(ctx context.Context, req Request) Outcome {
	return f(ctx, req)
}

// Attempt turns a Request into exactly one transport call and classifies the
// result. It never retries; that decision belongs to the Deliverer.
type Attempt struct {
	transport Transport
	signer    Signer
	userAgent string
	logger    *slog.Logger
}

// AttemptOption configures an Attempt.
type AttemptOption func(*Attempt)

// WithTransport replaces the default HTTPTransport.
func WithTransport(t Transport) AttemptOption {
	return func(a *Attempt) {
		if t != nil {
			a.transport = t
		}
	}
}

// WithSigner installs a signing step that runs after the call is fully built.
func WithSigner(s Signer) AttemptOption {
	return func(a *Attempt) {
		a.signer = s
	}
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(ua string) AttemptOption {
	return func(a *Attempt) {
		if ua != "" {
			a.userAgent = ua
		}
	}
}

// WithAttemptLogger sets the logger used for per-call debug records.
func WithAttemptLogger(l *slog.Logger) AttemptOption {
	return func(a *Attempt) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAttempt creates an Attempt using an HTTPTransport unless overridden.
func NewAttempt(opts ...AttemptOption) *Attempt {
	a := &Attempt{
		userAgent: DefaultUserAgent,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.transport == nil {
		a.transport = NewHTTPTransport()
	}
	return a
}

// Execute performs the call. Every result, including build and signing errors,
// is folded into the returned Outcome.
func (a *Attempt) Execute(ctx context.Context, req Request) Outcome {
	call, err := a.prepare(req)
	if err != nil {
		return Failed(ErrorKindRequest, err.Error(), nil)
	}

	if a.signer != nil {
		if err := a.signer.Sign(ctx, call); err != nil {
			return Failed(ErrorKindSignature, fmt.Sprintf("sign request: %v", err), nil)
		}
	}

	start := time.Now()
	resp, err := a.transport.Do(ctx, call)
	duration := time.Since(start)

	if err != nil {
		kind := ClassifyTransportError(err)
		a.logger.LogAttrs(ctx, slog.LevelDebug, "webhook call failed without response",
			logger.Method(call.Method),
			logger.WebhookURL(req.URL),
			logger.ErrorKind(string(kind)),
			logger.Duration(duration),
			logger.Error(err),
		)
		return Failed(kind, err.Error(), nil)
	}

	a.logger.LogAttrs(ctx, slog.LevelDebug, "webhook call completed",
		logger.Method(call.Method),
		logger.WebhookURL(req.URL),
		logger.StatusCode(resp.StatusCode),
		logger.Duration(duration),
	)

	if !resp.Successful() {
		return Failed(ErrorKindHTTP, httpErrorMessage(resp), resp)
	}
	return Succeeded(resp)
}

func (a *Attempt) prepare(req Request) (*Call, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	header := make(http.Header, len(req.Headers)+2)
	for k, v := range req.Headers {
		header.Set(k, v)
	}
	if header.Get("User-Agent") == "" {
		header.Set("User-Agent", a.userAgent)
	}

	call := &Call{
		Method:             req.NormalizedMethod(),
		Header:             header,
		Timeout:            req.timeout(),
		InsecureSkipVerify: req.InsecureSkipVerify,
	}

	if req.SendsQuery() {
		u, err := appendQuery(req.URL, req.Payload)
		if err != nil {
			return nil, err
		}
		call.URL = u
		return call, nil
	}

	payload := req.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode body: %w", ErrInvalidPayload, err)
	}
	call.URL = req.URL
	call.Body = body
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/json")
	}
	return call, nil
}

// httpErrorMessage includes a single-line body snippet so the message is safe to log.
func httpErrorMessage(resp *Response) string {
	msg := fmt.Sprintf("%v: %d", ErrHTTPStatus, resp.StatusCode)
	if len(resp.Body) == 0 {
		return msg
	}
	snippet := strings.Join(strings.Fields(string(resp.Body)), " ")
	if len(snippet) > maxErrorSnippet {
		snippet = snippet[:maxErrorSnippet] + "..."
	}
	return msg + ": " + snippet
}
