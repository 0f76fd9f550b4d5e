package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Signature header names set by HMACSigner.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderID        = "X-Webhook-ID"
)

// Signer mutates the headers of a prepared call, typically to authenticate it.
// A returned error aborts the attempt before any network call.
type Signer interface {
	Sign(ctx context.Context, call *Call) error
}

// SignerFunc adapts a function to Signer.
type SignerFunc func(ctx context.Context, call *Call) error

func (f SignerFunc) Sign(ctx context.Context, call *Call) error {
	return f(ctx, call)
}

// SignatureHeaders contains the webhook signature headers.
type SignatureHeaders struct {
	Signature string
	Timestamp int64
	ID        string
}

// Apply sets the signature headers on h.
func (s SignatureHeaders) Apply(h http.Header) {
	h.Set(HeaderSignature, s.Signature)
	h.Set(HeaderTimestamp, strconv.FormatInt(s.Timestamp, 10))
	h.Set(HeaderID, s.ID)
}

// HMACSigner signs calls with HMAC-SHA256 over "timestamp.content", where content
// is the body, or the full URL for body-less verbs.
type HMACSigner struct {
	secret string
	now    func() time.Time
}

// NewHMACSigner creates a signer for secret.
func NewHMACSigner(secret string) (*HMACSigner, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	return &HMACSigner{secret: secret, now: time.Now}, nil
}

func (s *HMACSigner) Sign(_ context.Context, call *Call) error {
	if call == nil {
		return fmt.Errorf("%w: call is required", ErrInvalidConfiguration)
	}
	if call.Header == nil {
		call.Header = make(http.Header)
	}

	headers, err := SignPayload(s.secret, signedContent(call), s.now())
	if err != nil {
		return err
	}
	headers.Apply(call.Header)
	return nil
}

func signedContent(call *Call) []byte {
	if len(call.Body) > 0 {
		return call.Body
	}
	return []byte(call.URL)
}

// SignPayload creates an HMAC-SHA256 signature bound to the timestamp so a
// captured request cannot be replayed outside the verifier's window.
func SignPayload(secret string, payload []byte, at time.Time) (SignatureHeaders, error) {
	if secret == "" {
		return SignatureHeaders{}, fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	if len(payload) == 0 {
		return SignatureHeaders{}, fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}

	timestamp := at.Unix()
	return SignatureHeaders{
		Signature: computeSignature(secret, timestamp, payload),
		Timestamp: timestamp,
		ID:        uuid.New().String(),
	}, nil
}

// VerifySignature validates a signature produced by SignPayload. maxAge of zero
// disables the timestamp window check.
func VerifySignature(secret string, payload []byte, headers SignatureHeaders, maxAge time.Duration) error {
	if secret == "" {
		return fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}
	if headers.Signature == "" {
		return fmt.Errorf("%w: signature is missing", ErrInvalidConfiguration)
	}

	if maxAge > 0 {
		age := time.Since(time.Unix(headers.Timestamp, 0))
		if age > maxAge {
			return fmt.Errorf("%w: signature timestamp too old: %v", ErrInvalidConfiguration, age)
		}
		// Allow a minute of clock skew.
		if age < -1*time.Minute {
			return fmt.Errorf("%w: signature timestamp is in the future", ErrInvalidConfiguration)
		}
	}

	expected := computeSignature(secret, headers.Timestamp, payload)
	if !hmac.Equal([]byte(expected), []byte(headers.Signature)) {
		return fmt.Errorf("%w: signature mismatch", ErrInvalidConfiguration)
	}
	return nil
}

// ExtractSignatureHeaders reads the signature headers from h.
func ExtractSignatureHeaders(h http.Header) (SignatureHeaders, error) {
	sig := SignatureHeaders{
		Signature: h.Get(HeaderSignature),
		ID:        h.Get(HeaderID),
	}

	if raw := h.Get(HeaderTimestamp); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return SignatureHeaders{}, fmt.Errorf("%w: invalid timestamp format", ErrInvalidConfiguration)
		}
		sig.Timestamp = ts
	}

	if sig.Signature == "" || sig.Timestamp == 0 {
		return SignatureHeaders{}, fmt.Errorf("%w: missing required signature headers", ErrInvalidConfiguration)
	}
	return sig, nil
}

func computeSignature(secret string, timestamp int64, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(strconv.FormatInt(timestamp, 10)))
	h.Write([]byte("."))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
