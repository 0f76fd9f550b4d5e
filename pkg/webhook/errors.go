package webhook

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Domain errors for webhook operations. They give stable identities for errors.Is
// while the wrapped cause carries detail for logs.
var (
	ErrInvalidConfiguration = errors.New("invalid webhook configuration")
	ErrInvalidPayload       = errors.New("invalid webhook payload")
	ErrInvalidURL           = errors.New("invalid webhook URL")
	ErrInvalidMethod        = errors.New("invalid webhook method")
	ErrInvalidAttempts      = errors.New("max attempts must be at least 1")
	ErrUnknownBackoff       = errors.New("unknown backoff strategy")
	ErrInvalidTransition    = errors.New("invalid delivery state transition")
	ErrJobTerminated        = errors.New("webhook delivery already finished")
	ErrScheduleFailed       = errors.New("failed to schedule webhook retry")
	ErrDiscardFailed        = errors.New("failed to discard webhook delivery")
	ErrNotificationDelivery = errors.New("failed to deliver webhook notification")
	ErrTimeout              = errors.New("webhook request timeout")
	ErrHTTPStatus           = errors.New("webhook endpoint returned non-2xx status")
)

// ErrorKind categorizes a failed attempt. It is informational: every kind is
// treated the same way by the retry logic.
type ErrorKind string

const (
	// ErrorKindHTTP means a response was received with a status outside 200-299.
	ErrorKindHTTP ErrorKind = "HttpError"
	// ErrorKindTimeout means the request did not complete within its timeout.
	ErrorKindTimeout ErrorKind = "TimeoutError"
	// ErrorKindConnection means the TCP connection could not be established or was reset.
	ErrorKindConnection ErrorKind = "ConnectionError"
	// ErrorKindDNS means the target host could not be resolved.
	ErrorKindDNS ErrorKind = "DNSError"
	// ErrorKindTLS means the TLS handshake or certificate verification failed.
	ErrorKindTLS ErrorKind = "TLSError"
	// ErrorKindTransport covers any other transport failure.
	ErrorKindTransport ErrorKind = "TransportError"
	// ErrorKindRequest means the outgoing request could not be built or encoded.
	ErrorKindRequest ErrorKind = "RequestError"
	// ErrorKindSignature means the signing step rejected the request.
	ErrorKindSignature ErrorKind = "SignatureError"
)

// TransportError is returned by a Transport when no HTTP response was obtained.
type TransportError struct {
	Kind ErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps err with the category detected by ClassifyTransportError.
func NewTransportError(err error) *TransportError {
	return &TransportError{Kind: ClassifyTransportError(err), Err: err}
}

// ClassifyTransportError maps a network-level error to an ErrorKind.
// Order matters: a TLS failure during dial is also a *net.OpError.
func ClassifyTransportError(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var te *TransportError
	if errors.As(err, &te) && te.Kind != "" {
		return te.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return ErrorKindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorKindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrorKindDNS
	}

	var (
		recordErr   tls.RecordHeaderError
		verifyErr   *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		certInvalid x509.CertificateInvalidError
		tlsAlert    tls.AlertError
	)
	if errors.As(err, &recordErr) || errors.As(err, &verifyErr) || errors.As(err, &unknownAuth) ||
		errors.As(err, &hostnameErr) || errors.As(err, &certInvalid) || errors.As(err, &tlsAlert) {
		return ErrorKindTLS
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return ErrorKindConnection
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return ErrorKindConnection
	}

	return ErrorKindTransport
}
