package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/webhookcall/pkg/webhook"
)

func TestAttempt_Execute_PostJSON(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, webhook.DefaultUserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "order.paid", r.Header.Get("X-Event"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":42,"items":["a","b"]}`, string(body))

		w.Header().Set("X-Receiver", "ok")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"received":true}`))
	}))
	defer server.Close()

	outcome := webhook.NewAttempt().Execute(context.Background(), webhook.Request{
		Method:  "post",
		URL:     server.URL,
		Payload: map[string]any{"id": 42, "items": []any{"a", "b"}},
		Headers: map[string]string{"X-Event": "order.paid"},
	})

	require.True(t, outcome.IsSuccess())
	assert.Empty(t, outcome.ErrorKind())
	assert.Equal(t, http.StatusCreated, outcome.StatusCode())
	assert.Equal(t, "ok", outcome.Response().Header.Get("X-Receiver"))
	assert.JSONEq(t, `{"received":true}`, string(outcome.Response().Body))
}

func TestAttempt_Execute_NilPayloadSendsEmptyObject(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "{}", string(body))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	outcome := webhook.NewAttempt().Execute(context.Background(), webhook.Request{Method: "DELETE", URL: server.URL})
	require.True(t, outcome.IsSuccess())
	assert.Equal(t, http.StatusNoContent, outcome.StatusCode())
}

func TestAttempt_Execute_VerbIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		method string
		want   string
	}{
		{"get", http.MethodGet},
		{"GET", http.MethodGet},
		{"Get", http.MethodGet},
		{"head", http.MethodHead},
		{"HEAD", http.MethodHead},
		{"Head", http.MethodHead},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.method, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.want, r.Method)
				assert.Equal(t, "1", r.URL.Query().Get("a"))
				assert.Empty(t, r.Header.Get("Content-Type"))

				body, _ := io.ReadAll(r.Body)
				assert.Empty(t, body, "%s must not carry a body", tt.want)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			outcome := webhook.NewAttempt().Execute(context.Background(), webhook.Request{
				Method:  tt.method,
				URL:     server.URL,
				Payload: map[string]any{"a": 1},
			})
			assert.True(t, outcome.IsSuccess())
		})
	}
}

func TestAttempt_Execute_QueryEncoding(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "existing", q.Get("keep"))
		assert.Equal(t, "john", q.Get("user[name]"))
		assert.Equal(t, "admin", q.Get("user[roles][0]"))
		assert.Equal(t, "1", q.Get("active"))
		assert.Equal(t, "2.5", q.Get("ratio"))
		assert.Equal(t, "", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	outcome := webhook.NewAttempt().Execute(context.Background(), webhook.Request{
		Method: http.MethodGet,
		URL:    server.URL + "/hook?keep=existing",
		Payload: map[string]any{
			"user":   map[string]any{"name": "john", "roles": []string{"admin"}},
			"active": true,
			"ratio":  2.5,
		},
	})
	assert.True(t, outcome.IsSuccess())
}

func TestAttempt_Execute_CallerHeadersWin(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "application/vnd.api+json", r.Header.Get("Content-Type"))
		assert.Equal(t, "custom-agent", r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	outcome := webhook.NewAttempt(webhook.WithUserAgent("ignored")).Execute(context.Background(), webhook.Request{
		Method: "put",
		URL:    server.URL,
		Headers: map[string]string{
			"Content-Type": "application/vnd.api+json",
			"User-Agent":   "custom-agent",
		},
	})
	assert.True(t, outcome.IsSuccess())
}

func TestAttempt_Execute_HTTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "database down"},
		{name: "client error", status: http.StatusUnprocessableEntity, body: `{"error":"bad"}`},
		{name: "redirect is not followed", status: http.StatusFound},
		{name: "multiple choices", status: http.StatusMultipleChoices},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.status == http.StatusFound {
					w.Header().Set("Location", "/elsewhere")
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			outcome := webhook.NewAttempt().Execute(context.Background(), webhook.Request{Method: "POST", URL: server.URL})

			require.False(t, outcome.IsSuccess())
			assert.Equal(t, webhook.ErrorKindHTTP, outcome.ErrorKind())
			require.NotNil(t, outcome.Response())
			assert.Equal(t, tt.status, outcome.StatusCode())
			assert.Equal(t, tt.body, string(outcome.Response().Body))
			assert.Contains(t, outcome.ErrorMessage(), "non-2xx")
		})
	}
}

func TestAttempt_Execute_Timeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	outcome := webhook.NewAttempt().Execute(context.Background(), webhook.Request{
		Method:  "POST",
		URL:     server.URL,
		Timeout: 50 * time.Millisecond,
	})

	require.False(t, outcome.IsSuccess())
	assert.Equal(t, webhook.ErrorKindTimeout, outcome.ErrorKind())
	assert.Nil(t, outcome.Response())
	assert.Zero(t, outcome.StatusCode())
}

func TestAttempt_Execute_ConnectionRefused(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	outcome := webhook.NewAttempt().Execute(context.Background(), webhook.Request{Method: "POST", URL: url})

	require.False(t, outcome.IsSuccess())
	assert.Equal(t, webhook.ErrorKindConnection, outcome.ErrorKind())
	assert.Nil(t, outcome.Response())
}

func TestAttempt_Execute_TLSVerification(t *testing.T) {
	t.Parallel()

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	attempt := webhook.NewAttempt()

	verified := attempt.Execute(context.Background(), webhook.Request{Method: "POST", URL: server.URL})
	require.False(t, verified.IsSuccess())
	assert.Equal(t, webhook.ErrorKindTLS, verified.ErrorKind())

	skipped := attempt.Execute(context.Background(), webhook.Request{
		Method:             "POST",
		URL:                server.URL,
		InsecureSkipVerify: true,
	})
	assert.True(t, skipped.IsSuccess())
}

func TestAttempt_Execute_NoNetworkCallOnInvalidRequest(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	transport := webhook.TransportFunc(func(context.Context, *webhook.Call) (*webhook.Response, error) {
		calls.Add(1)
		return &webhook.Response{StatusCode: http.StatusOK}, nil
	})
	attempt := webhook.NewAttempt(webhook.WithTransport(transport))

	tests := []struct {
		name string
		req  webhook.Request
	}{
		{name: "unsupported scheme", req: webhook.Request{Method: "POST", URL: "ftp://example.com"}},
		{name: "missing method", req: webhook.Request{URL: "https://example.com"}},
		{name: "unencodable query", req: webhook.Request{Method: "GET", URL: "https://example.com", Payload: map[string]any{"ch": make(chan int)}}},
		{name: "unencodable body", req: webhook.Request{Method: "POST", URL: "https://example.com", Payload: map[string]any{"fn": func() {}}}},
	}

	for _, tt := range tests {
		tt := tt
		outcome := attempt.Execute(context.Background(), tt.req)
		assert.False(t, outcome.IsSuccess(), tt.name)
		assert.Equal(t, webhook.ErrorKindRequest, outcome.ErrorKind(), tt.name)
	}
	assert.Zero(t, calls.Load())
}

func TestAttempt_Execute_Signer(t *testing.T) {
	t.Parallel()

	t.Run("headers reach the receiver", func(t *testing.T) {
		t.Parallel()

		secret := "shared"
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			sig, err := webhook.ExtractSignatureHeaders(r.Header)
			require.NoError(t, err)
			assert.NoError(t, webhook.VerifySignature(secret, body, sig, time.Minute))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		signer, err := webhook.NewHMACSigner(secret)
		require.NoError(t, err)

		outcome := webhook.NewAttempt(webhook.WithSigner(signer)).Execute(context.Background(), webhook.Request{
			Method:  "POST",
			URL:     server.URL,
			Payload: map[string]any{"event": "signed"},
		})
		assert.True(t, outcome.IsSuccess())
	})

	t.Run("failure skips the call", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		transport := webhook.TransportFunc(func(context.Context, *webhook.Call) (*webhook.Response, error) {
			calls.Add(1)
			return &webhook.Response{StatusCode: http.StatusOK}, nil
		})
		signer := webhook.SignerFunc(func(context.Context, *webhook.Call) error {
			return errors.New("key unavailable")
		})

		outcome := webhook.NewAttempt(webhook.WithTransport(transport), webhook.WithSigner(signer)).
			Execute(context.Background(), webhook.Request{Method: "POST", URL: "https://example.com"})

		assert.Equal(t, webhook.ErrorKindSignature, outcome.ErrorKind())
		assert.Contains(t, outcome.ErrorMessage(), "key unavailable")
		assert.Zero(t, calls.Load())
	})
}

func TestAttempt_Execute_ClassifiesTransportErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want webhook.ErrorKind
	}{
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "nowhere.invalid", IsNotFound: true}, want: webhook.ErrorKindDNS},
		{name: "deadline", err: context.DeadlineExceeded, want: webhook.ErrorKindTimeout},
		{name: "dial", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, want: webhook.ErrorKindConnection},
		{name: "typed", err: &webhook.TransportError{Kind: webhook.ErrorKindTLS, Err: errors.New("handshake")}, want: webhook.ErrorKindTLS},
		{name: "other", err: io.ErrUnexpectedEOF, want: webhook.ErrorKindTransport},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			transport := webhook.TransportFunc(func(context.Context, *webhook.Call) (*webhook.Response, error) {
				return nil, tt.err
			})
			outcome := webhook.NewAttempt(webhook.WithTransport(transport)).
				Execute(context.Background(), webhook.Request{Method: "POST", URL: "https://example.com"})

			assert.Equal(t, tt.want, outcome.ErrorKind())
			assert.Nil(t, outcome.Response())
		})
	}
}

func TestHTTPTransport_MaxResponseBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("abcdefgh"))
	}))
	defer server.Close()

	transport := webhook.NewHTTPTransport(webhook.WithMaxResponseBody(4))
	resp, err := transport.Do(context.Background(), &webhook.Call{Method: http.MethodGet, URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(resp.Body))
}

func TestRequest_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	req := webhook.Request{
		Method:             "PATCH",
		URL:                "https://example.com/hook",
		Payload:            map[string]any{"k": "v"},
		Headers:            map[string]string{"X-A": "b"},
		Timeout:            5 * time.Second,
		InsecureSkipVerify: true,
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)

	var decoded webhook.Request
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, req, decoded)
}
