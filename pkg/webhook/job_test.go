package webhook_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/webhookcall/pkg/webhook"
)

func TestNewJob(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		job, err := webhook.NewJob(webhook.Request{Method: "POST", URL: "https://example.com/hook"})
		require.NoError(t, err)

		assert.Equal(t, webhook.StatePending, job.State)
		assert.Equal(t, webhook.DefaultMaxAttempts, job.MaxAttempts)
		assert.Equal(t, webhook.DefaultBackoffName, job.Backoff)
		assert.Equal(t, webhook.DefaultTimeout, job.Request.Timeout)
		_, err = uuid.Parse(job.CorrelationID)
		assert.NoError(t, err, "generated correlation id should be a uuid")
	})

	t.Run("options", func(t *testing.T) {
		t.Parallel()

		job, err := webhook.NewJob(
			webhook.Request{Method: "put", URL: "http://example.com", Timeout: 5 * time.Second},
			webhook.WithMaxAttempts(1),
			webhook.WithBackoff("fixed"),
			webhook.WithCorrelationID("corr-1"),
			webhook.WithTags("billing", " billing ", "", "orders"),
			webhook.WithMeta(map[string]any{"tenant": "acme"}),
			webhook.WithQueue("priority-less"),
		)
		require.NoError(t, err)

		assert.Equal(t, 1, job.MaxAttempts)
		assert.Equal(t, "fixed", job.Backoff)
		assert.Equal(t, "corr-1", job.CorrelationID)
		assert.Equal(t, []string{"billing", "orders"}, job.Tags)
		assert.Equal(t, map[string]any{"tenant": "acme"}, job.Meta)
		assert.Equal(t, "priority-less", job.Queue)
		assert.Equal(t, 5*time.Second, job.Request.Timeout)
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name    string
			req     webhook.Request
			opts    []webhook.JobOption
			wantErr error
		}{
			{name: "zero attempts", req: webhook.Request{Method: "POST", URL: "https://example.com"}, opts: []webhook.JobOption{webhook.WithMaxAttempts(0)}, wantErr: webhook.ErrInvalidAttempts},
			{name: "bad scheme", req: webhook.Request{Method: "POST", URL: "mailto:ops@example.com"}, wantErr: webhook.ErrInvalidURL},
			{name: "no host", req: webhook.Request{Method: "POST", URL: "https:///path"}, wantErr: webhook.ErrInvalidURL},
			{name: "no method", req: webhook.Request{URL: "https://example.com"}, wantErr: webhook.ErrInvalidMethod},
			{name: "negative timeout", req: webhook.Request{Method: "POST", URL: "https://example.com", Timeout: -time.Second}, wantErr: webhook.ErrInvalidConfiguration},
		}

		for _, tt := range tests {
			tt := tt
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				_, err := webhook.NewJob(tt.req, tt.opts...)
				require.ErrorIs(t, err, tt.wantErr)
			})
		}
	})
}

func TestJob_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	job, err := webhook.NewJob(
		webhook.Request{Method: "POST", URL: "https://example.com", Payload: map[string]any{"n": 1.5}},
		webhook.WithTags("a"),
		webhook.WithMeta(map[string]any{"k": "v"}),
	)
	require.NoError(t, err)

	data, err := json.Marshal(job)
	require.NoError(t, err)

	var decoded webhook.Job
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *job, decoded)
}

func TestDecodeJob(t *testing.T) {
	t.Parallel()

	t.Run("keeps numbers exact", func(t *testing.T) {
		t.Parallel()

		job, err := webhook.NewJob(
			webhook.Request{
				Method: "POST",
				URL:    "https://example.com",
				Payload: map[string]any{
					"id":     int64(9007199254740993),
					"nested": map[string]any{"n": []any{uint64(18446744073709551615), 0.1}},
				},
			},
			webhook.WithMeta(map[string]any{"seq": int64(9007199254740995)}),
		)
		require.NoError(t, err)

		data, err := json.Marshal(job)
		require.NoError(t, err)

		decoded, err := webhook.DecodeJob(data)
		require.NoError(t, err)
		assert.Equal(t, json.Number("9007199254740993"), decoded.Request.Payload["id"])
		assert.Equal(t, json.Number("9007199254740995"), decoded.Meta["seq"])

		again, err := json.Marshal(decoded)
		require.NoError(t, err)
		assert.Equal(t, string(data), string(again))
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		t.Parallel()

		_, err := webhook.DecodeJob([]byte(`{"request":"nope"}`))
		assert.Error(t, err)
	})
}

func TestState_Transitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from webhook.State
		to   webhook.State
		ok   bool
	}{
		{webhook.StatePending, webhook.StateAttempting, true},
		{"", webhook.StateAttempting, true},
		{webhook.StateAwaitingRetry, webhook.StateAttempting, true},
		{webhook.StateAttempting, webhook.StateSucceeded, true},
		{webhook.StateAttempting, webhook.StateAwaitingRetry, true},
		{webhook.StateAttempting, webhook.StateExhausted, true},
		{webhook.StatePending, webhook.StateSucceeded, false},
		{webhook.StateAwaitingRetry, webhook.StateExhausted, false},
		{webhook.StateSucceeded, webhook.StateAttempting, false},
		{webhook.StateExhausted, webhook.StateAttempting, false},
	}

	for _, tt := range tests {
		tt := tt
		assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to), "%q -> %q", tt.from, tt.to)
	}

	assert.True(t, webhook.StateSucceeded.IsTerminal())
	assert.True(t, webhook.StateExhausted.IsTerminal())
	assert.False(t, webhook.StateAwaitingRetry.IsTerminal())
	assert.False(t, webhook.StatePending.IsTerminal())
}

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := webhook.Config{Timeout: 10 * time.Second, MaxAttempts: 5, Backoff: "linear", VerifyTLS: false, Queue: "hooks"}

	req := webhook.Request{Method: "POST", URL: "https://example.com"}
	cfg.ApplyRequestDefaults(&req)
	assert.Equal(t, 10*time.Second, req.Timeout)
	assert.True(t, req.InsecureSkipVerify)

	job, err := webhook.NewJob(req, append(cfg.JobOptions(), webhook.WithMaxAttempts(2))...)
	require.NoError(t, err)
	assert.Equal(t, 2, job.MaxAttempts, "explicit options override config")
	assert.Equal(t, "linear", job.Backoff)
	assert.Equal(t, "hooks", job.Queue)

	_, err = webhook.Config{SigningSecret: "s"}.NewAttempt()
	assert.NoError(t, err)
}
