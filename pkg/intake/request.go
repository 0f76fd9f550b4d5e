package intake

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrymomot/webhookcall/pkg/webhook"
)

// DeliveryRequest is the POST /webhooks body.
type DeliveryRequest struct {
	Method        string            `json:"method"`
	URL           string            `json:"url"`
	Payload       map[string]any    `json:"payload,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	Timeout       string            `json:"timeout,omitempty"`
	VerifySSL     *bool             `json:"verify_ssl,omitempty"`
	MaxAttempts   int               `json:"max_attempts,omitempty"`
	Backoff       string            `json:"backoff,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	Meta          map[string]any    `json:"meta,omitempty"`
}

// DeliveryAccepted is the 202 response body.
type DeliveryAccepted struct {
	CorrelationID string        `json:"correlation_id"`
	TaskID        string        `json:"task_id"`
	State         webhook.State `json:"state"`
	MaxAttempts   int           `json:"max_attempts"`
	Queue         string        `json:"queue"`
}

// Job builds a pending job from r with cfg supplying everything r omits.
func (r DeliveryRequest) Job(cfg webhook.Config) (*webhook.Job, error) {
	req := webhook.Request{
		Method:  r.Method,
		URL:     strings.TrimSpace(r.URL),
		Payload: r.Payload,
		Headers: r.Headers,
	}
	if req.Method == "" {
		req.Method = "POST"
	}

	if r.Timeout != "" {
		d, err := time.ParseDuration(r.Timeout)
		if err != nil {
			return nil, fmt.Errorf("%w: timeout: %w", webhook.ErrInvalidConfiguration, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("%w: timeout must be positive", webhook.ErrInvalidConfiguration)
		}
		req.Timeout = d
	}

	cfg.ApplyRequestDefaults(&req)
	if r.VerifySSL != nil {
		req.InsecureSkipVerify = !*r.VerifySSL
	}

	opts := cfg.JobOptions()
	if r.MaxAttempts != 0 {
		opts = append(opts, webhook.WithMaxAttempts(r.MaxAttempts))
	}
	if r.Backoff != "" {
		opts = append(opts, webhook.WithBackoff(r.Backoff))
	}
	opts = append(opts,
		webhook.WithCorrelationID(r.CorrelationID),
		webhook.WithTags(r.Tags...),
		webhook.WithMeta(r.Meta),
	)

	return webhook.NewJob(req, opts...)
}
