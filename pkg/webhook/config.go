package webhook

import (
	"time"
)

// Config holds delivery defaults read from the environment.
type Config struct {
	Timeout         time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"30s"`
	MaxAttempts     int           `env:"WEBHOOK_MAX_ATTEMPTS" envDefault:"3"`
	Backoff         string        `env:"WEBHOOK_BACKOFF" envDefault:"exponential"`
	BackoffFile     string        `env:"WEBHOOK_BACKOFF_FILE"`
	VerifyTLS       bool          `env:"WEBHOOK_VERIFY_TLS" envDefault:"true"`
	UserAgent       string        `env:"WEBHOOK_USER_AGENT" envDefault:"webhookcall/1.0"`
	SigningSecret   string        `env:"WEBHOOK_SIGNING_SECRET"`
	MaxResponseBody int64         `env:"WEBHOOK_MAX_RESPONSE_BODY" envDefault:"1048576"`
	Queue           string        `env:"WEBHOOK_QUEUE" envDefault:"webhooks"`
}

// JobOptions returns the options that apply the configured defaults.
// Options passed after these override them.
func (c Config) JobOptions() []JobOption {
	opts := []JobOption{WithQueue(c.Queue)}
	if c.MaxAttempts > 0 {
		opts = append(opts, WithMaxAttempts(c.MaxAttempts))
	}
	if c.Backoff != "" {
		opts = append(opts, WithBackoff(c.Backoff))
	}
	return opts
}

// ApplyRequestDefaults fills the timeout and TLS flag of req from the config.
func (c Config) ApplyRequestDefaults(req *Request) {
	if req.Timeout == 0 {
		req.Timeout = c.Timeout
	}
	if !c.VerifyTLS {
		req.InsecureSkipVerify = true
	}
}

// NewAttempt builds an Attempt from the config. A signing secret enables HMAC
// signatures.
func (c Config) NewAttempt(opts ...AttemptOption) (*Attempt, error) {
	base := []AttemptOption{
		WithUserAgent(c.UserAgent),
		WithTransport(NewHTTPTransport(WithMaxResponseBody(c.MaxResponseBody))),
	}
	if c.SigningSecret != "" {
		signer, err := NewHMACSigner(c.SigningSecret)
		if err != nil {
			return nil, err
		}
		base = append(base, WithSigner(signer))
	}
	return NewAttempt(append(base, opts...)...), nil
}

// LoadBackoffs returns the registry described by BackoffFile, or the defaults.
func (c Config) LoadBackoffs() (*BackoffRegistry, error) {
	return LoadBackoffFile(c.BackoffFile)
}
