package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dmitrymomot/webhookcall/pkg/httpserver"
	"github.com/dmitrymomot/webhookcall/pkg/logger"
	"github.com/dmitrymomot/webhookcall/pkg/queue"
	"github.com/dmitrymomot/webhookcall/pkg/requestid"
	"github.com/dmitrymomot/webhookcall/pkg/webhook"
)

// CorrelationHeader carries a caller-chosen correlation ID.
const CorrelationHeader = "X-Correlation-ID"

const defaultMaxBodySize int64 = 1 << 20

// Dispatcher is satisfied by *delivery.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *webhook.Job, opts ...queue.EnqueueOption) (uuid.UUID, error)
}

// API serves the intake endpoints.
type API struct {
	dispatcher   Dispatcher
	defaults     webhook.Config
	backoffs     *webhook.BackoffRegistry
	checks       map[string]httpserver.CheckFunc
	checkTimeout time.Duration
	maxTimeout   time.Duration
	maxBodySize  int64
	logger       *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithDefaults sets the webhook.Config applied to omitted request fields.
func WithDefaults(cfg webhook.Config) Option {
	return func(a *API) { a.defaults = cfg }
}

// WithBackoffRegistry rejects requests naming a strategy the registry lacks.
func WithBackoffRegistry(r *webhook.BackoffRegistry) Option {
	return func(a *API) { a.backoffs = r }
}

// WithHealthCheck registers a readiness check under name.
func WithHealthCheck(name string, fn httpserver.CheckFunc) Option {
	return func(a *API) {
		if name != "" && fn != nil {
			a.checks[name] = fn
		}
	}
}

// WithHealthCheckTimeout bounds the readiness checks of one probe.
func WithHealthCheckTimeout(d time.Duration) Option {
	return func(a *API) {
		if d > 0 {
			a.checkTimeout = d
		}
	}
}

// WithMaxTimeout rejects requests whose timeout is d or longer. Set it to the
// worker lock timeout: an attempt running past the lock is cut short and its
// task reclaimed by another worker.
func WithMaxTimeout(d time.Duration) Option {
	return func(a *API) {
		if d > 0 {
			a.maxTimeout = d
		}
	}
}

// WithMaxBodySize caps the request body. Larger bodies get 413.
func WithMaxBodySize(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodySize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates the intake API. It panics on a nil dispatcher.
func New(dispatcher Dispatcher, opts ...Option) *API {
	if dispatcher == nil {
		panic("intake: dispatcher cannot be nil")
	}
	a := &API{
		dispatcher:   dispatcher,
		defaults:     webhook.Config{MaxAttempts: webhook.DefaultMaxAttempts, Timeout: webhook.DefaultTimeout, VerifyTLS: true},
		checks:       make(map[string]httpserver.CheckFunc),
		checkTimeout: 2 * time.Second,
		maxBodySize:  defaultMaxBodySize,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logger.Component("intake"))
	return a
}

// Router returns the chi router with all endpoints mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.LivenessHandler())
	r.Get("/readyz", httpserver.ReadinessHandler(a.logger, a.checkTimeout, a.checks))
	r.Post("/webhooks", a.createDelivery)

	return r
}

func (a *API) createDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body DeliveryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, a.maxBodySize))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.fail(ctx, w, http.StatusRequestEntityTooLarge, fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedRequest, tooLarge.Limit))
			return
		}
		a.fail(ctx, w, http.StatusBadRequest, fmt.Errorf("%w: %w", ErrMalformedRequest, err))
		return
	}
	if body.CorrelationID == "" {
		body.CorrelationID = r.Header.Get(CorrelationHeader)
	}
	if body.CorrelationID != "" && !requestid.Valid(body.CorrelationID) {
		a.fail(ctx, w, http.StatusUnprocessableEntity, ErrInvalidCorrelationID)
		return
	}

	job, err := body.Job(a.defaults)
	if err != nil {
		a.fail(ctx, w, http.StatusUnprocessableEntity, err)
		return
	}
	if a.maxTimeout > 0 && job.Request.Timeout >= a.maxTimeout {
		a.fail(ctx, w, http.StatusUnprocessableEntity, fmt.Errorf("%w: %s >= %s", ErrTimeoutTooLong, job.Request.Timeout, a.maxTimeout))
		return
	}
	if a.backoffs != nil && !a.backoffs.Has(job.Backoff) {
		a.fail(ctx, w, http.StatusUnprocessableEntity, fmt.Errorf("%w: %q", ErrUnknownBackoff, job.Backoff))
		return
	}

	taskID, err := a.dispatcher.Dispatch(ctx, job)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to dispatch webhook",
			logger.CorrelationID(job.CorrelationID),
			logger.WebhookURL(job.Request.URL),
			logger.Error(err))
		a.fail(ctx, w, http.StatusServiceUnavailable, ErrQueueUnavailable)
		return
	}

	a.logger.InfoContext(ctx, "webhook accepted",
		logger.CorrelationID(job.CorrelationID),
		logger.TaskID(taskID),
		logger.Method(job.Request.NormalizedMethod()),
		logger.WebhookURL(job.Request.URL),
		logger.MaxAttempts(job.MaxAttempts),
		logger.Queue(job.Queue))

	w.Header().Set(CorrelationHeader, job.CorrelationID)
	writeJSON(w, http.StatusAccepted, DeliveryAccepted{
		CorrelationID: job.CorrelationID,
		TaskID:        taskID.String(),
		State:         job.State,
		MaxAttempts:   job.MaxAttempts,
		Queue:         job.Queue,
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) fail(ctx context.Context, w http.ResponseWriter, code int, err error) {
	if code < http.StatusInternalServerError {
		a.logger.DebugContext(ctx, "delivery request rejected", logger.StatusCode(code), logger.Error(err))
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
