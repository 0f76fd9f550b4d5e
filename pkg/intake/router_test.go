package intake_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/webhookcall/pkg/delivery"
	"github.com/dmitrymomot/webhookcall/pkg/httpserver"
	"github.com/dmitrymomot/webhookcall/pkg/intake"
	"github.com/dmitrymomot/webhookcall/pkg/logger"
	"github.com/dmitrymomot/webhookcall/pkg/queue"
	"github.com/dmitrymomot/webhookcall/pkg/requestid"
	"github.com/dmitrymomot/webhookcall/pkg/webhook"
)

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, job *webhook.Job, opts ...queue.EnqueueOption) (uuid.UUID, error) {
	args := m.Called(ctx, job)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

var testDefaults = webhook.Config{
	Timeout:     5 * time.Second,
	MaxAttempts: 4,
	Backoff:     "linear",
	VerifyTLS:   true,
	Queue:       "webhooks",
}

func newStorageAPI(t *testing.T, opts ...intake.Option) (*queue.MemoryStorage, http.Handler) {
	t.Helper()
	storage := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = storage.Close() })
	enqueuer, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)

	base := []intake.Option{
		intake.WithDefaults(testDefaults),
		intake.WithBackoffRegistry(webhook.DefaultBackoffRegistry()),
		intake.WithLogger(logger.Discard()),
	}
	api := intake.New(delivery.NewDispatcher(enqueuer), append(base, opts...)...)
	return storage, api.Router()
}

func post(t *testing.T, h http.Handler, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func storedJob(t *testing.T, storage *queue.MemoryStorage, taskID string) (*queue.Task, webhook.Job) {
	t.Helper()
	task, err := storage.GetTask(context.Background(), uuid.MustParse(taskID))
	require.NoError(t, err)
	var job webhook.Job
	require.NoError(t, json.Unmarshal(task.Payload, &job))
	return task, job
}

func TestCreateDelivery_Accepted(t *testing.T) {
	t.Parallel()

	storage, h := newStorageAPI(t)
	rec := post(t, h, `{
		"method": "put",
		"url": "https://example.com/hook",
		"payload": {"order_id": "ord_1"},
		"headers": {"X-Tenant": "acme"},
		"timeout": "10s",
		"verify_ssl": false,
		"max_attempts": 5,
		"backoff": "fixed",
		"correlation_id": "corr-123",
		"tags": ["orders", "orders", " "],
		"meta": {"source": "billing"}
	}`)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, "corr-123", rec.Header().Get(intake.CorrelationHeader))

	var accepted intake.DeliveryAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.Equal(t, "corr-123", accepted.CorrelationID)
	assert.Equal(t, webhook.StatePending, accepted.State)
	assert.Equal(t, 5, accepted.MaxAttempts)
	assert.Equal(t, "webhooks", accepted.Queue)

	task, job := storedJob(t, storage, accepted.TaskID)
	assert.Equal(t, delivery.TaskName, task.TaskName)
	assert.Equal(t, "webhooks", task.Queue)
	assert.Equal(t, "put", job.Request.Method)
	assert.Equal(t, 10*time.Second, job.Request.Timeout)
	assert.True(t, job.Request.InsecureSkipVerify)
	assert.Equal(t, "fixed", job.Backoff)
	assert.Equal(t, []string{"orders"}, job.Tags)
	assert.Equal(t, map[string]any{"source": "billing"}, job.Meta)
	assert.Equal(t, map[string]string{"X-Tenant": "acme"}, job.Request.Headers)
}

func TestCreateDelivery_AppliesDefaults(t *testing.T) {
	t.Parallel()

	storage, h := newStorageAPI(t)
	rec := post(t, h, `{"url": "https://example.com/hook"}`, intake.CorrelationHeader, "from-header")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var accepted intake.DeliveryAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.Equal(t, "from-header", accepted.CorrelationID)

	_, job := storedJob(t, storage, accepted.TaskID)
	assert.Equal(t, "POST", job.Request.Method)
	assert.Equal(t, 5*time.Second, job.Request.Timeout)
	assert.False(t, job.Request.InsecureSkipVerify)
	assert.Equal(t, 4, job.MaxAttempts)
	assert.Equal(t, "linear", job.Backoff)
}

func TestCreateDelivery_GeneratesCorrelationID(t *testing.T) {
	t.Parallel()

	_, h := newStorageAPI(t)
	rec := post(t, h, `{"url": "https://example.com/hook"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted intake.DeliveryAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	_, err := uuid.Parse(accepted.CorrelationID)
	assert.NoError(t, err)
}

func TestCreateDelivery_Rejected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		code int
		want string
	}{
		{"malformed json", `{"url":`, http.StatusBadRequest, "malformed delivery request"},
		{"unknown field", `{"url":"https://example.com","verifySsl":true}`, http.StatusBadRequest, "unknown field"},
		{"missing url", `{"method":"POST"}`, http.StatusUnprocessableEntity, "URL is required"},
		{"bad scheme", `{"url":"ftp://example.com"}`, http.StatusUnprocessableEntity, "http and https"},
		{"bad method", `{"method":"PO ST","url":"https://example.com"}`, http.StatusUnprocessableEntity, "invalid webhook method"},
		{"zero attempts", `{"url":"https://example.com","max_attempts":-1}`, http.StatusUnprocessableEntity, "max attempts"},
		{"bad timeout", `{"url":"https://example.com","timeout":"soon"}`, http.StatusUnprocessableEntity, "timeout"},
		{"negative timeout", `{"url":"https://example.com","timeout":"-1s"}`, http.StatusUnprocessableEntity, "timeout must be positive"},
		{"bad correlation id", `{"url":"https://example.com","correlation_id":"has space"}`, http.StatusUnprocessableEntity, "correlation id"},
		{"unknown backoff", `{"url":"https://example.com","backoff":"fibonacci"}`, http.StatusUnprocessableEntity, "unknown backoff"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			storage, h := newStorageAPI(t)
			rec := post(t, h, tt.body)

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), tt.want)
			assert.Equal(t, 0, storage.Len())
		})
	}
}

func TestCreateDelivery_TimeoutBelowLockTimeout(t *testing.T) {
	t.Parallel()

	storage, h := newStorageAPI(t, intake.WithMaxTimeout(time.Minute))

	rec := post(t, h, `{"url":"https://example.com","timeout":"1m"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), intake.ErrTimeoutTooLong.Error())

	rec = post(t, h, `{"url":"https://example.com","timeout":"2h"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 0, storage.Len())

	rec = post(t, h, `{"url":"https://example.com","timeout":"59s"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = post(t, h, `{"url":"https://example.com"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, 2, storage.Len())
}

func TestCreateDelivery_PreservesLargeIntegers(t *testing.T) {
	t.Parallel()

	storage, h := newStorageAPI(t)
	rec := post(t, h, `{
		"url": "https://example.com/hook",
		"payload": {"id": 9007199254740993, "items": [{"qty": 12345678901234567}]},
		"meta": {"tenant_id": 9007199254740995}
	}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var accepted intake.DeliveryAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))

	task, err := storage.GetTask(context.Background(), uuid.MustParse(accepted.TaskID))
	require.NoError(t, err)
	job, err := webhook.DecodeJob(task.Payload)
	require.NoError(t, err)

	payload, err := json.Marshal(job.Request.Payload)
	require.NoError(t, err)
	assert.Equal(t, `{"id":9007199254740993,"items":[{"qty":12345678901234567}]}`, string(payload))
	assert.Equal(t, json.Number("9007199254740995"), job.Meta["tenant_id"])
}

func TestCreateDelivery_BodyTooLarge(t *testing.T) {
	t.Parallel()

	_, h := newStorageAPI(t, intake.WithMaxBodySize(64))
	body := `{"url":"https://example.com","payload":{"blob":"` + strings.Repeat("x", 128) + `"}}`

	rec := post(t, h, body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCreateDelivery_DispatchFailure(t *testing.T) {
	t.Parallel()

	d := &MockDispatcher{}
	d.On("Dispatch", mock.Anything, mock.MatchedBy(func(job *webhook.Job) bool {
		return job.Request.URL == "https://example.com/hook"
	})).Return(uuid.Nil, errors.New("redis down")).Once()

	h := intake.New(d, intake.WithLogger(logger.Discard())).Router()
	rec := post(t, h, `{"url":"https://example.com/hook"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), intake.ErrQueueUnavailable.Error())
	assert.NotContains(t, rec.Body.String(), "redis down")
	d.AssertExpectations(t)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	healthy := true
	_, h := newStorageAPI(t, intake.WithHealthCheck("redis", func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("ping failed")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestid.Header))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	healthy = false
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report httpserver.HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "ping failed", report.Checks["redis"])
}

func TestNewPanicsWithoutDispatcher(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { intake.New(nil) })
}
