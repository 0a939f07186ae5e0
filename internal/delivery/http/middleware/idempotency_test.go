package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventregistration/internal/delivery/http/helpers"
	"eventregistration/internal/domain"
)

// fakeRedis is an in-memory RedisClient. TTLs are ignored.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newFakeRedis() *fakeRedis { return &fakeRedis{data: map[string]string{}} }

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

type countingHandler struct {
	calls  int
	status int
	body   string
}

func (c *countingHandler) serve(w http.ResponseWriter, r *http.Request) {
	c.calls++
	_, _ = io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(c.status)
	_, _ = io.WriteString(w, c.body)
}

func idempotentRequest(userID, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "http://test/registrations/ev-1", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	return req.WithContext(SetIdentity(req.Context(), &domain.Identity{UserID: userID}))
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIdempotent_ReplaysCompletedResponse(t *testing.T) {
	rdb := newFakeRedis()
	next := &countingHandler{status: http.StatusCreated, body: `{"data":{"id":"reg-1"},"error":null}`}
	handler := Idempotent(IdempotencyConfig{Redis: rdb, Logger: quietLogger()})(next.serve)

	first := httptest.NewRecorder()
	handler(first, idempotentRequest("user-1", "key-1", ""))
	second := httptest.NewRecorder()
	handler(second, idempotentRequest("user-1", "key-1", ""))

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
}

func TestIdempotent_KeysAreScopedPerUser(t *testing.T) {
	rdb := newFakeRedis()
	next := &countingHandler{status: http.StatusCreated, body: `{}`}
	handler := Idempotent(IdempotencyConfig{Redis: rdb, Logger: quietLogger()})(next.serve)

	handler(httptest.NewRecorder(), idempotentRequest("user-1", "same", ""))
	handler(httptest.NewRecorder(), idempotentRequest("user-2", "same", ""))

	assert.Equal(t, 2, next.calls)
}

func TestIdempotent_InProgressAndReuse(t *testing.T) {
	tests := []struct {
		name       string
		stored     string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "first request still running",
			stored:     `{"status":"processing","request_hash":"%s"}`,
			wantStatus: http.StatusConflict,
			wantCode:   helpers.ErrCodeRequestInProgress,
		},
		{
			name:       "key reused for a different request",
			stored:     `{"status":"completed","request_hash":"other","response_code":201,"response_body":"{}"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   helpers.ErrCodeKeyReused,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rdb := newFakeRedis()
			req := idempotentRequest("user-1", "key-1", tt.body)
			stored := tt.stored
			if strings.Contains(stored, "%s") {
				stored = strings.Replace(stored, "%s", requestHash(req, "user-1", []byte(tt.body)), 1)
			}
			rdb.data[idempotencyKeyPrefix+"user-1:key-1"] = stored
			next := &countingHandler{status: http.StatusCreated, body: `{}`}
			handler := Idempotent(IdempotencyConfig{Redis: rdb, Logger: quietLogger()})(next.serve)

			rr := httptest.NewRecorder()
			handler(rr, req)

			assert.Equal(t, 0, next.calls)
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.wantCode)
		})
	}
}

func TestIdempotent_ServerErrorsReleaseTheKey(t *testing.T) {
	rdb := newFakeRedis()
	next := &countingHandler{status: http.StatusServiceUnavailable, body: `{}`}
	handler := Idempotent(IdempotencyConfig{Redis: rdb, Logger: quietLogger()})(next.serve)

	handler(httptest.NewRecorder(), idempotentRequest("user-1", "key-1", ""))
	require.Empty(t, rdb.data)

	next.status = http.StatusCreated
	rr := httptest.NewRecorder()
	handler(rr, idempotentRequest("user-1", "key-1", ""))

	assert.Equal(t, 2, next.calls)
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Len(t, rdb.data, 1)
}

func TestIdempotent_PassThrough(t *testing.T) {
	t.Run("no key", func(t *testing.T) {
		rdb := newFakeRedis()
		next := &countingHandler{status: http.StatusCreated, body: `{}`}
		handler := Idempotent(IdempotencyConfig{Redis: rdb, Logger: quietLogger()})(next.serve)

		handler(httptest.NewRecorder(), idempotentRequest("user-1", "", ""))
		handler(httptest.NewRecorder(), idempotentRequest("user-1", "", ""))

		assert.Equal(t, 2, next.calls)
		assert.Empty(t, rdb.data)
	})

	t.Run("redis down", func(t *testing.T) {
		rdb := newFakeRedis()
		rdb.err = errors.New("connection refused")
		next := &countingHandler{status: http.StatusCreated, body: `{}`}
		handler := Idempotent(IdempotencyConfig{Redis: rdb, Logger: quietLogger()})(next.serve)

		rr := httptest.NewRecorder()
		handler(rr, idempotentRequest("user-1", "key-1", ""))

		assert.Equal(t, 1, next.calls)
		assert.Equal(t, http.StatusCreated, rr.Code)
	})
}

func TestIdempotent_BodyStillReadable(t *testing.T) {
	rdb := newFakeRedis()
	var got string
	handler := Idempotent(IdempotencyConfig{Redis: rdb, Logger: quietLogger()})(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = string(b)
		w.WriteHeader(http.StatusNoContent)
	})

	handler(httptest.NewRecorder(), idempotentRequest("user-1", "key-1", `{"note":"hi"}`))

	assert.Equal(t, `{"note":"hi"}`, got)
}
