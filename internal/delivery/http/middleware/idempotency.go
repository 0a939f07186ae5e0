package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	h "eventregistration/internal/delivery/http/helpers"
)

const (
	// IdempotencyKeyHeader is the header clients set to make a write safe to retry.
	IdempotencyKeyHeader = "X-Idempotency-Key"

	idempotentReplayedHeader = "Idempotent-Replayed"

	idempotencyKeyPrefix    = "idempotency:"
	DefaultIdempotencyTTL   = 5 * time.Minute
	defaultProcessingTTL    = 30 * time.Second
	maxIdempotencyBodyBytes = 1 << 20
)

type idempotencyStatus string

const (
	statusProcessing idempotencyStatus = "processing"
	statusCompleted  idempotencyStatus = "completed"
)

type idempotencyRecord struct {
	Status       idempotencyStatus `json:"status"`
	RequestHash  string            `json:"request_hash"`
	ResponseCode int               `json:"response_code,omitempty"`
	ResponseBody string            `json:"response_body,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// RedisClient is the subset of go-redis used for idempotency records.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// IdempotencyConfig configures Idempotent.
type IdempotencyConfig struct {
	Redis         RedisClient
	TTL           time.Duration // how long a completed response is replayed
	ProcessingTTL time.Duration // how long an in-flight claim blocks duplicates
	Logger        *slog.Logger
}

// Idempotent replays the stored response when a request repeats an
// X-Idempotency-Key that already completed, and answers 409 while the first
// request is still running. Requests without the header pass through.
// Keys are scoped to the authenticated user, so it must run after RequireAuth.
// 5xx responses are not stored so the client can retry with the same key.
// If Redis fails the request is served without idempotency.
func Idempotent(cfg IdempotencyConfig) func(http.HandlerFunc) http.HandlerFunc {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultIdempotencyTTL
	}
	if cfg.ProcessingTTL <= 0 {
		cfg.ProcessingTTL = defaultProcessingTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" || cfg.Redis == nil {
				next(w, r)
				return
			}
			userID, _ := UserIDFromContext(r.Context())

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotencyBodyBytes))
			if err != nil {
				h.WriteJSONError(w, http.StatusBadRequest, h.ErrCodeBadRequest, "could not read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			ctx := r.Context()
			redisKey := idempotencyKeyPrefix + userID + ":" + key
			hash := requestHash(r, userID, body)

			record := idempotencyRecord{Status: statusProcessing, RequestHash: hash, CreatedAt: time.Now().UTC()}
			claimed, err := claimRecord(ctx, cfg.Redis, redisKey, record, cfg.ProcessingTTL)
			if err != nil {
				cfg.Logger.WarnContext(ctx, "idempotency store unavailable", "path", r.URL.Path, "err", err)
				next(w, r)
				return
			}
			if !claimed {
				existing, err := loadRecord(ctx, cfg.Redis, redisKey)
				switch {
				case errors.Is(err, redis.Nil):
					// claim expired between SETNX and GET; treat as in progress
					h.WriteJSONError(w, http.StatusConflict, h.ErrCodeRequestInProgress, "a request with this idempotency key is being processed")
				case err != nil:
					cfg.Logger.WarnContext(ctx, "idempotency store unavailable", "path", r.URL.Path, "err", err)
					next(w, r)
				default:
					replay(w, existing, hash)
				}
				return
			}

			rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
			next(rec, r)

			if rec.status >= http.StatusInternalServerError {
				if err := cfg.Redis.Del(ctx, redisKey).Err(); err != nil {
					cfg.Logger.WarnContext(ctx, "idempotency release failed", "key", key, "err", err)
				}
				return
			}
			record.Status = statusCompleted
			record.ResponseCode = rec.status
			record.ResponseBody = rec.body.String()
			if err := saveRecord(context.WithoutCancel(ctx), cfg.Redis, redisKey, record, cfg.TTL); err != nil {
				cfg.Logger.WarnContext(ctx, "idempotency save failed", "key", key, "err", err)
			}
		}
	}
}

func replay(w http.ResponseWriter, existing *idempotencyRecord, hash string) {
	if existing.RequestHash != hash {
		h.WriteJSONError(w, http.StatusUnprocessableEntity, h.ErrCodeKeyReused, "idempotency key already used with a different request")
		return
	}
	if existing.Status != statusCompleted {
		h.WriteJSONError(w, http.StatusConflict, h.ErrCodeRequestInProgress, "a request with this idempotency key is being processed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(idempotentReplayedHeader, "true")
	w.WriteHeader(existing.ResponseCode)
	_, _ = io.WriteString(w, existing.ResponseBody)
}

// recordingWriter copies the response body so it can be stored.
type recordingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *recordingWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func requestHash(r *http.Request, userID string, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(r.Method))
	sum.Write([]byte(r.URL.Path))
	sum.Write([]byte(userID))
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}

func claimRecord(ctx context.Context, rdb RedisClient, key string, record idempotencyRecord, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return false, err
	}
	return rdb.SetNX(ctx, key, string(data), ttl).Result()
}

func loadRecord(ctx context.Context, rdb RedisClient, key string) (*idempotencyRecord, error) {
	raw, err := rdb.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func saveRecord(ctx context.Context, rdb RedisClient, key string, record idempotencyRecord, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, string(data), ttl).Err()
}
