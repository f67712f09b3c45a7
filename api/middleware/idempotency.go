package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/foodfund-backend/api/responses"
	pkgerrors "github.com/angelmondragon/foodfund-backend/pkg/errors"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/foodfund-backend/pkg/redis"
)

const (
	IdempotencyKeyHeader     = "Idempotency-Key"
	IdempotencyReplayHeader  = "Idempotency-Replayed"
	maxIdempotencyKeyLength  = 128
	inFlightIdempotencyTTL   = 2 * time.Minute
	StandardIdempotencyTTL   = 24 * time.Hour
	MoneyMovementIdempotencyTTL = 7 * 24 * time.Hour
)

type storedResponse struct {
	InFlight    bool   `json:"in_flight,omitempty"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays the first response for a repeated Idempotency-Key.
// Keys are scoped to the caller and the request path, so two members may use
// the same key independently.
type Idempotency struct {
	store pkgredis.IdempotencyStore
	logg  *logger.Logger
}

func NewIdempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) *Idempotency {
	return &Idempotency{store: store, logg: logg}
}

// Require makes the key mandatory and keeps completed responses for ttl.
// A nil store disables the guard.
func (m *Idempotency) Require(ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil || m.store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if clientKey == "" || len(clientKey) > maxIdempotencyKeyLength {
				responses.WriteError(ctx, m.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required").
					WithDetails(map[string]any{"maxLength": maxIdempotencyKeyLength}))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, m.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := requestHash(body)
			key := m.store.IdempotencyKey(requestScope(r), clientKey)

			marker, _ := json.Marshal(storedResponse{InFlight: true, RequestHash: hash})
			claimed, err := m.store.SetNX(ctx, key, string(marker), inFlightIdempotencyTTL)
			if err != nil {
				responses.WriteError(ctx, m.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				m.replay(w, r, key, hash)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			m.finish(r, key, hash, rec, ttl)
		})
	}
}

func (m *Idempotency) replay(w http.ResponseWriter, r *http.Request, key, hash string) {
	ctx := r.Context()
	raw, err := m.store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		responses.WriteError(ctx, m.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key just finished, retry"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, m.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, m.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case stored.RequestHash != hash:
		responses.WriteError(ctx, m.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case stored.InFlight:
		responses.WriteError(ctx, m.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress"))
	default:
		body, _ := base64.StdEncoding.DecodeString(stored.Body)
		if stored.ContentType != "" {
			w.Header().Set("Content-Type", stored.ContentType)
		}
		w.Header().Set(IdempotencyReplayHeader, "true")
		w.WriteHeader(stored.Status)
		_, _ = w.Write(body)
	}
}

// finish swaps the in-flight marker for the response. Server failures drop
// the marker instead so the client may retry with the same key.
func (m *Idempotency) finish(r *http.Request, key, hash string, rec *responseCapture, ttl time.Duration) {
	ctx := r.Context()
	status := rec.statusCode()
	if err := m.store.Del(ctx, key); err != nil {
		m.logError(r, "release idempotency marker", err)
		return
	}
	if status >= http.StatusInternalServerError {
		return
	}
	payload, err := json.Marshal(storedResponse{
		Status:      status,
		ContentType: rec.Header().Get("Content-Type"),
		Body:        base64.StdEncoding.EncodeToString(rec.body.Bytes()),
		RequestHash: hash,
	})
	if err != nil {
		m.logError(r, "encode idempotency record", err)
		return
	}
	if _, err := m.store.SetNX(ctx, key, string(payload), ttl); err != nil {
		m.logError(r, "store idempotency record", err)
	}
}

func (m *Idempotency) logError(r *http.Request, msg string, err error) {
	if m.logg != nil {
		m.logg.Error(r.Context(), msg, err)
	}
}

func requestScope(r *http.Request) string {
	id, _ := IdentityFromContext(r.Context())
	return strings.Join([]string{UserIDFromContext(r.Context()), id.orgString(), r.Method, r.URL.Path}, "|")
}

func requestHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
