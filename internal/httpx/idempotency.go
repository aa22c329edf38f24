package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ariefcatur/go-lot-orders/internal/apperr"
	"github.com/ariefcatur/go-lot-orders/internal/redisx"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const IdempotencyHeader = "Idempotency-Key"

// inflightTTL bounds how long a crashed request can block its key.
const inflightTTL = 30 * time.Second

type storedResponse struct {
	Pending bool            `json:"pending,omitempty"`
	Status  int             `json:"status,omitempty"`
	Body    json.RawMessage `json:"body,omitempty"`
}

// idempotent replays the stored response of a write that already ran with
// the same Idempotency-Key. Requests without the header, or a handler
// without Redis, pass straight through. Only final answers are stored:
// conflicts and server errors free the key so the client may retry.
func (h *OrdersHandler) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyHeader)
		if key == "" || h.Redis == nil {
			next.ServeHTTP(w, r)
			return
		}
		rkey := fmt.Sprintf(redisx.KeyIdem, r.Method+" "+r.URL.Path, key)
		ctx := r.Context()

		marker, _ := json.Marshal(storedResponse{Pending: true})
		fresh, err := h.Redis.SetNX(ctx, rkey, marker, inflightTTL).Result()
		if err != nil {
			// cache down: the database still guards every invariant
			h.log().Warn("idempotency store", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		if !fresh {
			h.replay(w, r, rkey)
			return
		}

		var buf bytes.Buffer
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Tee(&buf)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if status == http.StatusConflict || status >= http.StatusInternalServerError {
			_ = h.Redis.Del(ctx, rkey).Err()
			return
		}
		stored, _ := json.Marshal(storedResponse{Status: status, Body: bytes.TrimSpace(buf.Bytes())})
		if err := h.Redis.Set(ctx, rkey, stored, redisx.TTLIdempotency).Err(); err != nil {
			h.log().Warn("idempotency save", zap.String("key", key), zap.Error(err))
		}
	})
}

func (h *OrdersHandler) replay(w http.ResponseWriter, r *http.Request, rkey string) {
	b, err := h.Redis.Get(r.Context(), rkey).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; the client can simply retry
		h.writeError(w, r, fmt.Errorf("idempotency key expired: %w", apperr.ErrConflict))
		return
	}
	if err != nil {
		h.writeError(w, r, apperr.Storage("idempotency.get", err))
		return
	}
	var sr storedResponse
	if err := json.Unmarshal(b, &sr); err != nil || sr.Pending {
		h.writeError(w, r, fmt.Errorf("request with this idempotency key is in progress: %w", apperr.ErrConflict))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replay", "true")
	w.WriteHeader(sr.Status)
	_, _ = w.Write(sr.Body)
}
