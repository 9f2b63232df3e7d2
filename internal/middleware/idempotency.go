package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"time"

	"github.com/qbsru/widgetdomains/internal/port/cache"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	maxIdempotencyKeyLen = 128
	maxIdempotencyBody   = 64 << 10
	idempotencyPrefix    = "idem:"
)

// idempotencyEntry stores a replayable HTTP response.
type idempotencyEntry struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body"`
}

// Idempotency replays the stored response for a repeated POST or DELETE
// carrying the same Idempotency-Key. Keys are scoped to the caller and the
// route, so one user's key never matches another user's request. Only 2xx
// responses are stored; anything else can be retried with the same key.
func Idempotency(store cache.Cache, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodDelete {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get(headerIdempotencyKey)
			if key == "" || len(key) > maxIdempotencyKeyLen {
				next.ServeHTTP(w, r)
				return
			}
			scoped := idempotencyPrefix + UserIDFromContext(r.Context()) + "|" + r.Method + " " + r.URL.Path + "|" + key

			cached, found, err := cache.GetJSON[idempotencyEntry](r.Context(), store, scoped)
			if err != nil {
				slog.WarnContext(r.Context(), "idempotency: lookup failed", "error", err)
			}
			if found {
				for k, vals := range cached.Headers {
					if k == headerRequestID {
						continue
					}
					for _, v := range vals {
						w.Header().Add(k, v)
					}
				}
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(cached.StatusCode)
				_, _ = w.Write(cached.Body)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if !storable(rec.statusCode) || rec.body.Len() > maxIdempotencyBody {
				return
			}
			entry := idempotencyEntry{
				StatusCode: rec.statusCode,
				Headers:    w.Header().Clone(),
				Body:       rec.body.Bytes(),
			}
			if err := cache.SetJSON(r.Context(), store, scoped, entry, ttl); err != nil {
				slog.WarnContext(r.Context(), "idempotency: failed to store response", "error", err)
			}
		})
	}
}

func storable(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

// responseRecorder copies the response body while passing it through.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
