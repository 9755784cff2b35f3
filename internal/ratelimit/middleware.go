package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"citywalk/pkg/platform/httputil"
	"citywalk/pkg/requestcontext"
)

// Limiter applies one limit per actor to the routes it wraps.
type Limiter struct {
	store  BucketStore
	limit  int
	window time.Duration
	logger *slog.Logger
}

func NewLimiter(store BucketStore, limit int, window time.Duration, logger *slog.Logger) *Limiter {
	return &Limiter{store: store, limit: limit, window: window, logger: logger}
}

type exceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"error_description"`
	RetryAfter int    `json:"retry_after"`
}

// PerActor limits requests for action by authenticated actor, falling back to
// client IP. Store failures let the request through.
func (l *Limiter) PerActor(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l == nil || l.limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			who := requestcontext.ActorID(ctx)
			if who == "" {
				who = "ip:" + requestcontext.ClientIP(ctx)
			}

			result, err := l.store.Allow(ctx, action+":"+who, l.limit, l.window)
			if err != nil {
				l.logger.ErrorContext(ctx, "rate limit check failed",
					"action", action,
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				l.logger.WarnContext(ctx, "rate limit exceeded",
					"action", action,
					"actor_id", requestcontext.ActorID(ctx),
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				httputil.WriteJSON(w, http.StatusTooManyRequests, &exceededResponse{
					Error:      "rate_limit_exceeded",
					Message:    "Too many " + action + " requests. Please try again later.",
					RetryAfter: result.RetryAfter,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
