package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimitConfig configures the per-client rate limiter.
type RateLimitConfig struct {
	// Max is the maximum number of requests allowed per window.
	Max int
	// Window is the duration of each window.
	Window time.Duration
	// KeyFunc extracts the rate limit key from a request.
	// If nil, the client IP address is used, honoring X-Forwarded-For and
	// X-Real-IP.
	KeyFunc func(*http.Request) string
}

// RateLimit returns a middleware that enforces a per-key request rate backed
// by an in-process store. Over the limit it responds 429 with a JSON body.
// Every response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset.
func RateLimit(cfg RateLimitConfig) Middleware {
	rate := limiter.Rate{Period: cfg.Window, Limit: int64(cfg.Max)}
	store := memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          "comanda",
		CleanUpInterval: 2 * cfg.Window,
	})
	instance := limiter.New(store, rate, limiter.WithTrustForwardHeader(true))

	opts := []stdlib.Option{
		stdlib.WithLimitReachedHandler(limitReached),
	}
	if cfg.KeyFunc != nil {
		opts = append(opts, stdlib.WithKeyGetter(cfg.KeyFunc))
	}
	mw := stdlib.NewMiddleware(instance, opts...)
	return mw.Handler
}

func limitReached(w http.ResponseWriter, _ *http.Request) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(http.StatusTooManyRequests)
	e.FieldStart("message")
	e.Str("rate limit exceeded")
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write(e.Bytes())
}
