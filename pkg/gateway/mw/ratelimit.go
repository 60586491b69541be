package mw

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vango-go/midas/pkg/core"
	"github.com/vango-go/midas/pkg/gateway/ratelimit"
)

// RateLimit spends a token per request that starts work. Reads and
// preflights pass through untouched.
func RateLimit(limiter *ratelimit.Limiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		dec := limiter.AcquireRequest(ratelimit.ClientKey(r), time.Now())
		if !dec.Allowed {
			writeRateLimited(w, r, dec.RetryAfter, "rate limit exceeded")
			return
		}
		defer dec.Permit.Release()
		next.ServeHTTP(w, r)
	})
}

// LimitStreams caps how many long-lived feed connections one client holds.
func LimitStreams(limiter *ratelimit.Limiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dec := limiter.AcquireStream(ratelimit.ClientKey(r), time.Now())
		if !dec.Allowed {
			writeRateLimited(w, r, dec.RetryAfter, "too many open feeds")
			return
		}
		defer dec.Permit.Release()
		next.ServeHTTP(w, r)
	})
}

func writeRateLimited(w http.ResponseWriter, r *http.Request, retryAfter int, msg string) {
	reqID, _ := RequestIDFrom(r.Context())
	e := &core.Error{
		Type:      core.ErrRateLimit,
		Message:   msg,
		RequestID: reqID,
	}
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		e.RetryAfter = &retryAfter
	}
	WriteJSONError(w, http.StatusTooManyRequests, e)
}
