package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/time/rate"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// idleTTL is how long an unused limiter is kept.
const idleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per caller. Callers are keyed by signer
// identity when authenticated, otherwise by peer address.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*limiterEntry
	now      func() time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second with the
// given burst. A non-positive rps disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*limiterEntry),
		now:      time.Now,
	}
}

// Allow reports whether key may make another request now.
func (r *RateLimiter) Allow(key string) bool {
	if r.limit <= 0 {
		return true
	}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	for k, e := range r.visitors {
		if now.Sub(e.lastSeen) > idleTTL {
			delete(r.visitors, k)
		}
	}
	e, ok := r.visitors[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.visitors[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Interceptor returns the Connect interceptor enforcing the limit.
func (r *RateLimiter) Interceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			key := peerHost(req.Peer().Addr)
			if id, ok := GetIdentity(ctx); ok {
				key = id.String()
			}
			if !r.Allow(key) {
				slog.Warn("Rate limited", "procedure", req.Spec().Procedure, "caller", key)
				return nil, connect.NewError(connect.CodeResourceExhausted, ErrRateLimited)
			}
			return next(ctx, req)
		}
	}
}

// peerHost drops the port so every connection from one host shares a bucket.
func peerHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return addr
	}
	return host
}
