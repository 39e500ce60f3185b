package interceptor

import (
	"context"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// tokenBucket refills at rate tokens per second up to max.
type tokenBucket struct {
	tokens   float64
	max      float64
	rate     float64
	lastTime time.Time
}

func (tb *tokenBucket) allow(now time.Time) bool {
	tb.tokens += now.Sub(tb.lastTime).Seconds() * tb.rate
	tb.lastTime = now
	if tb.tokens > tb.max {
		tb.tokens = tb.max
	}
	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}

// full reports whether the bucket would be back at max by now. Such a bucket
// behaves exactly like a fresh one and can be forgotten.
func (tb *tokenBucket) full(now time.Time) bool {
	return tb.tokens+now.Sub(tb.lastTime).Seconds()*tb.rate >= tb.max
}

// sweepEvery bounds how often idle buckets are dropped.
const sweepEvery = time.Minute

// limiter keeps one bucket per peer host so that one noisy client cannot
// starve the others.
type limiter struct {
	mu        sync.Mutex
	rps       int
	buckets   map[string]*tokenBucket
	lastSweep time.Time
	now       func() time.Time
}

func newLimiter(rps int) *limiter {
	return &limiter{rps: rps, buckets: make(map[string]*tokenBucket), now: time.Now}
}

func (l *limiter) allow(ctx context.Context) bool {
	if l.rps <= 0 {
		return true
	}
	key := ""
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		key = p.Addr.Network() + "/" + hostOnly(p.Addr.String())
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastSweep) >= sweepEvery {
		l.sweep(now)
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: float64(l.rps), max: float64(l.rps), rate: float64(l.rps), lastTime: now}
		l.buckets[key] = b
	}
	return b.allow(now)
}

// sweep drops the buckets that have refilled. Callers hold l.mu.
func (l *limiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if b.full(now) {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

// hostOnly strips the port so that every connection from one host shares a
// bucket. Addresses without a port, such as unix sockets, are kept whole.
func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// RateLimitUnary returns a unary interceptor that enforces requests per
// second per peer. A non-positive rps disables limiting.
func RateLimitUnary(rps int) grpc.UnaryServerInterceptor {
	l := newLimiter(rps)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !l.allow(ctx) {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

// RateLimitStream is RateLimitUnary for streams.
func RateLimitStream(rps int) grpc.StreamServerInterceptor {
	l := newLimiter(rps)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if !l.allow(ss.Context()) {
			return status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(srv, ss)
	}
}
