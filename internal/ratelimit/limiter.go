package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

// Limiter is a token bucket per remote IP. Buckets refill lazily from the
// clock, so an idle limiter costs nothing.
type Limiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clk     clock.Clock
	buckets map[string]*rate.Limiter
}

func New(perMin, burst int) *Limiter {
	return NewWithClock(perMin, burst, clock.New())
}

func NewWithClock(perMin, burst int, clk clock.Clock) *Limiter {
	if perMin <= 0 {
		perMin = 60
	}
	if burst <= 0 {
		burst = 120
	}
	return &Limiter{
		limit:   rate.Every(time.Minute / time.Duration(perMin)),
		burst:   burst,
		clk:     clk,
		buckets: make(map[string]*rate.Limiter),
	}
}

func (l *Limiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.buckets[ip]
	if b == nil {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[ip] = b
	}
	return b
}

func (l *Limiter) Allow(r *http.Request) bool {
	return l.get(ClientIP(r)).AllowN(l.clk.Now(), 1)
}

// ClientIP is the first X-Forwarded-For hop, else the RemoteAddr host.
func ClientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		first, _, _ := strings.Cut(xf, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
