package api

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	// Upper bound on tracked client IPs. Beyond this the least recently
	// seen bucket is evicted, which only ever forgives a limited client.
	maxTrackedIPs = 4096

	// Idle buckets expire after this long.
	ipIdleTTL = 10 * time.Minute
)

// ipLimiter hands out one token bucket per client IP. Buckets for idle IPs
// age out of the table instead of accumulating forever.
type ipLimiter struct {
	perMinute int
	table     *expirable.LRU[string, *rate.Limiter]
}

func newIPLimiter(perMinute int) *ipLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &ipLimiter{
		perMinute: perMinute,
		table:     expirable.NewLRU[string, *rate.Limiter](maxTrackedIPs, nil, ipIdleTTL),
	}
}

// Allow reports whether ip may perform one more create right now.
func (l *ipLimiter) Allow(ip string) bool {
	limiter, ok := l.table.Get(ip)
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)
		l.table.Add(ip, limiter)
	}
	return limiter.Allow()
}

// clientIP extracts the caller's address, trusting proxy headers first so
// deployments behind a load balancer limit the real client rather than the
// balancer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip
		}
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return "127.0.0.1"
}
