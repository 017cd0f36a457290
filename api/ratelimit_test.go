package api

import (
	"net/http/httptest"
	"testing"
)

func TestIPLimiterBudget(t *testing.T) {
	limiter := newIPLimiter(3)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("10.0.0.1") {
			t.Fatalf("Request %d should be within budget", i+1)
		}
	}
	if limiter.Allow("10.0.0.1") {
		t.Error("Fourth request should be rejected")
	}

	// Budgets are per IP.
	if !limiter.Allow("10.0.0.2") {
		t.Error("A different IP has its own budget")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		realIP     string
		remoteAddr string
		expected   string
	}{
		{
			name:       "x-forwarded-for single",
			forwarded:  "203.0.113.9",
			remoteAddr: "10.0.0.1:1234",
			expected:   "203.0.113.9",
		},
		{
			name:       "x-forwarded-for chain takes first",
			forwarded:  "203.0.113.9, 10.0.0.1, 10.0.0.2",
			remoteAddr: "10.0.0.1:1234",
			expected:   "203.0.113.9",
		},
		{
			name:       "x-real-ip",
			realIP:     "198.51.100.4",
			remoteAddr: "10.0.0.1:1234",
			expected:   "198.51.100.4",
		},
		{
			name:       "forwarded wins over real-ip",
			forwarded:  "203.0.113.9",
			realIP:     "198.51.100.4",
			remoteAddr: "10.0.0.1:1234",
			expected:   "203.0.113.9",
		},
		{
			name:       "remote addr",
			remoteAddr: "192.0.2.50:9999",
			expected:   "192.0.2.50",
		},
		{
			name:       "unparseable remote addr",
			remoteAddr: "garbage",
			expected:   "127.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/create", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}

			if got := clientIP(req); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}
