package middleware

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/technosupport/ts-lms/internal/ratelimit"
)

type RateLimitMiddleware struct {
	limiter *ratelimit.Limiter
	config  *RateLimitConfig
}

type RateLimitConfig struct {
	GlobalIP ratelimit.LimitConfig `yaml:"global_ip"`
	Login    ratelimit.LimitConfig `yaml:"login"`
}

func NewRateLimitMiddleware(l *ratelimit.Limiter, c RateLimitConfig) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: l, config: &c}
}

// GlobalLimiter throttles by hashed client IP. Auth endpoints fail closed
// when Redis is down; everything else fails open so a cache outage cannot
// take the activation path with it.
func (m *RateLimitMiddleware) GlobalLimiter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		ipHash := m.limiter.HashIP(ip)

		cfg := m.config.GlobalIP
		key := fmt.Sprintf("rl:ip:%s", ipHash)
		isAuth := strings.HasPrefix(r.URL.Path, "/api/v1/auth/")
		if isAuth {
			cfg = m.config.Login
			key = fmt.Sprintf("rl:login:%s", ipHash)
		}

		decision, err := m.limiter.CheckRateLimit(r.Context(), key, cfg)
		if err != nil {
			if isAuth {
				log.Printf("RateLimit Redis error (auth, fail closed): %v", err)
				http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
				return
			}
			log.Printf("RateLimit Redis error (fail open): %v", err)
			next.ServeHTTP(w, r)
			return
		}

		if !decision.Allowed {
			m.writeRateLimitHeaders(w, decision)
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) writeRateLimitHeaders(w http.ResponseWriter, d *ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
	if !d.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter))
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}
