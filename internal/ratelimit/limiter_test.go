package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewLimiter(client, "test-salt"), mr
}

// 1. Requests under the limit pass, the one over is denied
func TestCheckRateLimit_Window(t *testing.T) {
	l, _ := testLimiter(t)
	cfg := LimitConfig{Rate: 3, Window: time.Minute}

	for i := 1; i <= 3; i++ {
		d, err := l.CheckRateLimit(context.Background(), "rl:ip:abc", cfg)
		if err != nil {
			t.Fatalf("CheckRateLimit failed: %v", err)
		}
		if !d.Allowed {
			t.Errorf("Request %d should be allowed", i)
		}
		if d.Remaining != cfg.Rate-i {
			t.Errorf("Remaining after %d = %d, want %d", i, d.Remaining, cfg.Rate-i)
		}
	}

	d, err := l.CheckRateLimit(context.Background(), "rl:ip:abc", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Error("Fourth request should be denied")
	}
	if d.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", d.Remaining)
	}
}

// 2. The window expires and the counter resets
func TestCheckRateLimit_WindowReset(t *testing.T) {
	l, mr := testLimiter(t)
	cfg := LimitConfig{Rate: 1, Window: time.Second}

	if d, _ := l.CheckRateLimit(context.Background(), "rl:ip:xyz", cfg); !d.Allowed {
		t.Fatal("First request denied")
	}
	if d, _ := l.CheckRateLimit(context.Background(), "rl:ip:xyz", cfg); d.Allowed {
		t.Fatal("Second request in the window should be denied")
	}

	mr.FastForward(2 * time.Second)

	if d, _ := l.CheckRateLimit(context.Background(), "rl:ip:xyz", cfg); !d.Allowed {
		t.Error("Request after window reset should be allowed")
	}
}

// 3. Separate keys count separately
func TestCheckRateLimit_KeyIsolation(t *testing.T) {
	l, _ := testLimiter(t)
	cfg := LimitConfig{Rate: 1, Window: time.Minute}

	if d, _ := l.CheckRateLimit(context.Background(), "rl:ip:one", cfg); !d.Allowed {
		t.Fatal("First key denied")
	}
	if d, _ := l.CheckRateLimit(context.Background(), "rl:ip:two", cfg); !d.Allowed {
		t.Error("Second key should have its own counter")
	}
}

// 4. Redis outage surfaces as ErrRedisUnavailable
func TestCheckRateLimit_RedisDown(t *testing.T) {
	l, mr := testLimiter(t)
	mr.Close()

	_, err := l.CheckRateLimit(context.Background(), "rl:ip:down", LimitConfig{Rate: 1, Window: time.Minute})
	if err != ErrRedisUnavailable {
		t.Errorf("Expected ErrRedisUnavailable, got %v", err)
	}
}

// 5. IP hashing is stable and salted
func TestHashIP(t *testing.T) {
	l, _ := testLimiter(t)

	a := l.HashIP("203.0.113.9")
	b := l.HashIP("203.0.113.9")
	if a != b {
		t.Error("Hash not stable")
	}
	if a == l.HashIP("203.0.113.10") {
		t.Error("Different IPs collide")
	}

	other := &Limiter{salt: "other-salt"}
	if a == other.HashIP("203.0.113.9") {
		t.Error("Salt does not affect the hash")
	}
}
