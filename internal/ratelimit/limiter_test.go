package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()
	now := time.Unix(1000, 0)

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "ip:1.2.3.4", 3, time.Minute, now)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if res.Remaining != 3-i-1 {
			t.Fatalf("request %d: remaining %d", i, res.Remaining)
		}
	}

	res, err := l.Allow(ctx, "ip:1.2.3.4", 3, time.Minute, now.Add(10*time.Second))
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if res.Allowed {
		t.Fatalf("fourth request in the window should be rejected")
	}

	// A new window clears the counter; other keys are independent.
	res, _ = l.Allow(ctx, "ip:1.2.3.4", 3, time.Minute, now.Add(2*time.Minute))
	if !res.Allowed {
		t.Fatalf("request in a fresh window should be allowed")
	}
	res, _ = l.Allow(ctx, "ip:5.6.7.8", 3, time.Minute, now)
	if !res.Allowed {
		t.Fatalf("other keys must not be throttled")
	}
}

func TestMemoryLimiter_ZeroLimitDisables(t *testing.T) {
	l := NewMemoryLimiter()
	for i := 0; i < 100; i++ {
		res, err := l.Allow(context.Background(), "ip:1.2.3.4", 0, time.Minute, time.Now())
		if err != nil || !res.Allowed {
			t.Fatalf("disabled limiter rejected request %d: %+v %v", i, res, err)
		}
	}
}
