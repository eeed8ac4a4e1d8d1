package rate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryLimiterWindow(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	l := NewMemory()
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow(ctx, "login:ip:1.2.3.4", 3, time.Minute); !ok {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	ok, retry := l.Allow(ctx, "login:ip:1.2.3.4", 3, time.Minute)
	if ok {
		t.Fatalf("fourth attempt should be limited")
	}
	if retry != time.Minute {
		t.Fatalf("unexpected retry: %s", retry)
	}

	if ok, _ := l.Allow(ctx, "login:ip:5.6.7.8", 3, time.Minute); !ok {
		t.Fatalf("other keys are independent")
	}

	now = now.Add(time.Minute + time.Second)
	if ok, _ := l.Allow(ctx, "login:ip:1.2.3.4", 3, time.Minute); !ok {
		t.Fatalf("window should have reset")
	}
}

func TestMemoryLimiterResetsAtWindowEnd(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	l := NewMemory()
	l.now = func() time.Time { return now }
	ctx := context.Background()
	key := Key("register", "10.0.0.1")

	if ok, _ := l.Allow(ctx, key, 1, time.Minute); !ok {
		t.Fatalf("first attempt should be allowed")
	}
	now = now.Add(time.Minute - time.Nanosecond)
	if ok, retry := l.Allow(ctx, key, 1, time.Minute); ok || retry != time.Nanosecond {
		t.Fatalf("expected limit with 1ns retry, got %v %s", ok, retry)
	}
	now = now.Add(time.Nanosecond)
	if ok, _ := l.Allow(ctx, key, 1, time.Minute); !ok {
		t.Fatalf("window should reset exactly at its end")
	}
	if ok, _ := l.Allow(ctx, key, 0, time.Minute); !ok {
		t.Fatalf("a non-positive limit disables limiting")
	}
}

func TestMemoryLimiterPrunesClosedWindows(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	l := NewMemory()
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < pruneThreshold; i++ {
		l.Allow(ctx, Key("login", fmt.Sprintf("10.0.%d.%d", i/256, i%256)), 5, time.Minute)
	}
	if l.Len() != pruneThreshold {
		t.Fatalf("expected %d keys, got %d", pruneThreshold, l.Len())
	}

	now = now.Add(2 * time.Minute)
	l.Allow(ctx, Key("login", "192.0.2.1"), 5, time.Minute)
	if l.Len() != 1 {
		t.Fatalf("expected closed windows pruned, %d keys left", l.Len())
	}
}

func TestKey(t *testing.T) {
	if got := Key("post", "203.0.113.9"); got != "post:ip:203.0.113.9" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestRedisLimiterFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	l := NewRedis(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if ok, _ := l.Allow(context.Background(), "login:ip:1.2.3.4", 1, time.Minute); !ok {
		t.Fatalf("unreachable redis should not block requests")
	}
}
