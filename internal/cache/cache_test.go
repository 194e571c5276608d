package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryProviderExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryProvider()
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("expected hit, got %q %v", got, err)
	}
	got[0] = 'x'
	if again, _ := c.Get(ctx, "k"); string(again) != "v" {
		t.Fatalf("cached value mutated through returned slice")
	}

	now = now.Add(2 * time.Minute)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after expiry, got %v", err)
	}
}

func TestMemoryProviderSetNX(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryProvider()
	ok, _ := c.SetNX(ctx, "lock", []byte("a"), 0)
	if !ok {
		t.Fatalf("expected first SetNX to succeed")
	}
	ok, _ = c.SetNX(ctx, "lock", []byte("b"), 0)
	if ok {
		t.Fatalf("expected second SetNX to fail")
	}
	_ = c.Del(ctx, "lock")
	if ok, _ = c.SetNX(ctx, "lock", []byte("c"), 0); !ok {
		t.Fatalf("expected SetNX after delete to succeed")
	}
}

type failingProvider struct {
	NoopProvider
	calls int
	err   error
}

func (f *failingProvider) Get(context.Context, string) ([]byte, error) {
	f.calls++
	return nil, f.err
}

func (f *failingProvider) Set(context.Context, string, []byte, time.Duration) error {
	f.calls++
	return f.err
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	ctx := context.Background()
	inner := &failingProvider{err: errors.New("connection refused")}
	b := NewBreakerProvider(inner, BreakerConfig{FailureThreshold: 3, Timeout: time.Hour})

	for i := 0; i < 3; i++ {
		if _, err := b.Get(ctx, "k"); err == nil || errors.Is(err, ErrCacheMiss) {
			t.Fatalf("call %d: expected upstream error, got %v", i, err)
		}
	}
	if b.State() != "open" {
		t.Fatalf("expected open circuit, got %s", b.State())
	}

	if _, err := b.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss while open, got %v", err)
	}
	if err := b.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("expected dropped write while open, got %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("open circuit must not reach the provider, calls=%d", inner.calls)
	}
}

func TestBreakerIgnoresMisses(t *testing.T) {
	inner := &failingProvider{err: ErrCacheMiss}
	b := NewBreakerProvider(inner, BreakerConfig{FailureThreshold: 1})
	for i := 0; i < 5; i++ {
		_, _ = b.Get(context.Background(), "k")
	}
	if b.State() != "closed" {
		t.Fatalf("misses must not trip the breaker, state=%s", b.State())
	}
}

func TestNewSelectsBackend(t *testing.T) {
	tests := []struct {
		backend string
		want    string
		wantErr bool
	}{
		{backend: "", want: "noop"},
		{backend: "none", want: "noop"},
		{backend: "memory", want: "memory"},
		{backend: "redis", wantErr: true},
		{backend: "memcached", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			p, err := New(Config{Backend: tt.backend})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			switch p.(type) {
			case NoopProvider:
				if tt.want != "noop" {
					t.Fatalf("unexpected noop provider")
				}
			case *MemoryProvider:
				if tt.want != "memory" {
					t.Fatalf("unexpected memory provider")
				}
			default:
				t.Fatalf("unexpected provider %T", p)
			}
		})
	}
}

func TestRedisProviderFailsFast(t *testing.T) {
	_, err := NewRedisProvider(RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	if err == nil {
		t.Fatalf("expected ping failure against a closed port")
	}
}
