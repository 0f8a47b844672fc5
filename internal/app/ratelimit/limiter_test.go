package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeCounterStore struct {
	counts  map[string]int64
	expires map[string]time.Duration
	err     error
}

func newFakeCounterStore() *fakeCounterStore {
	return &fakeCounterStore{
		counts:  make(map[string]int64),
		expires: make(map[string]time.Duration),
	}
}

func (s *fakeCounterStore) Incr(_ context.Context, key string) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.counts[key]++
	return s.counts[key], nil
}

func (s *fakeCounterStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	if s.err != nil {
		return s.err
	}
	s.expires[key] = ttl
	return nil
}

func TestLimiter_DeniesOverLimit(t *testing.T) {
	store := newFakeCounterStore()
	l := NewWithStore(store, Config{Limit: 3, Window: time.Hour}, nil)

	wantAllowed := []bool{true, true, true, false, false}
	wantRemaining := []int{2, 1, 0, 0, 0}
	for i := range wantAllowed {
		allowed, remaining := l.Allow(context.Background(), "client-a", 0)
		if allowed != wantAllowed[i] {
			t.Fatalf("attempt %d: allowed = %v, want %v", i+1, allowed, wantAllowed[i])
		}
		if remaining != wantRemaining[i] {
			t.Fatalf("attempt %d: remaining = %d, want %d", i+1, remaining, wantRemaining[i])
		}
	}
}

func TestLimiter_IdentitiesAreIndependent(t *testing.T) {
	store := newFakeCounterStore()
	l := NewWithStore(store, Config{Limit: 1, Window: time.Hour}, nil)

	if allowed, _ := l.Allow(context.Background(), "client-a", 0); !allowed {
		t.Fatal("first request for client-a must pass")
	}
	if allowed, _ := l.Allow(context.Background(), "client-a", 0); allowed {
		t.Fatal("second request for client-a must be denied")
	}
	if allowed, _ := l.Allow(context.Background(), "client-b", 0); !allowed {
		t.Fatal("client-b has its own window")
	}
}

func TestLimiter_WindowExpirySetOnce(t *testing.T) {
	store := newFakeCounterStore()
	l := NewWithStore(store, Config{Limit: 5, Window: time.Minute, KeyPrefix: "rl"}, nil)

	for i := 0; i < 3; i++ {
		l.Allow(context.Background(), "client-a", 0)
	}
	if ttl := store.expires["rl:client-a"]; ttl != time.Minute {
		t.Fatalf("expected window ttl on first increment, got %v", ttl)
	}
	if len(store.expires) != 1 {
		t.Fatalf("expire must only be issued for the first request, got %d keys", len(store.expires))
	}
}

func TestLimiter_WindowResetRestoresQuota(t *testing.T) {
	store := newFakeCounterStore()
	l := NewWithStore(store, Config{Limit: 1, Window: time.Hour, KeyPrefix: "rl"}, nil)

	l.Allow(context.Background(), "client-a", 0)
	if allowed, _ := l.Allow(context.Background(), "client-a", 0); allowed {
		t.Fatal("quota should be spent")
	}

	// Simulate the window key expiring.
	delete(store.counts, "rl:client-a")

	if allowed, remaining := l.Allow(context.Background(), "client-a", 0); !allowed || remaining != 0 {
		t.Fatalf("fresh window must restore quota, got %v remaining %d", allowed, remaining)
	}
}

func TestLimiter_FailsOpenOnStoreError(t *testing.T) {
	store := newFakeCounterStore()
	store.err = errors.New("redis down")
	l := NewWithStore(store, Config{Limit: 2, Window: time.Hour}, nil)

	allowed, remaining := l.Allow(context.Background(), "client-a", 0)
	if !allowed {
		t.Fatal("a counter outage must not block requests")
	}
	if remaining != 2 {
		t.Fatalf("fail-open reports the full quota, got %d", remaining)
	}
}

func TestLimiter_PerCallLimitOverride(t *testing.T) {
	store := newFakeCounterStore()
	l := NewWithStore(store, Config{Limit: 30, Window: time.Hour}, nil)

	if allowed, _ := l.Allow(context.Background(), "client-a", 1); !allowed {
		t.Fatal("first request within override must pass")
	}
	if allowed, _ := l.Allow(context.Background(), "client-a", 1); allowed {
		t.Fatal("override of 1 must deny the second request")
	}
}

func TestLimiter_DefaultsApplied(t *testing.T) {
	l := NewWithStore(newFakeCounterStore(), Config{}, nil)
	if l.Window() != time.Hour {
		t.Fatalf("expected default window of an hour, got %v", l.Window())
	}
}
