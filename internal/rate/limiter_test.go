package rate

import (
	"testing"
	"time"
)

func newTestLimiter(now *time.Time) *MemoryLimiter {
	m := NewMemory()
	m.now = func() time.Time { return *now }
	return m
}

func TestAllowWithinWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestLimiter(&now)

	for i := 0; i < 3; i++ {
		if ok, _ := m.Allow("ip", 3, time.Minute); !ok {
			t.Fatalf("hit %d should be allowed", i)
		}
	}
	ok, retry := m.Allow("ip", 3, time.Minute)
	if ok {
		t.Fatalf("fourth hit should be limited")
	}
	if retry != time.Minute {
		t.Fatalf("expected retry after 1m, got %s", retry)
	}

	if ok, _ := m.Allow("other", 3, time.Minute); !ok {
		t.Fatalf("keys must be independent")
	}

	now = now.Add(time.Minute + time.Second)
	if ok, _ := m.Allow("ip", 3, time.Minute); !ok {
		t.Fatalf("window should have reset")
	}
}

func TestNonPositiveLimitDisables(t *testing.T) {
	m := NewMemory()
	for i := 0; i < 10; i++ {
		if ok, _ := m.Allow("ip", 0, time.Minute); !ok {
			t.Fatalf("limit 0 should never block")
		}
	}
	if m.Len() != 0 {
		t.Fatalf("disabled limits should not track keys")
	}
}

func TestSweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestLimiter(&now)
	m.Allow("a", 1, time.Minute)
	m.Allow("b", 1, time.Hour)

	now = now.Add(2 * time.Minute)
	if n := m.Sweep(); n != 1 {
		t.Fatalf("expected 1 swept bucket, got %d", n)
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 remaining bucket, got %d", m.Len())
	}
}
