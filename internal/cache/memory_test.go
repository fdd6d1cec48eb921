package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_SetAndGet(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "key1", []byte("value1"), time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}

	val, found, err := s.Get(ctx, "key1")
	if err != nil || !found {
		t.Fatalf("expected to find key1, got found=%v err=%v", found, err)
	}
	if string(val) != "value1" {
		t.Errorf("expected value1, got %s", val)
	}
}

func TestMemoryStore_Expiration(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_ = s.Set(ctx, "key1", []byte("value1"), 100*time.Millisecond)

	if _, found, _ := s.Get(ctx, "key1"); !found {
		t.Fatal("expected to find key1 immediately")
	}

	now = now.Add(100 * time.Millisecond)
	if _, found, _ := s.Get(ctx, "key1"); found {
		t.Error("expected key1 to be expired at its expiry instant")
	}
}

func TestMemoryStore_Remove(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	_ = s.Set(ctx, "a", []byte("1"), time.Second)
	_ = s.Set(ctx, "b", []byte("2"), time.Second)
	_ = s.Remove(ctx, "a", "b", "missing")

	for _, key := range []string{"a", "b"} {
		if _, found, _ := s.Get(ctx, key); found {
			t.Errorf("expected %s to be removed", key)
		}
	}
}

func TestMemoryStore_IncrWindow(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		n, remaining, err := s.Incr(ctx, "hits", time.Minute)
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if n != int64(i) {
			t.Errorf("expected count %d, got %d", i, n)
		}
		if remaining != time.Minute {
			t.Errorf("expected full window, got %v", remaining)
		}
	}

	now = now.Add(time.Minute)
	if n, _, _ := s.Incr(ctx, "hits", time.Minute); n != 1 {
		t.Errorf("expected counter to restart after the window, got %d", n)
	}
}
