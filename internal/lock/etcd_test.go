package lock

import (
	"context"
	"testing"
	"time"
)

type traceKey struct{}

func TestSessionContext_OutlivesCaller(t *testing.T) {
	parent, cancel := context.WithTimeout(context.WithValue(context.Background(), traceKey{}, "req-1"), time.Minute)
	session := sessionContext(parent)
	cancel()

	if err := session.Err(); err != nil {
		t.Fatalf("lease context ended with the caller: %v", err)
	}
	if _, ok := session.Deadline(); ok {
		t.Error("lease context must not inherit the caller deadline")
	}
	if session.Value(traceKey{}) != "req-1" {
		t.Error("request values should carry over")
	}
}

func TestNewEtcdStore_Defaults(t *testing.T) {
	s := NewEtcdStore(nil, "", 0)
	if s.prefix != defaultEtcdPrefix {
		t.Errorf("expected default prefix, got %q", s.prefix)
	}
	if s.ttl != 10 {
		t.Errorf("expected 10s fallback ttl, got %d", s.ttl)
	}
}
