package maintenance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakeCleaner struct {
	calls   int
	cleared int64
}

func (f *fakeCleaner) ClearExpiredLockouts(context.Context, time.Time, int) (int64, error) {
	f.calls++
	return f.cleared, nil
}

func TestCleanup_DisabledWithoutSecret(t *testing.T) {
	cleaner := &fakeCleaner{}
	h := NewCleanupHandler(cleaner, nil, "", 100)

	rec := httptest.NewRecorder()
	h.Handle(rec, httptest.NewRequest(http.MethodPost, "/internal/maintenance/cleanup", nil))

	if rec.Code != http.StatusNotFound || cleaner.calls != 0 {
		t.Fatalf("expected 404 without running, got %d (%d calls)", rec.Code, cleaner.calls)
	}
}

func TestCleanup_RequiresSecret(t *testing.T) {
	cleaner := &fakeCleaner{}
	h := NewCleanupHandler(cleaner, nil, "cron-secret", 100)

	req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/cleanup", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	if rec.Code != http.StatusUnauthorized || cleaner.calls != 0 {
		t.Fatalf("expected 401 without running, got %d", rec.Code)
	}
}

func TestCleanup_ReportsClearedLockouts(t *testing.T) {
	cleaner := &fakeCleaner{cleared: 4}
	h := NewCleanupHandler(cleaner, nil, "cron-secret", 100)

	req := httptest.NewRequest(http.MethodGet, "/internal/maintenance/cleanup", nil)
	req.Header.Set("Authorization", "Bearer cron-secret")
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"cleared_lockouts":4`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}
