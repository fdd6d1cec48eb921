package maintenance

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"store-core/internal/observability"
	"store-core/internal/respond"
)

// LockoutCleaner drops account lockouts whose window has elapsed.
type LockoutCleaner interface {
	ClearExpiredLockouts(ctx context.Context, now time.Time, batchSize int) (int64, error)
}

type CleanupResult struct {
	ClearedLockouts int64 `json:"cleared_lockouts"`
}

type CleanupHandler struct {
	cleaner    LockoutCleaner
	logger     *observability.Logger
	cronSecret string
	batchSize  int
	now        func() time.Time
}

func NewCleanupHandler(cleaner LockoutCleaner, logger *observability.Logger, cronSecret string, batchSize int) *CleanupHandler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &CleanupHandler{
		cleaner:    cleaner,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		batchSize:  batchSize,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Handle is disabled (404) unless a cron secret is configured, and then
// requires it as a bearer token.
func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		respond.Error(w, http.StatusNotFound, "not found")
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") ||
		subtle.ConstantTimeCompare([]byte(strings.TrimSpace(parts[1])), []byte(h.cronSecret)) != 1 {
		respond.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cleared, err := h.cleaner.ClearExpiredLockouts(r.Context(), h.now(), h.batchSize)
	if err != nil {
		respond.Fail(w, h.logger, err)
		return
	}

	h.logger.Info("lockout_cleanup_completed", map[string]any{"cleared_lockouts": cleared})
	respond.OK(w, http.StatusOK, CleanupResult{ClearedLockouts: cleared}, "cleanup completed", nil)
}
