package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"store-core/internal/apperr"
	"store-core/internal/observability"
)

const (
	defaultMaxAttempts = 5
	defaultLockWindow  = 15 * time.Minute
)

// IdentityStore is everything the auth flows need from user persistence.
// Finders return a nil identity with a nil error when nothing matches.
type IdentityStore interface {
	IdentityLookup
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	Create(ctx context.Context, input NewIdentity) (*Identity, error)
	CheckPassword(ctx context.Context, id, password string) (bool, error)
	// RecordFailedAttempt counts one failed password check and, once the
	// count reaches maxAttempts, locks the user until now+lockFor and starts
	// counting from zero again. It returns the lock expiry when it locked.
	RecordFailedAttempt(ctx context.Context, id string, maxAttempts int, lockFor time.Duration, now time.Time) (*time.Time, error)
	ResetFailedAttempts(ctx context.Context, id string) error
	// IsLockedOut returns the lock expiry while a lock is active.
	IsLockedOut(ctx context.Context, id string, now time.Time) (*time.Time, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	// RotateStamp replaces the user's stamp and returns the new value.
	RotateStamp(ctx context.Context, id string) (string, error)
	List(ctx context.Context) ([]Identity, error)
}

type Service struct {
	store        IdentityStore
	tokens       *TokenService
	logger       *observability.Logger
	maxAttempts  int
	lockDuration time.Duration
	now          func() time.Time
}

func NewService(store IdentityStore, tokens *TokenService, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		store:        store,
		tokens:       tokens,
		logger:       logger,
		maxAttempts:  defaultMaxAttempts,
		lockDuration: defaultLockWindow,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithSecurityConfig(maxAttempts int, lockDuration time.Duration) {
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	if lockDuration > 0 {
		s.lockDuration = lockDuration
	}
}

func (s *Service) WithClock(now func() time.Time) {
	s.now = now
}

func (s *Service) Register(ctx context.Context, username, email, password string, role Role) (Session, error) {
	email = normalizeEmail(email)

	existing, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return Session{}, err
	}
	if existing != nil {
		return Session{}, apperr.New(apperr.DuplicateEmail, "email is already registered")
	}

	identity, err := s.store.Create(ctx, NewIdentity{
		Username: strings.TrimSpace(username),
		Email:    email,
		Password: password,
		Role:     role,
	})
	if err != nil {
		return Session{}, err
	}

	s.logger.Info("user_registered", map[string]any{"user_id": identity.ID, "role": string(identity.Role)})
	return s.session(*identity)
}

// Login never reveals whether the email exists: unknown emails and wrong
// passwords fail identically. Unknown emails do not touch any counter.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	return s.LoginAs(ctx, email, password, "")
}

// LoginAs is Login restricted to one role. An identity with another role
// gets Forbidden after its password checks out, before the counter reset
// and the last-login update. An empty role accepts any identity.
func (s *Service) LoginAs(ctx context.Context, email, password string, role Role) (Session, error) {
	identity, err := s.store.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return Session{}, err
	}
	if identity == nil {
		return Session{}, invalidCredentials()
	}

	now := s.now()
	lockedUntil, err := s.store.IsLockedOut(ctx, identity.ID, now)
	if err != nil {
		return Session{}, err
	}
	if lockedUntil != nil {
		return Session{}, accountLocked(*lockedUntil)
	}

	ok, err := s.store.CheckPassword(ctx, identity.ID, password)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		until, err := s.store.RecordFailedAttempt(ctx, identity.ID, s.maxAttempts, s.lockDuration, now)
		if err != nil {
			return Session{}, err
		}
		if until != nil {
			s.logger.Warn("account_locked", map[string]any{
				"user_id":      identity.ID,
				"locked_until": until.Format(time.RFC3339),
			})
		}
		return Session{}, invalidCredentials()
	}
	if role != "" && identity.Role != role {
		return Session{}, apperr.New(apperr.Forbidden, "account cannot sign in here")
	}

	if err := s.store.ResetFailedAttempts(ctx, identity.ID); err != nil {
		return Session{}, err
	}
	if err := s.store.UpdateLastLogin(ctx, identity.ID, now); err != nil {
		return Session{}, err
	}
	identity.LastLoginAt = &now

	s.logger.Info("user_logged_in", map[string]any{"user_id": identity.ID})
	return s.session(*identity)
}

// Refresh issues a new pair for a valid refresh token. The presented token
// stays valid until it expires or the user's stamp rotates.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	_, identity, err := s.tokens.validateRefresh(ctx, strings.TrimSpace(refreshToken))
	if err != nil {
		s.logRejectedToken("refresh_rejected", err)
		return TokenPair{}, err
	}

	return s.tokens.IssuePair(*identity)
}

// Logout rotates the user's stamp when the refresh token is valid, which
// revokes every session of that user. Invalid tokens are ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	_, identity, err := s.tokens.validateRefresh(ctx, strings.TrimSpace(refreshToken))
	if err != nil {
		s.logRejectedToken("logout_ignored", err)
		if apperr.IsBusiness(apperr.KindOf(err)) {
			return nil
		}
		return err
	}

	if _, err := s.store.RotateStamp(ctx, identity.ID); err != nil {
		return err
	}

	s.logger.Info("user_logged_out", map[string]any{"user_id": identity.ID})
	return nil
}

// RevokeSessions invalidates every token issued to the user so far.
func (s *Service) RevokeSessions(ctx context.Context, userID string) error {
	if _, err := s.identity(ctx, userID); err != nil {
		return err
	}
	if _, err := s.store.RotateStamp(ctx, userID); err != nil {
		return err
	}

	s.logger.Info("sessions_revoked", map[string]any{"user_id": userID})
	return nil
}

func (s *Service) Profile(ctx context.Context, userID string) (UserView, error) {
	identity, err := s.identity(ctx, userID)
	if err != nil {
		return UserView{}, err
	}
	return toView(*identity), nil
}

func (s *Service) ListUsers(ctx context.Context) ([]UserView, error) {
	identities, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	users := make([]UserView, 0, len(identities))
	for _, identity := range identities {
		users = append(users, toView(identity))
	}
	return users, nil
}

// BootstrapAdmin creates the administrator from configuration once. Both
// values empty disables it.
func (s *Service) BootstrapAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	password = strings.TrimSpace(password)

	if email == "" && password == "" {
		return nil
	}
	if email == "" || password == "" {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD are required together")
	}

	existing, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	identity, err := s.store.Create(ctx, NewIdentity{
		Username: "admin",
		Email:    email,
		Password: password,
		Role:     RoleAdmin,
	})
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	s.logger.Info("admin_bootstrapped", map[string]any{"user_id": identity.ID})
	return nil
}

func (s *Service) identity(ctx context.Context, userID string) (*Identity, error) {
	identity, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, apperr.New(apperr.NotFound, "user not found")
	}
	return identity, nil
}

func (s *Service) session(identity Identity) (Session, error) {
	pair, err := s.tokens.IssuePair(identity)
	if err != nil {
		return Session{}, err
	}
	return Session{Tokens: pair, User: toView(identity)}, nil
}

func (s *Service) logRejectedToken(event string, err error) {
	s.logger.Warn(event, map[string]any{
		"kind":  string(apperr.KindOf(err)),
		"error": err.Error(),
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func invalidCredentials() error {
	return apperr.New(apperr.InvalidCredentials, "invalid email or password")
}

func accountLocked(until time.Time) error {
	return &apperr.Error{
		Kind:    apperr.AccountLocked,
		Message: "account is temporarily locked, try again later",
		Details: []string{"account is temporarily locked until " + until.UTC().Format(time.RFC3339)},
	}
}
