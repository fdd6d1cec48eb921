package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type fakeUser struct {
	identity    Identity
	password    string
	failed      int
	lockedUntil *time.Time
}

type fakeStore struct {
	mu     sync.Mutex
	users  map[string]*fakeUser
	nextID int
	stamps int
	// failedCalls counts RecordFailedAttempt invocations.
	failedCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]*fakeUser)}
}

func (f *fakeStore) FindByID(_ context.Context, id string) (*Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	identity := u.identity
	return &identity, nil
}

func (f *fakeStore) FindByEmail(_ context.Context, email string) (*Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.identity.Email == email {
			identity := u.identity
			return &identity, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Create(_ context.Context, input NewIdentity) (*Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	identity := Identity{
		ID:        fmt.Sprintf("user-%d", f.nextID),
		Username:  input.Username,
		Email:     input.Email,
		Role:      input.Role,
		Stamp:     f.newStamp(),
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f.users[identity.ID] = &fakeUser{identity: identity, password: input.Password}
	return &identity, nil
}

func (f *fakeStore) CheckPassword(_ context.Context, id, password string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	return ok && u.password == password, nil
}

func (f *fakeStore) RecordFailedAttempt(_ context.Context, id string, maxAttempts int, lockFor time.Duration, now time.Time) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedCalls++
	u := f.users[id]
	if u.lockedUntil != nil && now.Before(*u.lockedUntil) {
		return u.lockedUntil, nil
	}
	u.failed++
	if u.failed >= maxAttempts {
		until := now.Add(lockFor)
		u.lockedUntil = &until
		u.failed = 0
		return &until, nil
	}
	return nil, nil
}

func (f *fakeStore) ResetFailedAttempts(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	u.failed = 0
	u.lockedUntil = nil
	return nil
}

func (f *fakeStore) IsLockedOut(_ context.Context, id string, now time.Time) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	if u.lockedUntil == nil || !now.Before(*u.lockedUntil) {
		return nil, nil
	}
	until := *u.lockedUntil
	return &until, nil
}

func (f *fakeStore) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id].identity.LastLoginAt = &at
	return nil
}

func (f *fakeStore) RotateStamp(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	u.identity.Stamp = f.newStamp()
	return u.identity.Stamp, nil
}

func (f *fakeStore) List(_ context.Context) ([]Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Identity, 0, len(f.users))
	for i := 1; i <= f.nextID; i++ {
		if u, ok := f.users[fmt.Sprintf("user-%d", i)]; ok {
			out = append(out, u.identity)
		}
	}
	return out, nil
}

func (f *fakeStore) newStamp() string {
	f.stamps++
	return fmt.Sprintf("stamp-%d", f.stamps)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestTokens(t interface{ Fatalf(string, ...any) }, store IdentityLookup, c *clock) *TokenService {
	tokens, err := NewTokenService(TokenConfig{
		Secret:     testSecret,
		Issuer:     "store-core",
		Audience:   "store-clients",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}, store)
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	return tokens.WithClock(c.Now)
}
