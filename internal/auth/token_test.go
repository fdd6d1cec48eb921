package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"store-core/internal/apperr"
)

func seedUser(t *testing.T, store *fakeStore) Identity {
	t.Helper()
	identity, err := store.Create(context.Background(), NewIdentity{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "Str0ng!pass",
		Role:     RoleUser,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return *identity
}

func TestNewTokenService_RejectsShortSecret(t *testing.T) {
	_, err := NewTokenService(TokenConfig{Secret: "short", AccessTTL: time.Minute, RefreshTTL: time.Hour}, newFakeStore())
	if err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestAccessToken_RoundTrip(t *testing.T) {
	store := newFakeStore()
	tokens := newTestTokens(t, store, newClock())
	user := seedUser(t, store)

	token, err := tokens.IssueAccess(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := tokens.ValidateAccess(token.Value)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != user.ID || claims.Email != user.Email || claims.Role != RoleUser || claims.Username != "alice" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Error("expected a token id")
	}
}

func TestRefreshToken_RoundTripCarriesOnlySubjectAndStamp(t *testing.T) {
	store := newFakeStore()
	tokens := newTestTokens(t, store, newClock())
	user := seedUser(t, store)

	token, err := tokens.IssueRefresh(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := tokens.ValidateRefresh(context.Background(), token.Value)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != user.ID || claims.Stamp != user.Stamp {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Email != "" || claims.Role != "" {
		t.Errorf("refresh token leaked identity claims: %+v", claims)
	}
}

func TestTokens_AreUniquePerIssue(t *testing.T) {
	store := newFakeStore()
	tokens := newTestTokens(t, store, newClock())
	user := seedUser(t, store)

	a, _ := tokens.IssueAccess(user)
	b, _ := tokens.IssueAccess(user)
	if a.Value == b.Value {
		t.Fatal("two tokens issued at the same instant must differ")
	}
}

func TestValidate_TamperedSignatureFails(t *testing.T) {
	store := newFakeStore()
	tokens := newTestTokens(t, store, newClock())
	user := seedUser(t, store)

	token, _ := tokens.IssueAccess(user)
	dot := strings.LastIndex(token.Value, ".")
	sig := []byte(token.Value[dot+1:])
	i := len(sig) / 2
	if sig[i] == 'A' {
		sig[i] = 'B'
	} else {
		sig[i] = 'A'
	}
	tampered := token.Value[:dot+1] + string(sig)

	_, err := tokens.ValidateAccess(tampered)
	if !apperr.Is(err, apperr.InvalidOrExpiredToken) {
		t.Fatalf("expected invalid_or_expired_token, got %v", err)
	}
}

func TestValidate_ExpiredFails(t *testing.T) {
	store := newFakeStore()
	c := newClock()
	tokens := newTestTokens(t, store, c)
	user := seedUser(t, store)

	access, _ := tokens.IssueAccess(user)
	refresh, _ := tokens.IssueRefresh(user)

	c.Advance(15*time.Minute + time.Second)
	if _, err := tokens.ValidateAccess(access.Value); !apperr.Is(err, apperr.InvalidOrExpiredToken) {
		t.Fatalf("expected expired access token to fail, got %v", err)
	}
	if _, err := tokens.ValidateRefresh(context.Background(), refresh.Value); err != nil {
		t.Fatalf("refresh token should outlive access token: %v", err)
	}

	c.Advance(7 * 24 * time.Hour)
	if _, err := tokens.ValidateRefresh(context.Background(), refresh.Value); !apperr.Is(err, apperr.InvalidOrExpiredToken) {
		t.Fatalf("expected expired refresh token to fail, got %v", err)
	}
}

func TestValidate_WrongTypeFails(t *testing.T) {
	store := newFakeStore()
	tokens := newTestTokens(t, store, newClock())
	user := seedUser(t, store)

	access, _ := tokens.IssueAccess(user)
	refresh, _ := tokens.IssueRefresh(user)

	if _, err := tokens.ValidateRefresh(context.Background(), access.Value); err == nil {
		t.Error("access token accepted as refresh token")
	}
	if _, err := tokens.ValidateAccess(refresh.Value); err == nil {
		t.Error("refresh token accepted as access token")
	}
}

func TestValidate_WrongAudienceOrIssuerFails(t *testing.T) {
	store := newFakeStore()
	c := newClock()
	tokens := newTestTokens(t, store, c)
	user := seedUser(t, store)

	other, err := NewTokenService(TokenConfig{
		Secret:     testSecret,
		Issuer:     "someone-else",
		Audience:   "store-clients",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}, store)
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	foreign, _ := other.WithClock(c.Now).IssueAccess(user)

	if _, err := tokens.ValidateAccess(foreign.Value); !apperr.Is(err, apperr.InvalidOrExpiredToken) {
		t.Fatalf("expected foreign issuer to fail, got %v", err)
	}
}

func TestValidate_RejectsOtherAlgorithms(t *testing.T) {
	store := newFakeStore()
	c := newClock()
	tokens := newTestTokens(t, store, c)
	user := seedUser(t, store)

	claims := Claims{
		Type: tokenTypeAccess,
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    "store-core",
			Audience:  jwt.ClaimStrings{"store-clients"},
			IssuedAt:  jwt.NewNumericDate(c.Now()),
			ExpiresAt: jwt.NewNumericDate(c.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := tokens.ValidateAccess(signed); !apperr.Is(err, apperr.InvalidOrExpiredToken) {
		t.Fatalf("expected HS512 token to be rejected, got %v", err)
	}
}

func TestValidateRefresh_StampRotationRevokes(t *testing.T) {
	store := newFakeStore()
	tokens := newTestTokens(t, store, newClock())
	user := seedUser(t, store)

	first, _ := tokens.IssueRefresh(user)
	second, _ := tokens.IssueRefresh(user)

	if _, err := store.RotateStamp(context.Background(), user.ID); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	for _, token := range []Token{first, second} {
		_, err := tokens.ValidateRefresh(context.Background(), token.Value)
		if !apperr.Is(err, apperr.TokenRevoked) {
			t.Fatalf("expected token_revoked, got %v", err)
		}
		if message, _ := apperr.Outward(err); message != apperr.GenericTokenMessage {
			t.Errorf("revocation leaked outward message %q", message)
		}
	}
}

func TestValidateRefresh_UnknownSubjectIsInvalidToken(t *testing.T) {
	store := newFakeStore()
	tokens := newTestTokens(t, store, newClock())

	token, err := tokens.IssueRefresh(Identity{ID: "ghost", Stamp: "stamp-x"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	_, err = tokens.ValidateRefresh(context.Background(), token.Value)
	if !apperr.Is(err, apperr.InvalidToken) {
		t.Fatalf("expected invalid_token, got %v", err)
	}
}
