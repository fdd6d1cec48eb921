package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"store-core/internal/apperr"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	minSecretLength = 32
)

// IdentityLookup resolves the subject of a refresh token. A nil identity
// with a nil error means the subject does not exist.
type IdentityLookup interface {
	FindByID(ctx context.Context, id string) (*Identity, error)
}

type Claims struct {
	Type     string `json:"typ"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     Role   `json:"role,omitempty"`
	Stamp    string `json:"stamp,omitempty"`
	jwt.RegisteredClaims
}

type TokenConfig struct {
	Secret     string
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type TokenService struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	lookup     IdentityLookup
	now        func() time.Time
}

func NewTokenService(cfg TokenConfig, lookup IdentityLookup) (*TokenService, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d characters", minSecretLength)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	if lookup == nil {
		return nil, errors.New("identity lookup is required")
	}

	return &TokenService{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		lookup:     lookup,
		now:        time.Now,
	}, nil
}

// WithClock replaces the time source used for issuing and validating.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

func (s *TokenService) AccessTTL() time.Duration {
	return s.accessTTL
}

func (s *TokenService) IssueAccess(identity Identity) (Token, error) {
	return s.issue(identity, tokenTypeAccess, s.accessTTL)
}

// IssueRefresh carries only the subject and the rotation stamp.
func (s *TokenService) IssueRefresh(identity Identity) (Token, error) {
	return s.issue(Identity{ID: identity.ID, Stamp: identity.Stamp}, tokenTypeRefresh, s.refreshTTL)
}

func (s *TokenService) IssuePair(identity Identity) (TokenPair, error) {
	access, err := s.IssueAccess(identity)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.IssueRefresh(identity)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      access.Value,
		RefreshToken:     refresh.Value,
		TokenType:        "Bearer",
		ExpiresIn:        int64(s.accessTTL.Seconds()),
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

func (s *TokenService) issue(identity Identity, tokenType string, ttl time.Duration) (Token, error) {
	now := s.now().UTC()
	expiresAt := now.Add(ttl)

	claims := Claims{
		Type:     tokenType,
		Username: identity.Username,
		Email:    identity.Email,
		Role:     identity.Role,
		Stamp:    identity.Stamp,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity.ID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign jwt: %w", err)
	}

	return Token{Value: signed, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func (s *TokenService) ValidateAccess(token string) (*Claims, error) {
	return s.parse(token, tokenTypeAccess)
}

// ValidateRefresh checks the token itself and then that its subject still
// exists and its stamp is the one currently stored for the subject.
func (s *TokenService) ValidateRefresh(ctx context.Context, token string) (*Claims, error) {
	claims, _, err := s.validateRefresh(ctx, token)
	return claims, err
}

func (s *TokenService) validateRefresh(ctx context.Context, token string) (*Claims, *Identity, error) {
	claims, err := s.parse(token, tokenTypeRefresh)
	if err != nil {
		return nil, nil, err
	}

	identity, err := s.lookup.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, nil, err
	}
	if identity == nil {
		return nil, nil, apperr.New(apperr.InvalidToken, "token subject does not exist")
	}
	if subtle.ConstantTimeCompare([]byte(claims.Stamp), []byte(identity.Stamp)) != 1 {
		return nil, nil, apperr.New(apperr.TokenRevoked, "token stamp is no longer current")
	}

	return claims, identity, nil
}

func (s *TokenService) parse(token, tokenType string) (*Claims, error) {
	if token == "" {
		return nil, apperr.New(apperr.InvalidOrExpiredToken, "token is empty")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)

	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, apperr.Wrap(apperr.InvalidOrExpiredToken, "token failed validation", err)
	}
	if claims.Type != tokenType {
		return nil, apperr.New(apperr.InvalidOrExpiredToken, fmt.Sprintf("expected %s token, got %q", tokenType, claims.Type))
	}
	if claims.Subject == "" {
		return nil, apperr.New(apperr.InvalidToken, "token has no subject")
	}

	return claims, nil
}
