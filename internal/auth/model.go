package auth

import "time"

type Role string

const (
	RoleAdmin Role = "Admin"
	RoleUser  Role = "User"
)

// Identity is a user as the identity store knows it. Stamp changes whenever
// every outstanding token of the user must stop validating.
type Identity struct {
	ID          string
	Username    string
	Email       string
	Role        Role
	Stamp       string
	CreatedAt   time.Time
	LastLoginAt *time.Time
}

type NewIdentity struct {
	Username string
	Email    string
	Password string
	Role     Role
}

type Token struct {
	Value     string
	ExpiresAt time.Time
}

type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type UserView struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Role        Role       `json:"role"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func toView(identity Identity) UserView {
	return UserView{
		ID:          identity.ID,
		Username:    identity.Username,
		Email:       identity.Email,
		Role:        identity.Role,
		CreatedAt:   identity.CreatedAt,
		LastLoginAt: identity.LastLoginAt,
	}
}

// Session is the result of a successful register or login.
type Session struct {
	Tokens TokenPair `json:"tokens"`
	User   UserView  `json:"user"`
}
