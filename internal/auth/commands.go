package auth

import (
	"context"
	"unicode"

	"github.com/go-playground/validator/v10"

	"store-core/internal/dispatch"
)

type RegisterCommand struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=200"`
	Role     Role   `json:"role" validate:"oneof=Admin User"`
}

func (RegisterCommand) Describe() dispatch.Descriptor {
	return dispatch.Descriptor{Name: "auth.register"}
}

type LoginCommand struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	// Role limits the login to one surface; empty accepts any role.
	Role Role `json:"-"`
}

func (LoginCommand) Describe() dispatch.Descriptor {
	return dispatch.Descriptor{Name: "auth.login"}
}

type RefreshCommand struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (RefreshCommand) Describe() dispatch.Descriptor {
	return dispatch.Descriptor{Name: "auth.refresh"}
}

type LogoutCommand struct {
	RefreshToken string `json:"refresh_token"`
}

func (LogoutCommand) Describe() dispatch.Descriptor {
	return dispatch.Descriptor{Name: "auth.logout"}
}

type GetProfileQuery struct {
	UserID string `json:"user_id" validate:"required"`
}

func (GetProfileQuery) Describe() dispatch.Descriptor {
	return dispatch.Descriptor{Name: "auth.profile"}
}

type ListUsersQuery struct{}

func (ListUsersQuery) Describe() dispatch.Descriptor {
	return dispatch.Descriptor{Name: "auth.list_users"}
}

type RevokeSessionsCommand struct {
	UserID string `json:"user_id" validate:"required"`
}

func (c RevokeSessionsCommand) Describe() dispatch.Descriptor {
	return dispatch.Descriptor{
		Name: "auth.revoke_sessions",
		Lock: &dispatch.LockSpec{Key: "locks:user:" + c.UserID},
	}
}

var validationMessages = map[string]string{
	"username.required":      "username is required",
	"username.min":           "username must be between 3 and 50 characters",
	"username.max":           "username must be between 3 and 50 characters",
	"email.required":         "email is required",
	"email.email":            "email is not a valid email address",
	"password.required":      "password is required",
	"password.min":           "password must be at least 8 characters",
	"password.max":           "password must be at most 200 characters",
	"role.oneof":             "role must be Admin or User",
	"refresh_token.required": "refresh token is required",
	"user_id.required":       "user id is required",
}

// passwordStrength requires one character from each class.
func passwordStrength(_ context.Context, c RegisterCommand) []string {
	var upper, lower, digit, symbol bool
	for _, r := range c.Password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	var messages []string
	if !upper {
		messages = append(messages, "password must contain an uppercase letter")
	}
	if !lower {
		messages = append(messages, "password must contain a lowercase letter")
	}
	if !digit {
		messages = append(messages, "password must contain a digit")
	}
	if !symbol {
		messages = append(messages, "password must contain a symbol")
	}
	return messages
}

// RegisterHandlers wires every auth request into the dispatcher registry.
func (s *Service) RegisterHandlers(r *dispatch.Registry, validate *validator.Validate) {
	dispatch.Handle(r, func(ctx context.Context, c RegisterCommand) (Session, error) {
		return s.Register(ctx, c.Username, c.Email, c.Password, c.Role)
	})
	dispatch.Handle(r, func(ctx context.Context, c LoginCommand) (Session, error) {
		return s.LoginAs(ctx, c.Email, c.Password, c.Role)
	})
	dispatch.Handle(r, func(ctx context.Context, c RefreshCommand) (TokenPair, error) {
		return s.Refresh(ctx, c.RefreshToken)
	})
	dispatch.Handle(r, func(ctx context.Context, c LogoutCommand) (bool, error) {
		if err := s.Logout(ctx, c.RefreshToken); err != nil {
			return false, err
		}
		return true, nil
	})
	dispatch.Handle(r, func(ctx context.Context, q GetProfileQuery) (UserView, error) {
		return s.Profile(ctx, q.UserID)
	})
	dispatch.Handle(r, func(ctx context.Context, _ ListUsersQuery) ([]UserView, error) {
		return s.ListUsers(ctx)
	})
	dispatch.Handle(r, func(ctx context.Context, c RevokeSessionsCommand) (bool, error) {
		if err := s.RevokeSessions(ctx, c.UserID); err != nil {
			return false, err
		}
		return true, nil
	})

	dispatch.Validate[RegisterCommand](r,
		dispatch.NewStructValidator[RegisterCommand](validate, validationMessages),
		dispatch.ValidatorFunc[RegisterCommand](passwordStrength),
	)
	dispatch.Validate[LoginCommand](r, dispatch.NewStructValidator[LoginCommand](validate, validationMessages))
	dispatch.Validate[RefreshCommand](r, dispatch.NewStructValidator[RefreshCommand](validate, validationMessages))
	dispatch.Validate[GetProfileQuery](r, dispatch.NewStructValidator[GetProfileQuery](validate, validationMessages))
	dispatch.Validate[RevokeSessionsCommand](r, dispatch.NewStructValidator[RevokeSessionsCommand](validate, validationMessages))
}
