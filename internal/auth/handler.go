package auth

import (
	"net/http"
	"strings"

	"store-core/internal/apperr"
	"store-core/internal/dispatch"
	"store-core/internal/observability"
	"store-core/internal/respond"
)

// Handler serves the auth routes of one audience. Admin and user clients
// each get their own Handler so a login through the admin surface only
// succeeds for admins.
type Handler struct {
	dispatcher *dispatch.Dispatcher
	role       Role
	logger     *observability.Logger
}

func NewHandler(dispatcher *dispatch.Dispatcher, role Role, logger *observability.Logger) *Handler {
	return &Handler{dispatcher: dispatcher, role: role, logger: logger}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !respond.Decode(w, r, &body) {
		return
	}

	session, err := dispatch.Send[Session](r.Context(), h.dispatcher, RegisterCommand{
		Username: strings.TrimSpace(body.Username),
		Email:    strings.TrimSpace(body.Email),
		Password: body.Password,
		Role:     h.role,
	})
	if err != nil {
		respond.Fail(w, h.logger, err)
		return
	}

	respond.OK(w, http.StatusCreated, session, "registered", nil)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !respond.Decode(w, r, &body) {
		return
	}

	session, err := dispatch.Send[Session](r.Context(), h.dispatcher, LoginCommand{
		Email:    strings.TrimSpace(body.Email),
		Password: body.Password,
		Role:     h.role,
	})
	if err != nil {
		respond.Fail(w, h.logger, err)
		return
	}

	respond.OK(w, http.StatusOK, session, "logged in", nil)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !respond.Decode(w, r, &body) {
		return
	}

	tokens, err := dispatch.Send[TokenPair](r.Context(), h.dispatcher, RefreshCommand{
		RefreshToken: strings.TrimSpace(body.RefreshToken),
	})
	if err != nil {
		respond.Fail(w, h.logger, err)
		return
	}

	respond.OK(w, http.StatusOK, tokens, "", nil)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !respond.Decode(w, r, &body) {
		return
	}

	if _, err := dispatch.Send[bool](r.Context(), h.dispatcher, LogoutCommand{RefreshToken: body.RefreshToken}); err != nil {
		respond.Fail(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Profile must run behind Middleware.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFrom(r.Context())
	if !ok {
		respond.Fail(w, h.logger, apperr.New(apperr.InvalidToken, "no claims in context"))
		return
	}

	user, err := dispatch.Send[UserView](r.Context(), h.dispatcher, GetProfileQuery{UserID: claims.Subject})
	if err != nil {
		respond.Fail(w, h.logger, err)
		return
	}

	respond.OK(w, http.StatusOK, user, "", nil)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := dispatch.Send[[]UserView](r.Context(), h.dispatcher, ListUsersQuery{})
	if err != nil {
		respond.Fail(w, h.logger, err)
		return
	}

	respond.OK(w, http.StatusOK, users, "", map[string]int{"total": len(users)})
}

func (h *Handler) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	if _, err := dispatch.Send[bool](r.Context(), h.dispatcher, RevokeSessionsCommand{UserID: r.PathValue("id")}); err != nil {
		respond.Fail(w, h.logger, err)
		return
	}

	respond.OK(w, http.StatusOK, map[string]bool{"revoked": true}, "sessions revoked", nil)
}
