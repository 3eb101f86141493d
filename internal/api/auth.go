package api

import (
	"context"
	"net/http"

	"nexa/internal/auth"
	"nexa/internal/logging"
	"nexa/pkg/types"
)

type contextKey int

const (
	identityKey contextKey = iota
	tokenKey
)

// IdentityFrom returns the identity bound by the auth middleware.
func IdentityFrom(ctx context.Context) *types.Identity {
	identity, _ := ctx.Value(identityKey).(*types.Identity)
	return identity
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}

// requireAuth verifies the request credential with the same verifier the
// realtime handshake uses.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.TokenFromRequest(r, s.opts.CookieName)
		identity, err := s.deps.Auth.Verify(r.Context(), token)
		if err != nil {
			logging.FromContext(r.Context()).Debug("request not authenticated", "error", err)
			s.sendError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token string          `json:"token"`
	User  *types.Identity `json:"user"`
}

// POST /api/auth/login
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := s.decode(w, r, &req); err != nil {
		s.sendError(w, r, err)
		return
	}

	token, identity, err := s.deps.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	http.SetCookie(w, s.authCookie(token, int(s.deps.Auth.TTL().Seconds())))
	logging.FromContext(r.Context()).Info("user logged in", "user_id", identity.ID)
	s.writeJSON(w, r, http.StatusOK, Response{
		Data:    LoginResponse{Token: token, User: identity},
		Message: "User logged in successfully",
	})
}

// POST /api/auth/logout
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Auth.Revoke(r.Context(), tokenFrom(r.Context())); err != nil {
		s.sendError(w, r, err)
		return
	}

	http.SetCookie(w, s.authCookie("", -1))
	s.writeJSON(w, r, http.StatusOK, Response{
		Data:    struct{}{},
		Message: "User logged out successfully",
	})
}

// GET /api/auth/me
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, Response{Data: IdentityFrom(r.Context())})
}

func (s *Server) authCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
}
