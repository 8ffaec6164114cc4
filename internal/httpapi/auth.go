package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"horse.fit/intake/internal/auth"
	"horse.fit/intake/internal/db"
	"horse.fit/intake/internal/globaltime"
)

const defaultSessionTouchInterval = time.Minute

type authPrincipal struct {
	SessionID          string
	OperatorID         int64
	Username           string
	MustChangePassword bool
	ExpiresAt          time.Time
}

type operatorResponse struct {
	OperatorID         int64      `json:"operator_id"`
	Username           string     `json:"username"`
	MustChangePassword bool       `json:"must_change_password"`
	CreatedAt          time.Time  `json:"created_at"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type authStore interface {
	GetSession(ctx context.Context, sessionID string, now time.Time) (*db.AuthSession, error)
	CreateSession(ctx context.Context, sessionID string, operatorID int64, expiresAt, at time.Time) error
	TouchSession(ctx context.Context, sessionID string, at time.Time) error
	DeleteSession(ctx context.Context, sessionID string) error
	GetOperatorByUsername(ctx context.Context, username string) (*db.AuthOperator, error)
	TouchOperatorLogin(ctx context.Context, operatorID int64, at time.Time) error
	UpdateOperatorPassword(ctx context.Context, operatorID int64, passwordHash string) error
}

func (s *Server) authDataStore() authStore {
	if s == nil {
		return nil
	}
	if s.authStore != nil {
		return s.authStore
	}
	if s.pool == nil {
		return nil
	}
	return s.pool
}

func (s *Server) requireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			store := s.authDataStore()
			if store == nil {
				return internalError(c, "Failed to authorize request")
			}

			sessionID, found := s.sessionIDFromCookie(c)
			if !found {
				return unauthorizedResponse(c)
			}

			now := globaltime.UTC()
			session, err := store.GetSession(c.Request().Context(), sessionID, now)
			if err != nil {
				if errors.Is(err, db.ErrNoRows) {
					s.clearSessionCookie(c)
					return unauthorizedResponse(c)
				}
				s.logger.Error().Err(err).Msg("session lookup failed")
				return internalError(c, "Failed to authorize request")
			}

			if now.Sub(session.LastSeenAt) >= defaultSessionTouchInterval {
				_ = store.TouchSession(c.Request().Context(), session.SessionID, now)
			}

			c.Set("auth.principal", authPrincipal{
				SessionID:          session.SessionID,
				OperatorID:         session.OperatorID,
				Username:           session.Username,
				MustChangePassword: session.MustChangePassword,
				ExpiresAt:          session.ExpiresAt.UTC(),
			})

			return next(c)
		}
	}
}

func (s *Server) handleLogin(c echo.Context) error {
	store := s.authDataStore()
	if store == nil {
		return internalError(c, "Failed to process login")
	}

	var req loginRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	username := auth.NormalizeUsername(req.Username)
	password := strings.TrimSpace(req.Password)
	if username == "" || password == "" {
		return failValidation(c, map[string]string{
			"username": "is required",
			"password": "is required",
		})
	}

	operator, err := store.GetOperatorByUsername(c.Request().Context(), username)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return fail(c, http.StatusUnauthorized, "Invalid username or password", nil)
		}
		s.logger.Error().Err(err).Str("username", username).Msg("login lookup failed")
		return internalError(c, "Failed to process login")
	}

	if !auth.VerifyPassword(password, operator.PasswordHash) {
		return fail(c, http.StatusUnauthorized, "Invalid username or password", nil)
	}

	now := globaltime.UTC()
	expiresAt := now.Add(s.opts.SessionTTL)
	sessionID := uuid.NewString()
	if err := store.CreateSession(c.Request().Context(), sessionID, operator.OperatorID, expiresAt, now); err != nil {
		s.logger.Error().Err(err).Int64("operator_id", operator.OperatorID).Msg("create session failed")
		return internalError(c, "Failed to process login")
	}

	if err := store.TouchOperatorLogin(c.Request().Context(), operator.OperatorID, now); err != nil {
		s.logger.Error().Err(err).Int64("operator_id", operator.OperatorID).Msg("update last login failed")
	}
	nowCopy := now
	operator.LastLoginAt = &nowCopy

	s.setSessionCookie(c, sessionID, expiresAt)
	return success(c, map[string]any{
		"operator": buildOperatorResponse(operator),
		"session": map[string]any{
			"session_id": sessionID,
			"expires_at": expiresAt.UTC(),
		},
	})
}

func (s *Server) handleLogout(c echo.Context) error {
	store := s.authDataStore()
	if sessionID, found := s.sessionIDFromCookie(c); found && store != nil {
		_ = store.DeleteSession(c.Request().Context(), sessionID)
	}
	s.clearSessionCookie(c)
	return success(c, map[string]any{"logged_out": true})
}

func (s *Server) handleMe(c echo.Context) error {
	principal, ok := principalFromContext(c)
	if !ok {
		return unauthorizedResponse(c)
	}

	store := s.authDataStore()
	operator, err := store.GetOperatorByUsername(c.Request().Context(), principal.Username)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return unauthorizedResponse(c)
		}
		s.logger.Error().Err(err).Str("username", principal.Username).Msg("load operator failed")
		return internalError(c, "Failed to load operator")
	}

	return success(c, map[string]any{
		"operator": buildOperatorResponse(operator),
		"session": map[string]any{
			"session_id": principal.SessionID,
			"expires_at": principal.ExpiresAt,
		},
	})
}

func (s *Server) handleChangePassword(c echo.Context) error {
	principal, ok := principalFromContext(c)
	if !ok {
		return unauthorizedResponse(c)
	}

	var req changePasswordRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	currentPassword := strings.TrimSpace(req.CurrentPassword)
	newPassword := strings.TrimSpace(req.NewPassword)
	if currentPassword == "" || newPassword == "" {
		return failValidation(c, map[string]string{
			"current_password": "is required",
			"new_password":     "is required",
		})
	}
	if len(newPassword) < 10 {
		return failValidation(c, map[string]string{"new_password": "must be at least 10 characters"})
	}

	store := s.authDataStore()
	operator, err := store.GetOperatorByUsername(c.Request().Context(), principal.Username)
	if err != nil {
		s.logger.Error().Err(err).Str("username", principal.Username).Msg("load operator failed")
		return internalError(c, "Failed to change password")
	}

	if !auth.VerifyPassword(currentPassword, operator.PasswordHash) {
		return fail(c, http.StatusForbidden, "Current password is incorrect", nil)
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error().Err(err).Msg("hash password failed")
		return internalError(c, "Failed to change password")
	}

	if err := store.UpdateOperatorPassword(c.Request().Context(), operator.OperatorID, hash); err != nil {
		s.logger.Error().Err(err).Int64("operator_id", operator.OperatorID).Msg("update password failed")
		return internalError(c, "Failed to change password")
	}

	return success(c, map[string]any{"password_changed": true})
}

func unauthorizedResponse(c echo.Context) error {
	return fail(c, http.StatusUnauthorized, "Authentication required", nil)
}

func buildOperatorResponse(row *db.AuthOperator) operatorResponse {
	if row == nil {
		return operatorResponse{}
	}
	return operatorResponse{
		OperatorID:         row.OperatorID,
		Username:           row.Username,
		MustChangePassword: row.MustChangePassword,
		CreatedAt:          row.CreatedAt.UTC(),
		LastLoginAt:        row.LastLoginAt,
	}
}

func principalFromContext(c echo.Context) (authPrincipal, bool) {
	value := c.Get("auth.principal")
	principal, ok := value.(authPrincipal)
	if !ok {
		return authPrincipal{}, false
	}
	return principal, true
}

func (s *Server) sessionIDFromCookie(c echo.Context) (string, bool) {
	cookie, err := c.Cookie(s.opts.SessionCookie)
	if err != nil || cookie == nil {
		return "", false
	}

	sessionID := strings.TrimSpace(cookie.Value)
	if sessionID == "" {
		return "", false
	}
	return sessionID, true
}

func (s *Server) setSessionCookie(c echo.Context, sessionID string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}

	c.SetCookie(&http.Cookie{
		Name:     s.opts.SessionCookie,
		Value:    strings.TrimSpace(sessionID),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.SessionSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt.UTC(),
		MaxAge:   maxAge,
	})
}

func (s *Server) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     s.opts.SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.SessionSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  globaltime.UTC().Add(-1 * time.Hour),
	})
}
