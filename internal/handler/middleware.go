package handler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/acosmic/acosmibot-api/internal/domain"
)

const (
	contextKeyClaims = "session_claims"
	contextKeyAdmin  = "admin_user"

	// SessionCookieName carries the session token for browser clients.
	SessionCookieName = "acosmibot_session"
)

type claimsKey struct{}

// Authenticator verifies session tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (domain.SessionClaims, error)
}

// AdminLookup resolves the admin entry of an authenticated user.
type AdminLookup interface {
	Admin(ctx context.Context, userID int64) (*domain.AdminUser, error)
}

// RequestLogger logs each HTTP request with structured fields.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				// Resolve the status before logging.
				c.Error(err)
			}

			attrs := []any{
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			}
			if claims, ok := GetClaims(c); ok {
				attrs = append(attrs, "user_id", claims.Subject)
			}
			slog.Info("http request", attrs...)

			return nil
		}
	}
}

// SessionAuth validates the session token from the Authorization header or the
// session cookie and injects its claims into the echo and request contexts.
func SessionAuth(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := sessionToken(c)
			if err != nil {
				return err
			}

			claims, err := auth.Authenticate(c.Request().Context(), raw)
			if err != nil {
				slog.Debug("session rejected", "kind", domain.KindOf(err))
				return err
			}

			c.Set(contextKeyClaims, claims)
			ctx := context.WithValue(c.Request().Context(), claimsKey{}, claims)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequireAdmin allows the request only when the authenticated user is a bot
// administrator holding one of roles. With no roles any admin passes.
func RequireAdmin(admins AdminLookup, roles ...domain.AdminRole) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := GetClaims(c)
			if !ok {
				return domain.ErrUnauthenticated
			}

			admin, err := admins.Admin(c.Request().Context(), claims.Subject)
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrForbidden
			}
			if err != nil {
				return err
			}
			if len(roles) > 0 && !admin.HasRole(roles...) {
				return domain.ErrForbidden
			}

			c.Set(contextKeyAdmin, admin)
			return next(c)
		}
	}
}

// GetClaims extracts the session claims from echo context.
func GetClaims(c echo.Context) (domain.SessionClaims, bool) {
	claims, ok := c.Get(contextKeyClaims).(domain.SessionClaims)
	return claims, ok
}

// ClaimsFromContext extracts the session claims from a request context.
func ClaimsFromContext(ctx context.Context) (domain.SessionClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(domain.SessionClaims)
	return claims, ok
}

// GetAdmin extracts the admin entry set by RequireAdmin.
func GetAdmin(c echo.Context) (*domain.AdminUser, bool) {
	admin, ok := c.Get(contextKeyAdmin).(*domain.AdminUser)
	return admin, ok
}

func sessionToken(c echo.Context) (string, error) {
	if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", domain.ErrUnauthenticated
		}
		return strings.TrimSpace(parts[1]), nil
	}

	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	return "", domain.ErrUnauthenticated
}
