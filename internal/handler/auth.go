package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/acosmic/acosmibot-api/internal/domain"
	"github.com/acosmic/acosmibot-api/internal/service"
)

const stateCookieName = "oauth_state"

// AuthFlow is the login and session API the handlers depend on.
type AuthFlow interface {
	Authenticator
	AdminLookup
	BeginLogin(ctx context.Context) (*service.LoginRedirect, error)
	Callback(ctx context.Context, req service.CallbackRequest) (*service.LoginResult, error)
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	Logout(ctx context.Context, claims domain.SessionClaims) error
	ListAdmins(ctx context.Context) ([]domain.AdminUser, error)
}

// AuthHandlerConfig controls cookies and where the browser lands after a login.
type AuthHandlerConfig struct {
	// SuccessURL receives the browser after a login. Empty means the callback
	// answers with JSON.
	SuccessURL string
	// FailureURL receives the browser with ?error=<kind> after a failed login.
	FailureURL   string
	TokenInURL   bool
	CookieSecure bool
	StateTTL     time.Duration
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	auth AuthFlow
	cfg  AuthHandlerConfig
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth AuthFlow, cfg AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{auth: auth, cfg: cfg}
}

type callbackQuery struct {
	Code             string `query:"code" validate:"max=512"`
	State            string `query:"state" validate:"max=256"`
	Error            string `query:"error" validate:"max=128"`
	ErrorDescription string `query:"error_description"`
}

type loginResponse struct {
	User      domain.PublicUser `json:"user"`
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
}

type adminCheckResponse struct {
	IsAdmin bool              `json:"is_admin"`
	Admin   *domain.AdminUser `json:"admin"`
}

// Login redirects the user to Discord's OAuth consent page.
func (h *AuthHandler) Login(c echo.Context) error {
	redirect, err := h.auth.BeginLogin(c.Request().Context())
	if err != nil {
		return err
	}

	c.SetCookie(&http.Cookie{
		Name:     stateCookieName,
		Value:    redirect.State.Value,
		Path:     "/auth",
		Expires:  redirect.State.ExpiresAt,
		MaxAge:   int(h.cfg.StateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusFound, redirect.URL)
}

// Callback handles the OAuth callback from Discord.
func (h *AuthHandler) Callback(c echo.Context) error {
	var q callbackQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		return h.callbackFailed(c, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
	}
	if err := c.Validate(&q); err != nil {
		return h.callbackFailed(c, err)
	}

	marker, markerErr := c.Cookie(stateCookieName)
	h.clearCookie(c, stateCookieName, "/auth")
	if markerErr == nil && marker.Value != "" && marker.Value != q.State {
		slog.Warn("oauth state does not match browser marker")
		return h.callbackFailed(c, fmt.Errorf("%w: state not issued to this browser", domain.ErrStateUnknown))
	}

	result, err := h.auth.Callback(c.Request().Context(), service.CallbackRequest{
		Code:  q.Code,
		State: q.State,
		Error: q.Error,
	})
	if err != nil {
		return h.callbackFailed(c, err)
	}

	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    result.Token,
		Path:     "/",
		Expires:  result.Claims.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	if h.cfg.SuccessURL != "" {
		target := h.cfg.SuccessURL
		if h.cfg.TokenInURL {
			target = withQuery(target, "token", result.Token)
		}
		return c.Redirect(http.StatusFound, target)
	}

	return JSON(c, http.StatusOK, loginResponse{
		User:      result.User.Public(),
		Token:     result.Token,
		ExpiresAt: result.Claims.ExpiresAt,
	})
}

// Me returns the currently authenticated user.
func (h *AuthHandler) Me(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthenticated
	}

	user, err := h.auth.GetUser(c.Request().Context(), claims.Subject)
	if err != nil {
		return err
	}

	return JSON(c, http.StatusOK, user.Public())
}

// Logout revokes the current session and clears the session cookie.
func (h *AuthHandler) Logout(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthenticated
	}

	if err := h.auth.Logout(c.Request().Context(), claims); err != nil {
		return err
	}

	h.clearCookie(c, SessionCookieName, "/")
	return c.NoContent(http.StatusNoContent)
}

// AdminCheck reports whether the current user is a bot administrator.
func (h *AuthHandler) AdminCheck(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthenticated
	}

	admin, err := h.auth.Admin(c.Request().Context(), claims.Subject)
	if errors.Is(err, domain.ErrNotFound) {
		return JSON(c, http.StatusOK, adminCheckResponse{})
	}
	if err != nil {
		return err
	}

	return JSON(c, http.StatusOK, adminCheckResponse{IsAdmin: true, Admin: admin})
}

// ListAdmins returns every bot administrator. Mounted behind RequireAdmin.
func (h *AuthHandler) ListAdmins(c echo.Context) error {
	admins, err := h.auth.ListAdmins(c.Request().Context())
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, admins)
}

func (h *AuthHandler) callbackFailed(c echo.Context, err error) error {
	kind := domain.KindOf(err)
	if h.cfg.FailureURL != "" {
		return c.Redirect(http.StatusFound, withQuery(h.cfg.FailureURL, "error", string(kind)))
	}

	status, apiErr := mapError(err)
	apiErr.Message = "Authentication failed"
	return c.JSON(status, Envelope{Error: &apiErr})
}

func (h *AuthHandler) clearCookie(c echo.Context, name, path string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func withQuery(raw, key, value string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
