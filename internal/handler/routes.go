package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/acosmic/acosmibot-api/internal/domain"
)

// RegisterRoutes mounts the auth, user and admin endpoints on e.
func RegisterRoutes(e *echo.Echo, auth AuthFlow, cfg AuthHandlerConfig) {
	authHandler := NewAuthHandler(auth, cfg)
	userHandler := NewUserHandler(auth)
	requireSession := SessionAuth(auth)

	e.GET("/", func(c echo.Context) error {
		return JSON(c, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Auth routes (public)
	e.GET("/auth/login", authHandler.Login)
	e.GET("/auth/callback", authHandler.Callback)

	// Protected routes
	e.GET("/auth/me", authHandler.Me, requireSession)
	e.POST("/auth/logout", authHandler.Logout, requireSession)

	api := e.Group("/api", requireSession)
	api.GET("/user/:id", userHandler.Get)
	api.GET("/admin/check", authHandler.AdminCheck)
	api.GET("/admin/users", authHandler.ListAdmins, RequireAdmin(auth, domain.AdminRoleSuperAdmin))
}
