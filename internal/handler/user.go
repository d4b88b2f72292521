package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/acosmic/acosmibot-api/internal/domain"
)

// UserHandler serves user lookups.
type UserHandler struct {
	auth AuthFlow
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(auth AuthFlow) *UserHandler {
	return &UserHandler{auth: auth}
}

// Get returns the public fields of a user by internal id.
func (h *UserHandler) Get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return &domain.ValidationError{Field: "id", Message: "must be a positive integer"}
	}

	user, err := h.auth.GetUser(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return JSON(c, http.StatusOK, user.Public())
}
