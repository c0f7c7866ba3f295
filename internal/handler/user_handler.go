package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"crimesleuth/internal/model"
	"crimesleuth/internal/service"
)

// UserHandler serves the caller's profile and user administration.
type UserHandler struct {
	svc         service.UserService
	authService service.AuthService
}

// NewUserHandler creates a user handler.
func NewUserHandler(svc service.UserService, authService service.AuthService) *UserHandler {
	return &UserHandler{svc: svc, authService: authService}
}

// ChangePasswordRequest replaces the caller's password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6"`
}

// SetRoleRequest changes a user's role.
type SetRoleRequest struct {
	Role model.Role `json:"role" validate:"required,oneof=investigator analyst supervisor admin"`
}

// Me godoc
// @Summary Current user profile
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=model.User}
// @Failure 401 {object} errors.ErrorResponse
// @Router /me [get]
func (h *UserHandler) Me(c echo.Context) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	user, err := h.svc.Me(c.Request().Context(), actor.ID)
	if err != nil {
		return respondError(err)
	}
	return respond(c, http.StatusOK, user)
}

// UpdateMe godoc
// @Summary Update current user profile
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.ProfileUpdate true "Profile fields"
// @Success 200 {object} Response{data=model.User}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /me [put]
func (h *UserHandler) UpdateMe(c echo.Context) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req service.ProfileUpdate
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	user, err := h.svc.UpdateProfile(c.Request().Context(), actor.ID, req)
	if err != nil {
		return respondError(err)
	}
	return respond(c, http.StatusOK, user)
}

// ChangePassword godoc
// @Summary Change current user password
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ChangePasswordRequest true "Current and new password"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /me/password [put]
func (h *UserHandler) ChangePassword(c echo.Context) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req ChangePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.authService.ChangePassword(c.Request().Context(), actor.ID, req.CurrentPassword, req.NewPassword); err != nil {
		return respondError(err)
	}
	return respondMessage(c, http.StatusOK, "password updated")
}

// ListUsers godoc
// @Summary List users
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]model.User}
// @Failure 403 {object} errors.ErrorResponse
// @Router /users [get]
func (h *UserHandler) ListUsers(c echo.Context) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	users, err := h.svc.ListUsers(c.Request().Context(), actor)
	if err != nil {
		return respondError(err)
	}
	return respond(c, http.StatusOK, users)
}

// SetRole godoc
// @Summary Change a user's role
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body SetRoleRequest true "New role"
// @Success 200 {object} Response{data=model.User}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /users/{id}/role [put]
func (h *UserHandler) SetRole(c echo.Context) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req SetRoleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	user, err := h.svc.SetRole(c.Request().Context(), actor, id, req.Role)
	if err != nil {
		return respondError(err)
	}
	return respond(c, http.StatusOK, user)
}
