package users

import (
	"github.com/gin-gonic/gin"
	"github.com/killallgit/annotation-api/api/types"
	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/authz"
)

// RoleRequest is the body of PUT /users/{id}/role
type RoleRequest struct {
	Role string `json:"role" binding:"required" example:"reviewer"`
}

// ActiveRequest is the body of PUT /users/{id}/active
type ActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

func requireAdmin(c *gin.Context, deps *types.Dependencies) bool {
	if err := deps.Authz.RequireAccess(c.Request.Context(), types.Subject(c), authz.Global(), authz.ActionManage); err != nil {
		types.SendError(c, err)
		return false
	}
	return true
}

// List returns user accounts
// @Summary List users
// @Tags users
// @Security BearerAuth
// @Produce json
// @Param skip query int false "Offset"
// @Param limit query int false "Page size"
// @Success 200 {object} types.ListResponse
// @Failure 403 {object} types.ErrorResponse
// @Router /api/v1/users [get]
func List(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAdmin(c, deps) {
			return
		}
		skip, limit, ok := types.Page(c)
		if !ok {
			return
		}

		users, total, err := deps.UserService.List(c.Request.Context(), skip, limit)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendList(c, users, total, skip, limit)
	}
}

// SetRole changes a user's global role
// @Summary Change user role
// @Tags users
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param body body RoleRequest true "New role"
// @Success 200 {object} models.User
// @Failure 400 {object} types.ErrorResponse
// @Failure 403 {object} types.ErrorResponse
// @Failure 404 {object} types.ErrorResponse
// @Router /api/v1/users/{id}/role [put]
func SetRole(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAdmin(c, deps) {
			return
		}
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		var req RoleRequest
		if !types.BindJSONOrError(c, &req) {
			return
		}

		user, err := deps.UserService.SetRole(c.Request.Context(), id, models.Role(req.Role))
		if err != nil {
			types.SendError(c, err)
			return
		}
		deps.Auth.Invalidate(c.Request.Context(), id)
		types.SendSuccess(c, user)
	}
}

// SetActive enables or disables a user account
// @Summary Enable or disable user
// @Tags users
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param body body ActiveRequest true "Account state"
// @Success 200 {object} models.User
// @Failure 403 {object} types.ErrorResponse
// @Failure 404 {object} types.ErrorResponse
// @Router /api/v1/users/{id}/active [put]
func SetActive(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAdmin(c, deps) {
			return
		}
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		var req ActiveRequest
		if !types.BindJSONOrError(c, &req) {
			return
		}

		user, err := deps.UserService.SetActive(c.Request.Context(), id, *req.IsActive)
		if err != nil {
			types.SendError(c, err)
			return
		}
		deps.Auth.Invalidate(c.Request.Context(), id)
		types.SendSuccess(c, user)
	}
}
