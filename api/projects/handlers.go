package projects

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/killallgit/annotation-api/api/types"
	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/projects"
)

// CreateRequest is the body of POST /projects
type CreateRequest struct {
	Name        string `json:"name" binding:"required" example:"Wetland birds"`
	Description string `json:"description" example:"Heron sightings 2025"`
}

// UpdateRequest is the body of PUT /projects/{id}. Omitted fields are unchanged.
type UpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

// MemberRequest is the body of POST /projects/{id}/members
type MemberRequest struct {
	UserID uint   `json:"user_id" binding:"required" example:"3"`
	Role   string `json:"role" binding:"required" example:"annotator"`
}

// MemberRoleRequest is the body of PUT /projects/{id}/members/{user_id}
type MemberRoleRequest struct {
	Role string `json:"role" binding:"required" example:"reviewer"`
}

// List returns the projects visible to the caller
// @Summary List projects
// @Tags projects
// @Security BearerAuth
// @Produce json
// @Param skip query int false "Offset"
// @Param limit query int false "Page size"
// @Success 200 {object} types.ListResponse
// @Router /api/v1/projects [get]
func List(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		skip, limit, ok := types.Page(c)
		if !ok {
			return
		}
		items, total, err := deps.ProjectService.List(c.Request.Context(), types.Subject(c), skip, limit)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendList(c, items, total, skip, limit)
	}
}

// Create creates a project owned by the caller
// @Summary Create project
// @Tags projects
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param body body CreateRequest true "Project"
// @Success 201 {object} models.Project
// @Failure 400 {object} types.ErrorResponse
// @Failure 403 {object} types.ErrorResponse
// @Router /api/v1/projects [post]
func Create(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRequest
		if !types.BindJSONOrError(c, &req) {
			return
		}
		project, err := deps.ProjectService.Create(c.Request.Context(), types.Subject(c), projects.CreateInput{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendCreated(c, project)
	}
}

// Get returns one project
// @Summary Get project
// @Tags projects
// @Security BearerAuth
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {object} models.Project
// @Failure 403 {object} types.ErrorResponse
// @Failure 404 {object} types.ErrorResponse
// @Router /api/v1/projects/{id} [get]
func Get(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		project, err := deps.ProjectService.Get(c.Request.Context(), types.Subject(c), id)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendSuccess(c, project)
	}
}

// Update changes project fields
// @Summary Update project
// @Tags projects
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Project ID"
// @Param body body UpdateRequest true "Fields to change"
// @Success 200 {object} models.Project
// @Failure 403 {object} types.ErrorResponse
// @Failure 404 {object} types.ErrorResponse
// @Router /api/v1/projects/{id} [put]
func Update(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		var req UpdateRequest
		if !types.BindJSONOrError(c, &req) {
			return
		}
		project, err := deps.ProjectService.Update(c.Request.Context(), types.Subject(c), id, projects.UpdateInput{
			Name:        req.Name,
			Description: req.Description,
			IsActive:    req.IsActive,
		})
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendSuccess(c, project)
	}
}

// Delete removes a project
// @Summary Delete project
// @Tags projects
// @Security BearerAuth
// @Param id path int true "Project ID"
// @Success 204
// @Failure 403 {object} types.ErrorResponse
// @Failure 404 {object} types.ErrorResponse
// @Router /api/v1/projects/{id} [delete]
func Delete(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		if err := deps.ProjectService.Delete(c.Request.Context(), types.Subject(c), id); err != nil {
			types.SendError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// ListMembers returns a project's memberships
// @Summary List members
// @Tags projects
// @Security BearerAuth
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {array} models.ProjectMembership
// @Failure 403 {object} types.ErrorResponse
// @Router /api/v1/projects/{id}/members [get]
func ListMembers(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		members, err := deps.ProjectService.ListMembers(c.Request.Context(), types.Subject(c), id)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendSuccess(c, members)
	}
}

// AddMember adds a user to a project
// @Summary Add member
// @Tags projects
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Project ID"
// @Param body body MemberRequest true "Membership"
// @Success 201 {object} models.ProjectMembership
// @Failure 403 {object} types.ErrorResponse
// @Failure 409 {object} types.ErrorResponse
// @Router /api/v1/projects/{id}/members [post]
func AddMember(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		var req MemberRequest
		if !types.BindJSONOrError(c, &req) {
			return
		}
		membership, err := deps.ProjectService.AddMember(c.Request.Context(), types.Subject(c), id, req.UserID, models.Role(req.Role))
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendCreated(c, membership)
	}
}

// UpdateMember changes a member's project role
// @Summary Change member role
// @Tags projects
// @Security BearerAuth
// @Accept json
// @Param id path int true "Project ID"
// @Param user_id path int true "User ID"
// @Param body body MemberRoleRequest true "Role"
// @Success 204
// @Failure 403 {object} types.ErrorResponse
// @Failure 404 {object} types.ErrorResponse
// @Router /api/v1/projects/{id}/members/{user_id} [put]
func UpdateMember(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		userID, ok := types.ParseUintParam(c, "user_id")
		if !ok {
			return
		}
		var req MemberRoleRequest
		if !types.BindJSONOrError(c, &req) {
			return
		}
		if err := deps.ProjectService.UpdateMemberRole(c.Request.Context(), types.Subject(c), id, userID, models.Role(req.Role)); err != nil {
			types.SendError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// RemoveMember removes a user from a project
// @Summary Remove member
// @Tags projects
// @Security BearerAuth
// @Param id path int true "Project ID"
// @Param user_id path int true "User ID"
// @Success 204
// @Failure 403 {object} types.ErrorResponse
// @Failure 404 {object} types.ErrorResponse
// @Router /api/v1/projects/{id}/members/{user_id} [delete]
func RemoveMember(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		userID, ok := types.ParseUintParam(c, "user_id")
		if !ok {
			return
		}
		if err := deps.ProjectService.RemoveMember(c.Request.Context(), types.Subject(c), id, userID); err != nil {
			types.SendError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
