package labels

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/killallgit/annotation-api/api/types"
	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/labels"
)

// CreateRequest is the body of POST /projects/{id}/labels
type CreateRequest struct {
	Name       string         `json:"name" binding:"required" example:"heron"`
	Color      string         `json:"color" example:"#3366ff"`
	ParentID   *uint          `json:"parent_id"`
	Attributes models.JSONMap `json:"attributes" swaggertype:"object"`
}

// UpdateRequest is the body of PUT /labels/{id}. Set clear_parent to move the
// label to the root of the tree.
type UpdateRequest struct {
	Name        *string        `json:"name"`
	Color       *string        `json:"color"`
	ParentID    *uint          `json:"parent_id"`
	ClearParent bool           `json:"clear_parent"`
	Attributes  models.JSONMap `json:"attributes" swaggertype:"object"`
}

// List returns a project's labels, flat or as a tree with ?tree=true
// @Summary List labels
// @Tags labels
// @Security BearerAuth
// @Produce json
// @Param id path int true "Project ID"
// @Param tree query bool false "Nest children under their parents"
// @Success 200 {array} models.Label
// @Failure 403 {object} types.ErrorResponse
// @Router /api/v1/projects/{id}/labels [get]
func List(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}

		if c.Query("tree") == "true" {
			tree, err := deps.LabelService.Tree(c.Request.Context(), types.Subject(c), projectID)
			if err != nil {
				types.SendError(c, err)
				return
			}
			types.SendSuccess(c, tree)
			return
		}

		items, err := deps.LabelService.List(c.Request.Context(), types.Subject(c), projectID)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendSuccess(c, items)
	}
}

// Create adds a label to a project
// @Summary Create label
// @Tags labels
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Project ID"
// @Param body body CreateRequest true "Label"
// @Success 201 {object} models.Label
// @Failure 400 {object} types.ErrorResponse
// @Failure 403 {object} types.ErrorResponse
// @Router /api/v1/projects/{id}/labels [post]
func Create(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		var req CreateRequest
		if !types.BindJSONOrError(c, &req) {
			return
		}
		label, err := deps.LabelService.Create(c.Request.Context(), types.Subject(c), projectID, labels.CreateInput{
			Name:       req.Name,
			Color:      req.Color,
			ParentID:   req.ParentID,
			Attributes: req.Attributes,
		})
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendCreated(c, label)
	}
}

// Get returns one label
// @Summary Get label
// @Tags labels
// @Security BearerAuth
// @Produce json
// @Param id path int true "Label ID"
// @Success 200 {object} models.Label
// @Failure 404 {object} types.ErrorResponse
// @Router /api/v1/labels/{id} [get]
func Get(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		label, err := deps.LabelService.Get(c.Request.Context(), types.Subject(c), id)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendSuccess(c, label)
	}
}

// Update changes a label
// @Summary Update label
// @Tags labels
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Label ID"
// @Param body body UpdateRequest true "Fields to change"
// @Success 200 {object} models.Label
// @Failure 400 {object} types.ErrorResponse
// @Failure 403 {object} types.ErrorResponse
// @Router /api/v1/labels/{id} [put]
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
		label, err := deps.LabelService.Update(c.Request.Context(), types.Subject(c), id, labels.UpdateInput{
			Name:        req.Name,
			Color:       req.Color,
			ParentID:    req.ParentID,
			ClearParent: req.ClearParent,
			Attributes:  req.Attributes,
		})
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendSuccess(c, label)
	}
}

// Delete removes a label without children
// @Summary Delete label
// @Tags labels
// @Security BearerAuth
// @Param id path int true "Label ID"
// @Success 204
// @Failure 403 {object} types.ErrorResponse
// @Failure 409 {object} types.ErrorResponse
// @Router /api/v1/labels/{id} [delete]
func Delete(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		if err := deps.LabelService.Delete(c.Request.Context(), types.Subject(c), id); err != nil {
			types.SendError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
