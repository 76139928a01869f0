package annotations

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/killallgit/annotation-api/api/types"
	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/annotations"
)

// CreateRequest is the body of POST /annotations
type CreateRequest struct {
	MediaFileID    uint           `json:"media_file_id" binding:"required" example:"12"`
	LabelID        *uint          `json:"label_id" example:"4"`
	AnnotationType string         `json:"annotation_type" binding:"required" example:"audio_segment"`
	Payload        models.JSONMap `json:"payload" swaggertype:"object"`
	StartTime      *float64       `json:"start_time" example:"3.5"`
	EndTime        *float64       `json:"end_time" example:"7.25"`
	Confidence     *float64       `json:"confidence" example:"0.9"`
}

// UpdateRequest is the body of PUT /annotations/{id}. Omitted fields are
// unchanged; clear_label removes the label.
type UpdateRequest struct {
	LabelID        *uint          `json:"label_id"`
	ClearLabel     bool           `json:"clear_label"`
	AnnotationType *string        `json:"annotation_type"`
	Payload        models.JSONMap `json:"payload" swaggertype:"object"`
	StartTime      *float64       `json:"start_time"`
	EndTime        *float64       `json:"end_time"`
	Confidence     *float64       `json:"confidence"`
}

// ReviewRequest is the body of POST /annotations/{id}/review
type ReviewRequest struct {
	Status  string  `json:"status" binding:"required" example:"approved"`
	Comment *string `json:"comment" example:"matches the call"`
}

// CreateAnnotation creates a pending annotation on a media file
// @Summary      Create annotation
// @Description  Create a pending annotation. Time ranges are checked against the media duration when it is known.
// @Tags         annotations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        annotation body CreateRequest true "Annotation"
// @Success      201 {object} models.Annotation
// @Failure      400 {object} types.ErrorResponse "Invalid request"
// @Failure      403 {object} types.ErrorResponse "Not a member of the project"
// @Failure      404 {object} types.ErrorResponse "Media file not found"
// @Router       /api/v1/annotations [post]
func CreateAnnotation(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRequest
		if !types.BindJSONOrError(c, &req) {
			return
		}

		annotation, err := deps.AnnotationService.Create(c.Request.Context(), types.Subject(c), annotations.CreateInput{
			MediaFileID:    req.MediaFileID,
			LabelID:        req.LabelID,
			AnnotationType: req.AnnotationType,
			Payload:        req.Payload,
			StartTime:      req.StartTime,
			EndTime:        req.EndTime,
			Confidence:     req.Confidence,
		})
		if err != nil {
			types.SendError(c, err)
			return
		}

		types.SendCreated(c, annotation)
	}
}

// ListAnnotations lists annotations visible to the caller
// @Summary      List annotations
// @Description  Annotators see their own annotations plus reviewed ones. Reviewers and owners see everything in their projects.
// @Tags         annotations
// @Security     BearerAuth
// @Produce      json
// @Param        media_file_id query int false "Media file ID"
// @Param        project_id query int false "Project ID"
// @Param        annotation_type query string false "Annotation type"
// @Param        status query string false "pending, approved or rejected"
// @Param        skip query int false "Offset"
// @Param        limit query int false "Page size"
// @Success      200 {object} types.ListResponse
// @Failure      400 {object} types.ErrorResponse
// @Router       /api/v1/annotations [get]
func ListAnnotations(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		mediaID, ok := types.QueryUint(c, "media_file_id")
		if !ok {
			return
		}
		projectID, ok := types.QueryUint(c, "project_id")
		if !ok {
			return
		}
		skip, limit, ok := types.Page(c)
		if !ok {
			return
		}

		items, total, err := deps.AnnotationService.List(c.Request.Context(), types.Subject(c), annotations.Filter{
			MediaFileID:    mediaID,
			ProjectID:      projectID,
			AnnotationType: c.Query("annotation_type"),
			Status:         c.Query("status"),
			Skip:           skip,
			Limit:          limit,
		})
		if err != nil {
			types.SendError(c, err)
			return
		}

		types.SendList(c, items, total, skip, limit)
	}
}

// GetAnnotation returns one annotation
// @Summary      Get annotation
// @Tags         annotations
// @Security     BearerAuth
// @Produce      json
// @Param        id path int true "Annotation ID"
// @Success      200 {object} models.Annotation
// @Failure      403 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Router       /api/v1/annotations/{id} [get]
func GetAnnotation(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}

		annotation, err := deps.AnnotationService.Get(c.Request.Context(), types.Subject(c), id)
		if err != nil {
			types.SendError(c, err)
			return
		}

		types.SendSuccess(c, annotation)
	}
}

// UpdateAnnotation updates an existing annotation
// @Summary      Update annotation
// @Description  Annotators may edit their own pending annotations. Reviewers may edit any annotation in their projects.
// @Tags         annotations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path int true "Annotation ID"
// @Param        annotation body UpdateRequest true "Fields to change"
// @Success      200 {object} models.Annotation
// @Failure      400 {object} types.ErrorResponse
// @Failure      403 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Router       /api/v1/annotations/{id} [put]
func UpdateAnnotation(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}

		var req UpdateRequest
		if !types.BindJSONOrError(c, &req) {
			return
		}

		annotation, err := deps.AnnotationService.Update(c.Request.Context(), types.Subject(c), id, annotations.Patch{
			LabelID:        req.LabelID,
			ClearLabel:     req.ClearLabel,
			AnnotationType: req.AnnotationType,
			Payload:        req.Payload,
			StartTime:      req.StartTime,
			EndTime:        req.EndTime,
			Confidence:     req.Confidence,
		})
		if err != nil {
			types.SendError(c, err)
			return
		}

		types.SendSuccess(c, annotation)
	}
}

// DeleteAnnotation deletes an annotation
// @Summary      Delete annotation
// @Tags         annotations
// @Security     BearerAuth
// @Param        id path int true "Annotation ID"
// @Success      204 "Annotation deleted"
// @Failure      403 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Router       /api/v1/annotations/{id} [delete]
func DeleteAnnotation(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}

		if err := deps.AnnotationService.Delete(c.Request.Context(), types.Subject(c), id); err != nil {
			types.SendError(c, err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// ReviewAnnotation records a review decision
// @Summary      Review annotation
// @Description  Approve or reject an annotation. Requires the reviewer role on the project.
// @Tags         annotations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path int true "Annotation ID"
// @Param        review body ReviewRequest true "Decision"
// @Success      200 {object} models.Annotation
// @Failure      400 {object} types.ErrorResponse
// @Failure      403 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Router       /api/v1/annotations/{id}/review [post]
func ReviewAnnotation(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}

		var req ReviewRequest
		if !types.BindJSONOrError(c, &req) {
			return
		}

		annotation, err := deps.AnnotationService.Review(c.Request.Context(), types.Subject(c), id, req.Status, req.Comment)
		if err != nil {
			types.SendError(c, err)
			return
		}

		types.SendSuccess(c, annotation)
	}
}
