package reports

import (
	"github.com/gin-gonic/gin"
	"github.com/killallgit/annotation-api/api/types"
	"github.com/killallgit/annotation-api/internal/services/batch"
)

// BatchReviewRequest is the body of POST /projects/{id}/batch-review
type BatchReviewRequest struct {
	Status  string  `json:"status" binding:"required" example:"approved"`
	Comment *string `json:"comment"`
}

// CleanupRequest is the optional body of POST /maintenance/cleanup
type CleanupRequest struct {
	Days int `json:"days" example:"30"`
}

// Export queues a JSON export of a project's annotations
// @Summary Export annotations
// @Description The job result carries the storage key of the export document
// @Tags reports
// @Security BearerAuth
// @Produce json
// @Param id path int true "Project ID"
// @Success 202 {object} types.JobResponse
// @Failure 403 {object} types.ErrorResponse
// @Failure 404 {object} types.ErrorResponse
// @Router /api/v1/projects/{id}/export [post]
func Export(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		job, err := deps.BatchService.RequestExport(c.Request.Context(), types.Subject(c), projectID)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendJob(c, job)
	}
}

// Statistics queues a statistics run
// @Summary Project statistics
// @Tags reports
// @Security BearerAuth
// @Produce json
// @Param id path int true "Project ID"
// @Success 202 {object} types.JobResponse
// @Failure 403 {object} types.ErrorResponse
// @Failure 404 {object} types.ErrorResponse
// @Router /api/v1/projects/{id}/statistics [post]
func Statistics(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		job, err := deps.BatchService.RequestStatistics(c.Request.Context(), types.Subject(c), projectID)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendJob(c, job)
	}
}

// BatchReview queues one decision for every pending annotation of a project
// @Summary Batch review
// @Description Applies to all pending annotations or none of them
// @Tags reports
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Project ID"
// @Param body body BatchReviewRequest true "Decision"
// @Success 202 {object} types.JobResponse
// @Failure 400 {object} types.ErrorResponse
// @Failure 403 {object} types.ErrorResponse
// @Router /api/v1/projects/{id}/batch-review [post]
func BatchReview(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		var req BatchReviewRequest
		if !types.BindJSONOrError(c, &req) {
			return
		}
		job, err := deps.BatchService.RequestBatchReview(c.Request.Context(), types.Subject(c), projectID, req.Status, req.Comment)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendJob(c, job)
	}
}

// Cleanup queues deletion of rejected annotations older than days
// @Summary Clean up rejected annotations
// @Tags maintenance
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param body body CleanupRequest false "Retention in days, defaults to 30"
// @Success 202 {object} types.JobResponse
// @Failure 400 {object} types.ErrorResponse
// @Failure 403 {object} types.ErrorResponse
// @Router /api/v1/maintenance/cleanup [post]
func Cleanup(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := CleanupRequest{Days: batch.DefaultCleanupDays}
		if c.Request.ContentLength > 0 && !types.BindJSONOrError(c, &req) {
			return
		}
		job, err := deps.BatchService.RequestCleanup(c.Request.Context(), types.Subject(c), req.Days)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendJob(c, job)
	}
}
