package jobs

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/killallgit/annotation-api/api/types"
	"github.com/killallgit/annotation-api/internal/services/jobs"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
)

// GetJob returns a job's status and result
// @Summary Get job
// @Description Admins see every job. Other users see the jobs they queued.
// @Tags jobs
// @Security BearerAuth
// @Produce json
// @Param id path int true "Job ID"
// @Success 200 {object} models.Job
// @Failure 403 {object} types.ErrorResponse
// @Failure 404 {object} types.ErrorResponse
// @Router /api/v1/jobs/{id} [get]
func GetJob(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}

		job, err := deps.JobService.GetJob(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, jobs.ErrJobNotFound) {
				types.SendError(c, apperrors.NotFound("job", id))
				return
			}
			types.SendError(c, apperrors.DatabaseError("get job", err))
			return
		}

		subject := types.Subject(c)
		if !subject.IsAdmin() && job.CreatedBy != fmt.Sprintf("user:%d", subject.UserID) {
			types.SendError(c, apperrors.PermissionDenied("read", "job"))
			return
		}

		types.SendSuccess(c, job)
	}
}
