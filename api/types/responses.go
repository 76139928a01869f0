package types

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/killallgit/annotation-api/internal/models"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
	"go.uber.org/zap"
)

// Status constants for API responses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// BaseResponse contains fields common to all API responses
type BaseResponse struct {
	Status  string `json:"status"`            // One of the Status constants above
	Message string `json:"message,omitempty"` // Human-readable message
}

// ErrorResponse for detailed error information
type ErrorResponse struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`    // AppError code
	Details map[string]interface{} `json:"details,omitempty"` // Additional error details
}

// ListResponse wraps a page of results
type ListResponse struct {
	BaseResponse
	Items any   `json:"items"`
	Total int64 `json:"total"`
	Skip  int   `json:"skip"`
	Limit int   `json:"limit"`
}

// JobResponse for accepted async work
type JobResponse struct {
	BaseResponse
	JobID  uint   `json:"job_id"`
	Type   string `json:"type"`
	Queue  string `json:"queue"`
	Status string `json:"job_status"`
}

// SendError writes err as an ErrorResponse. AppErrors keep their code and
// HTTP status; anything else is logged and reported as an internal error.
func SendError(c *gin.Context, err error) {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		err = apperrors.PayloadTooLarge(0, maxBytes.Limit)
	}

	appErr, ok := apperrors.As(err)
	if !ok {
		zap.L().Error("Unhandled request error",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(RequestIDKey)),
			zap.Error(err))
		appErr = apperrors.New(apperrors.ErrCodeInternal, "Internal server error")
	}

	status := appErr.GetHTTPCode()
	if status >= http.StatusInternalServerError && ok {
		zap.L().Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(RequestIDKey)),
			zap.String("code", string(appErr.Code)),
			zap.Error(err))
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Status:  StatusError,
		Message: appErr.Message,
		Code:    string(appErr.Code),
		Details: appErr.Details,
	})
}

// SendJob sends a 202 for a queued job
func SendJob(c *gin.Context, job *models.Job) {
	c.JSON(http.StatusAccepted, JobResponse{
		BaseResponse: BaseResponse{Status: StatusOK, Message: "Job queued"},
		JobID:        job.ID,
		Type:         string(job.Type),
		Queue:        job.Queue,
		Status:       string(job.Status),
	})
}
