package media

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/killallgit/annotation-api/api/types"
	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/media"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
)

// FramesRequest is the optional body of POST /media/{id}/frames
type FramesRequest struct {
	FPS float64 `json:"fps" example:"1"`
}

// SegmentRequest is the body of POST /media/{id}/segments
type SegmentRequest struct {
	StartTime *float64 `json:"start_time" binding:"required" example:"12.5"`
	EndTime   *float64 `json:"end_time" binding:"required" example:"20"`
}

// Upload stores a media file and queues its probe
// @Summary Upload media
// @Description Upload a video or audio file into a project. Metadata extraction runs in the background.
// @Tags media
// @Security BearerAuth
// @Accept multipart/form-data
// @Produce json
// @Param project_id formData int true "Project ID"
// @Param file formData file true "Media file"
// @Success 201 {object} models.MediaFile
// @Failure 400 {object} types.ErrorResponse
// @Failure 403 {object} types.ErrorResponse
// @Failure 413 {object} types.ErrorResponse
// @Router /api/v1/media/upload [post]
func Upload(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				types.SendError(c, tooLarge)
				return
			}
			types.SendError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "Missing file").
				WithDetail("field", "file"))
			return
		}
		projectID, err := parseFormUint(c.PostForm("project_id"))
		if err != nil {
			types.SendError(c, apperrors.ValidationError("project_id", "must be a positive integer"))
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			types.SendError(c, err)
			return
		}
		defer file.Close()

		mediaFile, err := deps.MediaService.Upload(c.Request.Context(), types.Subject(c),
			projectID, fileHeader.Filename, fileHeader.Size, file)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendCreated(c, mediaFile)
	}
}

// List returns media visible to the caller
// @Summary List media
// @Tags media
// @Security BearerAuth
// @Produce json
// @Param project_id query int false "Project ID"
// @Param media_type query string false "video or audio"
// @Param skip query int false "Offset"
// @Param limit query int false "Page size"
// @Success 200 {object} types.ListResponse
// @Failure 403 {object} types.ErrorResponse
// @Router /api/v1/media [get]
func List(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID, ok := types.QueryUint(c, "project_id")
		if !ok {
			return
		}
		skip, limit, ok := types.Page(c)
		if !ok {
			return
		}
		items, total, err := deps.MediaService.List(c.Request.Context(), types.Subject(c), media.ListFilter{
			ProjectID: projectID,
			MediaType: models.MediaType(c.Query("media_type")),
			Skip:      skip,
			Limit:     limit,
		})
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendList(c, items, total, skip, limit)
	}
}

// Get returns one media file
// @Summary Get media
// @Tags media
// @Security BearerAuth
// @Produce json
// @Param id path int true "Media ID"
// @Success 200 {object} models.MediaFile
// @Failure 404 {object} types.ErrorResponse
// @Router /api/v1/media/{id} [get]
func Get(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		mediaFile, err := deps.MediaService.Get(c.Request.Context(), types.Subject(c), id)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendSuccess(c, mediaFile)
	}
}

// Delete removes a media file with its annotations and stored objects
// @Summary Delete media
// @Tags media
// @Security BearerAuth
// @Param id path int true "Media ID"
// @Success 204
// @Failure 403 {object} types.ErrorResponse
// @Failure 404 {object} types.ErrorResponse
// @Router /api/v1/media/{id} [delete]
func Delete(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		if err := deps.MediaService.Delete(c.Request.Context(), types.Subject(c), id); err != nil {
			types.SendError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// Reprocess queues a fresh metadata probe
// @Summary Reprocess media
// @Tags media
// @Security BearerAuth
// @Produce json
// @Param id path int true "Media ID"
// @Success 202 {object} types.JobResponse
// @Failure 403 {object} types.ErrorResponse
// @Router /api/v1/media/{id}/reprocess [post]
func Reprocess(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		job, err := deps.MediaService.Reprocess(c.Request.Context(), types.Subject(c), id)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendJob(c, job)
	}
}

// Frames queues frame extraction for a video
// @Summary Extract frames
// @Tags media
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Media ID"
// @Param body body FramesRequest false "Sampling rate, defaults to the configured rate"
// @Success 202 {object} types.JobResponse
// @Failure 400 {object} types.ErrorResponse
// @Router /api/v1/media/{id}/frames [post]
func Frames(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		var req FramesRequest
		if c.Request.ContentLength > 0 && !types.BindJSONOrError(c, &req) {
			return
		}
		job, err := deps.MediaService.RequestFrames(c.Request.Context(), types.Subject(c), id, req.FPS)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendJob(c, job)
	}
}

// CreateSegment queues extraction of a clip
// @Summary Extract segment
// @Tags media
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Media ID"
// @Param body body SegmentRequest true "Time range in seconds"
// @Success 202 {object} types.JobResponse
// @Failure 400 {object} types.ErrorResponse
// @Router /api/v1/media/{id}/segments [post]
func CreateSegment(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		var req SegmentRequest
		if !types.BindJSONOrError(c, &req) {
			return
		}
		job, err := deps.MediaService.RequestSegment(c.Request.Context(), types.Subject(c), id, *req.StartTime, *req.EndTime)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendJob(c, job)
	}
}

// ListSegments returns extracted segments
// @Summary List segments
// @Tags media
// @Security BearerAuth
// @Produce json
// @Param id path int true "Media ID"
// @Success 200 {array} models.VideoSegment
// @Failure 404 {object} types.ErrorResponse
// @Router /api/v1/media/{id}/segments [get]
func ListSegments(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		segments, err := deps.MediaService.ListSegments(c.Request.Context(), types.Subject(c), id)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendSuccess(c, segments)
	}
}

// Waveform queues waveform extraction for an audio file
// @Summary Extract waveform
// @Tags media
// @Security BearerAuth
// @Produce json
// @Param id path int true "Media ID"
// @Success 202 {object} types.JobResponse
// @Failure 400 {object} types.ErrorResponse
// @Router /api/v1/media/{id}/waveform [post]
func Waveform(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		job, err := deps.MediaService.RequestWaveform(c.Request.Context(), types.Subject(c), id)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendJob(c, job)
	}
}
