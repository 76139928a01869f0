package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/batch"
	"github.com/killallgit/annotation-api/internal/services/pipeline"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type mockPipeline struct {
	mock.Mock
}

func (m *mockPipeline) Probe(ctx context.Context, mediaID uint) (*pipeline.ProbeOutcome, error) {
	args := m.Called(ctx, mediaID)
	out, _ := args.Get(0).(*pipeline.ProbeOutcome)
	return out, args.Error(1)
}

func (m *mockPipeline) ExtractFrames(ctx context.Context, mediaID uint, fps float64) ([]string, error) {
	args := m.Called(ctx, mediaID, fps)
	keys, _ := args.Get(0).([]string)
	return keys, args.Error(1)
}

func (m *mockPipeline) CutSegment(ctx context.Context, mediaID uint, start, end float64) (*models.VideoSegment, error) {
	args := m.Called(ctx, mediaID, start, end)
	seg, _ := args.Get(0).(*models.VideoSegment)
	return seg, args.Error(1)
}

func (m *mockPipeline) ExtractWaveform(ctx context.Context, mediaID uint) (*pipeline.WaveformInfo, error) {
	args := m.Called(ctx, mediaID)
	info, _ := args.Get(0).(*pipeline.WaveformInfo)
	return info, args.Error(1)
}

type mockBatch struct {
	mock.Mock
}

func (m *mockBatch) WriteExport(ctx context.Context, projectID uint) (*batch.ExportResult, error) {
	args := m.Called(ctx, projectID)
	out, _ := args.Get(0).(*batch.ExportResult)
	return out, args.Error(1)
}

func (m *mockBatch) Statistics(ctx context.Context, projectID uint) (*batch.Statistics, error) {
	args := m.Called(ctx, projectID)
	out, _ := args.Get(0).(*batch.Statistics)
	return out, args.Error(1)
}

func (m *mockBatch) BatchReview(ctx context.Context, projectID uint, status string, comment *string, reviewerID uint) (int64, error) {
	args := m.Called(ctx, projectID, status, comment, reviewerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockBatch) Cleanup(ctx context.Context, days int) (int64, time.Time, error) {
	args := m.Called(ctx, days)
	return args.Get(0).(int64), args.Get(1).(time.Time), args.Error(2)
}

func jobWith(jobType models.JobType, payload models.JobPayload) *models.Job {
	return &models.Job{Model: gorm.Model{ID: 42}, Type: jobType, Payload: payload}
}

func TestMediaProcessors(t *testing.T) {
	ctx := context.Background()
	svc := newJobService(t)
	p := &mockPipeline{}

	p.On("Probe", mock.Anything, uint(3)).Return(&pipeline.ProbeOutcome{
		MediaID: 3, Duration: 12.5, Metadata: map[string]interface{}{"format": "mp4"}, OutOfRange: 2,
	}, nil)
	p.On("ExtractFrames", mock.Anything, uint(3), 0.5).Return([]string{"frames/3/frame_0001.jpg"}, nil)
	p.On("CutSegment", mock.Anything, uint(3), 1.5, 4.0).Return(&models.VideoSegment{
		ID: 9, StorageKey: "segments/3/1.5_4.mp4", StartTime: 1.5, EndTime: 4,
	}, nil)
	p.On("ExtractWaveform", mock.Anything, uint(3)).Return(&pipeline.WaveformInfo{
		SampleRate: 44100, Channels: 2, Duration: 12.5, Codec: "aac",
	}, nil)

	probe := NewProbeProcessor(svc, p, nil)
	assert.True(t, probe.CanProcess(models.JobTypeMediaProbe))
	assert.False(t, probe.CanProcess(models.JobTypeMediaFrames))
	result, err := probe.ProcessJob(ctx, jobWith(models.JobTypeMediaProbe, models.JobPayload{"media_id": 3}))
	require.NoError(t, err)
	assert.Equal(t, "mp4", result["format"])
	assert.EqualValues(t, 2, result["out_of_range"])

	frames := NewFramesProcessor(svc, p, nil)
	result, err = frames.ProcessJob(ctx, jobWith(models.JobTypeMediaFrames, models.JobPayload{"media_id": 3, "fps": 0.5}))
	require.NoError(t, err)
	assert.Equal(t, 1, result["frame_count"])

	segment := NewSegmentProcessor(svc, p, nil)
	result, err = segment.ProcessJob(ctx, jobWith(models.JobTypeMediaSegment,
		models.JobPayload{"media_id": 3, "start_time": 1.5, "end_time": 4.0}))
	require.NoError(t, err)
	assert.Equal(t, "segments/3/1.5_4.mp4", result["storage_key"])

	waveform := NewWaveformProcessor(svc, p, nil)
	result, err = waveform.ProcessJob(ctx, jobWith(models.JobTypeMediaWaveform, models.JobPayload{"media_id": 3}))
	require.NoError(t, err)
	assert.Equal(t, 44100, result["sample_rate"])

	p.AssertExpectations(t)
}

func TestMediaProcessors_InvalidPayload(t *testing.T) {
	ctx := context.Background()
	svc := newJobService(t)
	p := &mockPipeline{}

	_, err := NewProbeProcessor(svc, p, nil).ProcessJob(ctx, jobWith(models.JobTypeMediaProbe, models.JobPayload{}))
	require.Error(t, err)
	classified := Classify(err)
	assert.Equal(t, models.ErrorTypeValidation, classified.Type)
	assert.Equal(t, "invalid_payload", classified.Code)

	_, err = NewSegmentProcessor(svc, p, nil).ProcessJob(ctx,
		jobWith(models.JobTypeMediaSegment, models.JobPayload{"media_id": 3, "start_time": 1.0}))
	assert.Equal(t, "invalid_payload", Classify(err).Code)

	p.AssertNotCalled(t, "Probe", mock.Anything, mock.Anything)
	p.AssertNotCalled(t, "CutSegment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMediaProcessors_PipelineError(t *testing.T) {
	svc := newJobService(t)
	p := &mockPipeline{}
	p.On("Probe", mock.Anything, uint(5)).Return(nil, apperrors.UpstreamFailure("ffmpeg", errors.New("exit status 1")))

	_, err := NewProbeProcessor(svc, p, nil).ProcessJob(context.Background(),
		jobWith(models.JobTypeMediaProbe, models.JobPayload{"media_id": 5}))
	assert.Equal(t, models.ErrorTypeUpstream, Classify(err).Type)
}

func TestAnnotationProcessors(t *testing.T) {
	ctx := context.Background()
	svc := newJobService(t)
	b := &mockBatch{}
	generated := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cutoff := time.Date(2025, 12, 3, 0, 0, 0, 0, time.UTC)
	comment := "looks right"

	b.On("WriteExport", mock.Anything, uint(7)).Return(&batch.ExportResult{Key: "exports/7/annotations.json", AnnotationCount: 4}, nil)
	b.On("Statistics", mock.Anything, uint(7)).Return(&batch.Statistics{
		ProjectID: 7, TotalAnnotations: 4,
		StatusDistribution: map[string]int64{"pending": 4},
		GeneratedAt:        generated,
	}, nil)
	b.On("BatchReview", mock.Anything, uint(7), "approved", &comment, uint(11)).Return(int64(4), nil)
	b.On("Cleanup", mock.Anything, batch.DefaultCleanupDays).Return(int64(2), cutoff, nil)

	result, err := NewExportProcessor(svc, b, nil).ProcessJob(ctx,
		jobWith(models.JobTypeAnnotationExport, models.JobPayload{"project_id": 7}))
	require.NoError(t, err)
	assert.Equal(t, "exports/7/annotations.json", result["export_key"])
	assert.Equal(t, 4, result["annotation_count"])

	result, err = NewStatisticsProcessor(svc, b, nil).ProcessJob(ctx,
		jobWith(models.JobTypeAnnotationStatistics, models.JobPayload{"project_id": 7}))
	require.NoError(t, err)
	assert.EqualValues(t, 4, result["total_annotations"])

	result, err = NewBatchReviewProcessor(svc, b, nil).ProcessJob(ctx, jobWith(models.JobTypeAnnotationBatchReview,
		models.JobPayload{"project_id": 7, "status": "approved", "reviewer_id": 11, "comment": comment}))
	require.NoError(t, err)
	assert.EqualValues(t, 4, result["updated_count"])

	result, err = NewCleanupProcessor(svc, b, nil).ProcessJob(ctx,
		jobWith(models.JobTypeAnnotationCleanup, models.JobPayload{}))
	require.NoError(t, err)
	assert.EqualValues(t, 2, result["deleted_count"])
	assert.Equal(t, "2025-12-03T00:00:00Z", result["cutoff_date"])

	b.AssertExpectations(t)
}

func TestBatchReviewProcessor_FailureReportsZeroUpdates(t *testing.T) {
	svc := newJobService(t)
	b := &mockBatch{}
	b.On("BatchReview", mock.Anything, uint(7), "rejected", (*string)(nil), uint(0)).
		Return(int64(0), apperrors.DatabaseError("batch review", errors.New("disk full")))

	_, err := NewBatchReviewProcessor(svc, b, nil).ProcessJob(context.Background(),
		jobWith(models.JobTypeAnnotationBatchReview, models.JobPayload{"project_id": 7, "status": "rejected"}))
	require.Error(t, err)
	classified := Classify(err)
	assert.Equal(t, models.ErrorTypeSystem, classified.Type)
	assert.Contains(t, classified.Details, "updated_count=0")
	assert.Contains(t, classified.Details, "disk full")
}
