package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/killallgit/annotation-api/internal/events"
	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/annotations"
	"github.com/killallgit/annotation-api/internal/services/authz"
	"github.com/killallgit/annotation-api/internal/services/jobs"
	"github.com/killallgit/annotation-api/internal/services/media"
	"github.com/killallgit/annotation-api/internal/testutil"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
	"github.com/killallgit/annotation-api/pkg/ffmpeg"
	"github.com/killallgit/annotation-api/pkg/storage"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error) {
	args := m.Called(ctx, path)
	result, _ := args.Get(0).(*ffmpeg.ProbeResult)
	return result, args.Error(1)
}

func (m *mockAnalyzer) ExtractFrames(ctx context.Context, inputPath, outDir string, fps float64) ([]string, error) {
	args := m.Called(ctx, inputPath, outDir, fps)
	if write, ok := args.Get(0).(func(outDir string) []string); ok {
		return write(outDir), args.Error(1)
	}
	frames, _ := args.Get(0).([]string)
	return frames, args.Error(1)
}

func (m *mockAnalyzer) CutSegment(ctx context.Context, inputPath, outputPath string, start, end float64) error {
	return m.Called(ctx, inputPath, outputPath, start, end).Error(0)
}

func videoProbe(duration float64) *ffmpeg.ProbeResult {
	return &ffmpeg.ProbeResult{
		Duration:   duration,
		FormatName: "mov,mp4,m4a,3gp,3g2,mj2",
		Size:       2048,
		BitRate:    4194304,
		Streams: []ffmpeg.Stream{
			{Index: 0, CodecType: "video", CodecName: "h264", Width: 1280, Height: 720, FrameRate: "30/1"},
			{Index: 1, CodecType: "audio", CodecName: "aac", SampleRate: 48000, Channels: 2, BitRate: 128000},
		},
	}
}

type PipelineTestSuite struct {
	suite.Suite
	db       *gorm.DB
	ctx      context.Context
	root     string
	tmp      string
	store    *storage.LocalStore
	analyzer *mockAnalyzer
	recorder *testutil.EventRecorder
	pipeline *Pipeline
	notes    annotations.Service

	owner   *models.User
	project *models.Project
	video   *models.MediaFile
	audio   *models.MediaFile
}

func (s *PipelineTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = testutil.NewDB(s.T())
	s.root = s.T().TempDir()
	s.tmp = s.T().TempDir()

	store, err := storage.NewLocalStore(s.root)
	s.Require().NoError(err)
	s.store = store
	s.analyzer = &mockAnalyzer{}
	s.recorder = &testutil.EventRecorder{}

	engine := authz.NewEngine(authz.NewGormLookup(s.db))
	s.notes = annotations.NewService(annotations.NewRepository(s.db), engine, nil, nil)
	s.pipeline = New(s.analyzer, store, media.NewRepository(s.db), s.notes, s.recorder, Config{TempDir: s.tmp, FrameFPS: 2}, nil)

	s.owner = testutil.CreateUser(s.T(), s.db, "owner", models.RoleProjectManager)
	s.project = testutil.CreateProject(s.T(), s.db, "clips", s.owner)
	s.video = testutil.CreateMedia(s.T(), s.db, s.project, s.owner, models.MediaTypeVideo, nil)
	s.audio = testutil.CreateMedia(s.T(), s.db, s.project, s.owner, models.MediaTypeAudio, nil)
	s.putOriginal(s.video)
	s.putOriginal(s.audio)
}

func (s *PipelineTestSuite) TearDownTest() {
	entries, err := os.ReadDir(s.tmp)
	s.Require().NoError(err)
	s.Empty(entries, "temp files left behind")
}

func (s *PipelineTestSuite) putOriginal(m *models.MediaFile) {
	body := []byte("original bytes")
	s.Require().NoError(s.store.Put(s.ctx, m.StorageKey, bytes.NewReader(body), int64(len(body)), "application/octet-stream"))
}

func (s *PipelineTestSuite) objectCount() int {
	count := 0
	_ = filepath.Walk(s.root, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			count++
		}
		return nil
	})
	return count
}

func (s *PipelineTestSuite) reload(id uint) *models.MediaFile {
	var m models.MediaFile
	s.Require().NoError(s.db.First(&m, id).Error)
	return &m
}

func (s *PipelineTestSuite) TestProbe_IsIdempotent() {
	s.analyzer.On("Probe", mock.Anything, mock.Anything).Return(videoProbe(120), nil)

	first, err := s.pipeline.Probe(s.ctx, s.video.ID)
	s.Require().NoError(err)
	s.InDelta(120.0, first.Duration, 1e-9)
	afterFirst := s.reload(s.video.ID)

	_, err = s.pipeline.Probe(s.ctx, s.video.ID)
	s.Require().NoError(err)
	afterSecond := s.reload(s.video.ID)

	s.Require().NotNil(afterFirst.Duration)
	s.Equal(*afterFirst.Duration, *afterSecond.Duration)
	s.Equal(afterFirst.DerivedMetadata, afterSecond.DerivedMetadata)
	s.Equal("mov,mp4,m4a,3gp,3g2,mj2", afterSecond.DerivedMetadata["format"])
	s.Contains(afterSecond.DerivedMetadata, "video_stream")
	s.Contains(afterSecond.DerivedMetadata, "audio_stream")

	s.Len(s.recorder.OfType(events.TypeMediaProbed), 2)
}

func (s *PipelineTestSuite) TestProbe_FlagsAnnotationsPastDuration() {
	a, err := s.notes.Create(s.ctx, authz.Subject{UserID: s.owner.ID, Role: s.owner.Role}, annotations.CreateInput{
		MediaFileID:    s.video.ID,
		AnnotationType: "audio_segment",
		StartTime:      testutil.Float(100),
		EndTime:        testutil.Float(150),
	})
	s.Require().NoError(err)

	s.analyzer.On("Probe", mock.Anything, mock.Anything).Return(videoProbe(120), nil)
	outcome, err := s.pipeline.Probe(s.ctx, s.video.ID)
	s.Require().NoError(err)
	s.EqualValues(1, outcome.OutOfRange)

	var stored models.Annotation
	s.Require().NoError(s.db.First(&stored, a.ID).Error)
	s.True(stored.OutOfRange)

	// new annotations past the probed duration are now rejected outright
	_, err = s.notes.Create(s.ctx, authz.Subject{UserID: s.owner.ID, Role: s.owner.Role}, annotations.CreateInput{
		MediaFileID:    s.video.ID,
		AnnotationType: "audio_segment",
		StartTime:      testutil.Float(100),
		EndTime:        testutil.Float(150),
	})
	s.True(apperrors.Is(err, apperrors.ErrCodeValidation))
}

func (s *PipelineTestSuite) TestProbe_FailureLeavesRowUntouched() {
	s.analyzer.On("Probe", mock.Anything, mock.Anything).
		Return(nil, ffmpeg.NewProcessingError("probe", "x", errors.New("exit status 1"), "moov atom not found"))

	_, err := s.pipeline.Probe(s.ctx, s.video.ID)
	s.True(apperrors.Is(err, apperrors.ErrCodeExternalService))

	m := s.reload(s.video.ID)
	s.Nil(m.Duration)
	s.Nil(m.DerivedMetadata)
	s.Len(s.recorder.OfType(events.TypeMediaProcessingFailed), 1)
	s.Empty(s.recorder.OfType(events.TypeMediaProbed))
}

func (s *PipelineTestSuite) TestProbe_MissingObject() {
	s.Require().NoError(s.store.Delete(s.ctx, s.video.StorageKey))

	_, err := s.pipeline.Probe(s.ctx, s.video.ID)
	s.True(apperrors.Is(err, apperrors.ErrCodeNotFound))
	s.analyzer.AssertNotCalled(s.T(), "Probe", mock.Anything, mock.Anything)
}

func (s *PipelineTestSuite) TestExtractFrames_UploadsJPEGs() {
	s.analyzer.On("ExtractFrames", mock.Anything, mock.Anything, mock.Anything, 2.0).
		Return(func(outDir string) []string {
			s.Require().NoError(os.MkdirAll(outDir, 0o755))
			var frames []string
			for _, name := range []string{"frame_0001.jpg", "frame_0002.jpg"} {
				p := filepath.Join(outDir, name)
				s.Require().NoError(os.WriteFile(p, []byte("jpeg"), 0o644))
				frames = append(frames, p)
			}
			return frames
		}, nil)

	keys, err := s.pipeline.ExtractFrames(s.ctx, s.video.ID, 0)
	s.Require().NoError(err)
	s.Equal([]string{
		media.FrameKey(s.video.ID, "frame_0001.jpg"),
		media.FrameKey(s.video.ID, "frame_0002.jpg"),
	}, keys)

	before := s.objectCount()
	_, err = s.pipeline.ExtractFrames(s.ctx, s.video.ID, 0)
	s.Require().NoError(err)
	s.Equal(before, s.objectCount(), "re-run must overwrite the same keys")
}

func writeFrames(count int) func(outDir string) []string {
	return func(outDir string) []string {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			panic(err)
		}
		frames := make([]string, 0, count)
		for i := 1; i <= count; i++ {
			p := filepath.Join(outDir, fmt.Sprintf("frame_%04d.jpg", i))
			if err := os.WriteFile(p, []byte("jpeg"), 0o644); err != nil {
				panic(err)
			}
			frames = append(frames, p)
		}
		return frames
	}
}

func (s *PipelineTestSuite) framesStored() int {
	entries, err := os.ReadDir(filepath.Join(s.root, media.FramesPrefix(s.video.ID)))
	if os.IsNotExist(err) {
		return 0
	}
	s.Require().NoError(err)
	return len(entries)
}

func (s *PipelineTestSuite) TestExtractFrames_LowerFPSReplacesEarlierSet() {
	s.analyzer.On("ExtractFrames", mock.Anything, mock.Anything, mock.Anything, 4.0).Return(writeFrames(8), nil).Once()
	s.analyzer.On("ExtractFrames", mock.Anything, mock.Anything, mock.Anything, 1.0).Return(writeFrames(2), nil).Once()

	keys, err := s.pipeline.ExtractFrames(s.ctx, s.video.ID, 4)
	s.Require().NoError(err)
	s.Len(keys, 8)
	s.Equal(8, s.framesStored())

	keys, err = s.pipeline.ExtractFrames(s.ctx, s.video.ID, 1)
	s.Require().NoError(err)
	s.Equal([]string{
		media.FrameKey(s.video.ID, "frame_0001.jpg"),
		media.FrameKey(s.video.ID, "frame_0002.jpg"),
	}, keys)
	s.Equal(2, s.framesStored())
}

func (s *PipelineTestSuite) TestExtractFrames_AnalyzerFailureKeepsFrames() {
	s.analyzer.On("ExtractFrames", mock.Anything, mock.Anything, mock.Anything, 4.0).Return(writeFrames(3), nil).Once()
	s.analyzer.On("ExtractFrames", mock.Anything, mock.Anything, mock.Anything, 1.0).Return(nil, errors.New("exit status 1")).Once()

	_, err := s.pipeline.ExtractFrames(s.ctx, s.video.ID, 4)
	s.Require().NoError(err)

	_, err = s.pipeline.ExtractFrames(s.ctx, s.video.ID, 1)
	s.True(apperrors.Is(err, apperrors.ErrCodeExternalService))
	s.Equal(3, s.framesStored())
}

func (s *PipelineTestSuite) TestExtractFrames_RejectsAudio() {
	_, err := s.pipeline.ExtractFrames(s.ctx, s.audio.ID, 1)
	s.True(apperrors.Is(err, apperrors.ErrCodeValidation))
}

func (s *PipelineTestSuite) TestCutSegment_InvalidRangeWritesNothing() {
	before := s.objectCount()

	for _, r := range [][2]float64{{20, 10}, {10, 10}, {-1, 5}} {
		_, err := s.pipeline.CutSegment(s.ctx, s.video.ID, r[0], r[1])
		s.True(apperrors.Is(err, apperrors.ErrCodeValidation), "range %v", r)
	}

	s.Equal(before, s.objectCount())
	s.analyzer.AssertNotCalled(s.T(), "CutSegment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	var segments int64
	s.db.Model(&models.VideoSegment{}).Count(&segments)
	s.Zero(segments)
}

func (s *PipelineTestSuite) TestCutSegment_Converges() {
	s.analyzer.On("CutSegment", mock.Anything, mock.Anything, mock.Anything, 1.5, 4.0).
		Run(func(args mock.Arguments) {
			s.Require().NoError(os.WriteFile(args.String(2), []byte("segment"), 0o644))
		}).Return(nil)

	first, err := s.pipeline.CutSegment(s.ctx, s.video.ID, 1.5, 4)
	s.Require().NoError(err)
	s.Equal(media.SegmentKey(s.video.ID, 1.5, 4), first.StorageKey)
	s.Equal(fmt.Sprintf("segments/%d/1.5_4.mp4", s.video.ID), first.StorageKey)

	second, err := s.pipeline.CutSegment(s.ctx, s.video.ID, 1.5, 4)
	s.Require().NoError(err)
	s.Equal(first.ID, second.ID)

	rc, err := s.store.Get(s.ctx, first.StorageKey)
	s.Require().NoError(err)
	rc.Close()
}

func (s *PipelineTestSuite) TestExtractWaveform() {
	s.analyzer.On("Probe", mock.Anything, mock.Anything).Return(&ffmpeg.ProbeResult{
		Duration: 42.5,
		BitRate:  96000,
		Streams:  []ffmpeg.Stream{{CodecType: "audio", CodecName: "pcm_s16le"}},
	}, nil)

	info, err := s.pipeline.ExtractWaveform(s.ctx, s.audio.ID)
	s.Require().NoError(err)
	s.Equal(44100, info.SampleRate)
	s.Equal(2, info.Channels)
	s.InDelta(42.5, info.Duration, 1e-9)
	s.EqualValues(96000, info.BitRate)
	s.Equal("pcm_s16le", info.Codec)

	_, err = s.pipeline.ExtractWaveform(s.ctx, s.video.ID)
	s.True(apperrors.Is(err, apperrors.ErrCodeValidation))
}

func (s *PipelineTestSuite) TestSoftLimitStopsBeforeFetch() {
	ctx, stop := jobs.WithSoftLimit(s.ctx, time.Nanosecond)
	defer stop()
	s.Require().Eventually(func() bool { return jobs.SoftLimitExceeded(ctx) }, time.Second, time.Millisecond)

	_, err := s.pipeline.Probe(ctx, s.video.ID)
	s.True(apperrors.Is(err, apperrors.ErrCodeTimeout))
	s.analyzer.AssertNotCalled(s.T(), "Probe", mock.Anything, mock.Anything)
}

func TestPipelineTestSuite(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}
