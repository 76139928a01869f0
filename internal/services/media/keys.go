package media

import (
	"context"
	"fmt"
	"strconv"

	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/pkg/storage"
	"go.uber.org/zap"
)

// ObjectKey is the storage key of an uploaded original
func ObjectKey(projectID uint, name string) string {
	return fmt.Sprintf("projects/%d/%s", projectID, name)
}

// FramesPrefix holds every extracted frame of a video
func FramesPrefix(mediaID uint) string {
	return fmt.Sprintf("frames/%d", mediaID)
}

// FrameKey is the key of one extracted frame
func FrameKey(mediaID uint, filename string) string {
	return FramesPrefix(mediaID) + "/" + filename
}

// SegmentsPrefix holds every cut segment of a video
func SegmentsPrefix(mediaID uint) string {
	return fmt.Sprintf("segments/%d", mediaID)
}

// SegmentKey is deterministic for a (media, start, end) triple
func SegmentKey(mediaID uint, start, end float64) string {
	return fmt.Sprintf("%s/%s_%s.mp4", SegmentsPrefix(mediaID), formatTime(start), formatTime(end))
}

// ExportKey is where a project's annotation export is written
func ExportKey(projectID uint) string {
	return fmt.Sprintf("exports/%d/annotations.json", projectID)
}

func formatTime(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// PurgeObjects removes originals and derived artifacts of deleted media.
// Failures are logged and left for reconciliation.
func PurgeObjects(ctx context.Context, store storage.ObjectStore, logger *zap.Logger, files ...models.MediaFile) {
	for _, f := range files {
		if err := store.Delete(ctx, f.StorageKey); err != nil {
			logger.Warn("Failed to delete media object",
				zap.Uint("media_id", f.ID), zap.String("key", f.StorageKey), zap.Error(err))
		}
		for _, prefix := range []string{FramesPrefix(f.ID), SegmentsPrefix(f.ID)} {
			if err := store.DeletePrefix(ctx, prefix); err != nil {
				logger.Warn("Failed to delete derived objects",
					zap.Uint("media_id", f.ID), zap.String("prefix", prefix), zap.Error(err))
			}
		}
	}
}
