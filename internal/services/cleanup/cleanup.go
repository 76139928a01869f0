package cleanup

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Sweeper removes processing directories left behind in the temp dir.
// The pipeline removes its own directories; anything older than maxAge
// belongs to a worker that died mid-job.
type Sweeper struct {
	tempDir string
	maxAge  time.Duration
	logger  *zap.Logger
}

// NewSweeper creates a temp dir sweeper
func NewSweeper(tempDir string, maxAge time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		tempDir: tempDir,
		maxAge:  maxAge,
		logger:  logger.Named("cleanup"),
	}
}

// Sweep removes top-level entries of the temp dir older than maxAge and
// returns how many were removed
func (s *Sweeper) Sweep() int {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to read temp dir", zap.String("dir", s.tempDir), zap.Error(err))
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) <= s.maxAge {
			continue
		}

		path := filepath.Join(s.tempDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn("Failed to remove temp entry", zap.String("path", path), zap.Error(err))
			continue
		}
		s.logger.Debug("Removed old temp entry", zap.String("path", path))
		removed++
	}

	if removed > 0 {
		s.logger.Info("Swept temp dir", zap.String("dir", s.tempDir), zap.Int("removed", removed))
	}
	return removed
}
