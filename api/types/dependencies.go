package types

import (
	"context"

	"github.com/killallgit/annotation-api/internal/database"
	"github.com/killallgit/annotation-api/internal/metrics"
	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/annotations"
	"github.com/killallgit/annotation-api/internal/services/auth"
	"github.com/killallgit/annotation-api/internal/services/authz"
	"github.com/killallgit/annotation-api/internal/services/jobs"
	"github.com/killallgit/annotation-api/internal/services/labels"
	"github.com/killallgit/annotation-api/internal/services/media"
	"github.com/killallgit/annotation-api/internal/services/projects"
	"github.com/killallgit/annotation-api/internal/services/users"
	"github.com/killallgit/annotation-api/pkg/config"
)

// BatchRequester queues project level batch jobs
type BatchRequester interface {
	RequestExport(ctx context.Context, subject authz.Subject, projectID uint) (*models.Job, error)
	RequestStatistics(ctx context.Context, subject authz.Subject, projectID uint) (*models.Job, error)
	RequestBatchReview(ctx context.Context, subject authz.Subject, projectID uint, status string, comment *string) (*models.Job, error)
	RequestCleanup(ctx context.Context, subject authz.Subject, days int) (*models.Job, error)
}

// Dependencies holds all the dependencies needed by handlers
type Dependencies struct {
	Config            *config.Config
	DB                *database.DB
	Auth              *auth.Service
	Authz             *authz.Engine
	UserService       users.Service
	ProjectService    projects.Service
	LabelService      labels.Service
	MediaService      media.Service
	AnnotationService annotations.Service
	BatchService      BatchRequester
	JobService        jobs.Service
	Metrics           *metrics.Metrics
}
