// Package dispatcher routes job types to named queues and stamps each job
// with the queue's soft and hard time limits.
package dispatcher

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/killallgit/annotation-api/internal/metrics"
	"github.com/killallgit/annotation-api/internal/models"
	"github.com/killallgit/annotation-api/internal/services/jobs"
	"github.com/killallgit/annotation-api/pkg/config"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
)

// Route is where a job type runs and how long it may take
type Route struct {
	Queue     string
	SoftLimit time.Duration
	HardLimit time.Duration
}

// Dispatcher enqueues jobs on the queue their type is routed to
type Dispatcher struct {
	jobs    jobs.Service
	routes  map[models.JobType]Route
	metrics *metrics.Metrics
}

// New builds the route table from the queue configuration. m may be nil.
func New(jobService jobs.Service, queues config.QueuesConfig, m *metrics.Metrics) *Dispatcher {
	media := Route{Queue: queues.Media.Name, SoftLimit: queues.Media.SoftLimit, HardLimit: queues.Media.HardLimit}
	annotation := Route{Queue: queues.Annotation.Name, SoftLimit: queues.Annotation.SoftLimit, HardLimit: queues.Annotation.HardLimit}

	return &Dispatcher{
		jobs: jobService,
		routes: map[models.JobType]Route{
			models.JobTypeMediaProbe:            media,
			models.JobTypeMediaFrames:           media,
			models.JobTypeMediaSegment:          media,
			models.JobTypeMediaWaveform:         media,
			models.JobTypeAnnotationExport:      annotation,
			models.JobTypeAnnotationStatistics:  annotation,
			models.JobTypeAnnotationBatchReview: annotation,
			models.JobTypeAnnotationCleanup:     annotation,
		},
		metrics: m,
	}
}

// Route returns the route of a job type
func (d *Dispatcher) Route(jobType models.JobType) (Route, error) {
	route, ok := d.routes[jobType]
	if !ok {
		return Route{}, apperrors.ValidationError("job_type", fmt.Sprintf("unknown job type %q", jobType))
	}
	return route, nil
}

// Types returns the job types routed to queue, sorted by name
func (d *Dispatcher) Types(queue string) []models.JobType {
	var types []models.JobType
	for jobType, route := range d.routes {
		if route.Queue == queue {
			types = append(types, jobType)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Enqueue places a job on its routed queue
func (d *Dispatcher) Enqueue(ctx context.Context, jobType models.JobType, payload models.JobPayload, opts ...jobs.JobOption) (*models.Job, error) {
	route, err := d.Route(jobType)
	if err != nil {
		return nil, err
	}

	job, err := d.jobs.EnqueueJob(ctx, jobType, payload, d.withRoute(route, opts)...)
	if err != nil {
		return nil, apperrors.DatabaseError("enqueue job", err)
	}
	d.metrics.RecordEnqueued(route.Queue, string(jobType))
	return job, nil
}

// EnqueueUnique places a job on its routed queue unless a non-terminal job
// with the key "{type}:{value}" exists, in which case that job is returned.
func (d *Dispatcher) EnqueueUnique(ctx context.Context, jobType models.JobType, payload models.JobPayload, value any, opts ...jobs.JobOption) (*models.Job, error) {
	route, err := d.Route(jobType)
	if err != nil {
		return nil, err
	}

	key := UniqueKey(jobType, value)
	job, err := d.jobs.EnqueueUniqueJob(ctx, jobType, payload, key, d.withRoute(route, opts)...)
	if err != nil {
		return nil, apperrors.DatabaseError("enqueue job", err)
	}
	d.metrics.RecordEnqueued(route.Queue, string(jobType))
	return job, nil
}

// UniqueKey builds the deduplication key of a job
func UniqueKey(jobType models.JobType, value any) string {
	return fmt.Sprintf("%s:%v", jobType, value)
}

// Route options go last; later options win, so callers cannot move a job off its queue
func (d *Dispatcher) withRoute(route Route, opts []jobs.JobOption) []jobs.JobOption {
	all := make([]jobs.JobOption, 0, len(opts)+2)
	all = append(all, opts...)
	all = append(all, jobs.WithQueue(route.Queue), jobs.WithTimeLimits(route.SoftLimit, route.HardLimit))
	return all
}
