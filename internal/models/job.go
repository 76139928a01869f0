package models

import (
	"database/sql/driver"
	"time"

	"gorm.io/gorm"
)

// JobStatus represents the status of a job in the queue
type JobStatus string

const (
	JobStatusPending           JobStatus = "pending"
	JobStatusProcessing        JobStatus = "processing"
	JobStatusCompleted         JobStatus = "completed"
	JobStatusFailed            JobStatus = "failed"
	JobStatusPermanentlyFailed JobStatus = "permanently_failed"
	JobStatusCancelled         JobStatus = "cancelled"
)

// JobType represents the type of job to be processed
type JobType string

const (
	JobTypeMediaProbe            JobType = "media_probe"
	JobTypeMediaFrames           JobType = "media_frames"
	JobTypeMediaSegment          JobType = "media_segment"
	JobTypeMediaWaveform         JobType = "media_waveform"
	JobTypeAnnotationExport      JobType = "annotation_export"
	JobTypeAnnotationStatistics  JobType = "annotation_statistics"
	JobTypeAnnotationBatchReview JobType = "annotation_batch_review"
	JobTypeAnnotationCleanup     JobType = "annotation_cleanup"
)

// AllJobTypes lists every job type known to the dispatcher
func AllJobTypes() []JobType {
	return []JobType{
		JobTypeMediaProbe,
		JobTypeMediaFrames,
		JobTypeMediaSegment,
		JobTypeMediaWaveform,
		JobTypeAnnotationExport,
		JobTypeAnnotationStatistics,
		JobTypeAnnotationBatchReview,
		JobTypeAnnotationCleanup,
	}
}

// JobErrorType represents the category of error that occurred
type JobErrorType string

const (
	ErrorTypeUpstream   JobErrorType = "upstream"   // Object store or media analyzer failed
	ErrorTypeTimeout    JobErrorType = "timeout"    // Soft or hard time limit exceeded
	ErrorTypeValidation JobErrorType = "validation" // Payload or target cannot be processed
	ErrorTypeNotFound   JobErrorType = "not_found"  // Target record no longer exists
	ErrorTypeSystem     JobErrorType = "system"     // Database, worker, or other system error
)

// Permanent reports whether retrying a job that failed this way cannot succeed
func (t JobErrorType) Permanent() bool {
	return t == ErrorTypeValidation || t == ErrorTypeNotFound
}

// StructuredJobError represents a structured error with classification information
type StructuredJobError struct {
	Type     JobErrorType
	Code     string
	Message  string
	Details  string
	Original error
}

func (e *StructuredJobError) Error() string {
	return e.Message
}

func (e *StructuredJobError) Unwrap() error {
	return e.Original
}

// NewJobError creates a structured job error of the given type
func NewJobError(errorType JobErrorType, code, message, details string, originalErr error) *StructuredJobError {
	return &StructuredJobError{
		Type:     errorType,
		Code:     code,
		Message:  message,
		Details:  details,
		Original: originalErr,
	}
}

// Job represents a background job in the queue
type Job struct {
	gorm.Model
	Type         JobType    `json:"type" gorm:"not null;index:idx_jobs_type_status"`
	Queue        string     `json:"queue" gorm:"size:64;not null;index:idx_jobs_queue_status"`
	Status       JobStatus  `json:"status" gorm:"default:'pending';index:idx_jobs_type_status;index:idx_jobs_queue_status"`
	Payload      JobPayload `json:"payload" gorm:"type:text"`
	UniqueKey    string     `json:"unique_key,omitempty" gorm:"size:255;index"`
	Priority     int        `json:"priority" gorm:"default:0"`
	MaxRetries   int        `json:"max_retries" gorm:"default:3"`
	RetryCount   int        `json:"retry_count" gorm:"default:0"`
	Progress     int        `json:"progress" gorm:"default:0"` // 0-100
	StartedAt    *time.Time `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	LastFailedAt *time.Time `json:"last_failed_at"`
	Error        string     `json:"error,omitempty"`
	Result       JobResult  `json:"result,omitempty" gorm:"type:text"`
	WorkerID     string     `json:"worker_id,omitempty"` // ID of the worker processing this job

	// Time limits in seconds, stamped by the dispatcher from the queue route
	SoftLimitSeconds int `json:"soft_limit_seconds"`
	HardLimitSeconds int `json:"hard_limit_seconds"`

	// Error classification fields
	ErrorType    string `json:"error_type,omitempty"`    // "upstream", "timeout", ...
	ErrorCode    string `json:"error_code,omitempty"`    // "hard_limit_exceeded", "probe_failed", ...
	ErrorDetails string `json:"error_details,omitempty"` // Technical details for debugging

	// Metadata
	CreatedBy string `json:"created_by,omitempty"` // Optional user/system identifier
}

// JobPayload represents the input data for a job
type JobPayload map[string]interface{}

// Value implements driver.Valuer interface for JobPayload
func (p JobPayload) Value() (driver.Value, error) {
	return JSONMap(p).Value()
}

// Scan implements sql.Scanner interface for JobPayload
func (p *JobPayload) Scan(value interface{}) error {
	var m JSONMap
	if err := m.Scan(value); err != nil {
		return err
	}
	if m == nil {
		m = make(JSONMap)
	}
	*p = JobPayload(m)
	return nil
}

// JobResult represents the output data from a completed job
type JobResult map[string]interface{}

// Value implements driver.Valuer interface for JobResult
func (r JobResult) Value() (driver.Value, error) {
	return JSONMap(r).Value()
}

// Scan implements sql.Scanner interface for JobResult
func (r *JobResult) Scan(value interface{}) error {
	var m JSONMap
	if err := m.Scan(value); err != nil {
		return err
	}
	if m == nil {
		m = make(JSONMap)
	}
	*r = JobResult(m)
	return nil
}

// Helper methods

// IsRetryable returns true if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// CanRetryNow returns true if the job can be retried now (considering retry delay)
func (j *Job) CanRetryNow(minDelay time.Duration) bool {
	if !j.IsRetryable() {
		return false
	}

	if j.LastFailedAt == nil {
		return true
	}

	// Exponential backoff: minDelay * 2^(retryCount)
	backoffDelay := minDelay * time.Duration(1<<uint(j.RetryCount))
	return time.Since(*j.LastFailedAt) >= backoffDelay
}

// IsTerminal returns true if the job is in a terminal state
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted ||
		j.Status == JobStatusCancelled ||
		j.Status == JobStatusPermanentlyFailed ||
		(j.Status == JobStatusFailed && !j.IsRetryable())
}

// SoftLimit returns the cooperative time limit
func (j *Job) SoftLimit() time.Duration {
	return time.Duration(j.SoftLimitSeconds) * time.Second
}

// HardLimit returns the enforced time limit
func (j *Job) HardLimit() time.Duration {
	return time.Duration(j.HardLimitSeconds) * time.Second
}

// GetPayloadValue safely retrieves a value from the payload
func (j *Job) GetPayloadValue(key string) (interface{}, bool) {
	if j.Payload == nil {
		return nil, false
	}
	val, ok := j.Payload[key]
	return val, ok
}

// GetPayloadString safely retrieves a string value from the payload
func (j *Job) GetPayloadString(key string) (string, bool) {
	return JSONMap(j.Payload).GetString(key)
}

// GetPayloadFloat safely retrieves a numeric value from the payload
func (j *Job) GetPayloadFloat(key string) (float64, bool) {
	return JSONMap(j.Payload).GetFloat(key)
}

// GetPayloadUint safely retrieves an id from the payload
func (j *Job) GetPayloadUint(key string) (uint, bool) {
	return JSONMap(j.Payload).GetUint(key)
}

// GetPayloadInt safely retrieves an int value from the payload
func (j *Job) GetPayloadInt(key string) (int, bool) {
	f, ok := j.GetPayloadFloat(key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// SetResult sets a result value
func (j *Job) SetResult(key string, value interface{}) {
	if j.Result == nil {
		j.Result = make(JobResult)
	}
	j.Result[key] = value
}

// SetErrorDetails sets error classification information
func (j *Job) SetErrorDetails(errorType JobErrorType, errorCode, errorMsg, errorDetails string) {
	j.ErrorType = string(errorType)
	j.ErrorCode = errorCode
	j.Error = errorMsg
	j.ErrorDetails = errorDetails
}

// TableName specifies the table name for GORM
func (Job) TableName() string {
	return "jobs"
}
