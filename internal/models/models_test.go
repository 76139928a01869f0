package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleRank(t *testing.T) {
	tests := []struct {
		role Role
		rank int
	}{
		{RoleAdmin, 4},
		{RoleProjectManager, 3},
		{RoleReviewer, 2},
		{RoleAnnotator, 1},
		{Role("guest"), 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.rank, tt.role.Rank())
		})
	}

	assert.True(t, RoleAdmin.AtLeast(RoleProjectManager))
	assert.True(t, RoleProjectManager.AtLeast(RoleProjectManager))
	assert.False(t, RoleReviewer.AtLeast(RoleProjectManager))
	assert.False(t, Role("guest").AtLeast(Role("other")))
	assert.True(t, RoleReviewer.CanReview())
	assert.True(t, RoleProjectManager.CanReview())
	assert.False(t, RoleAnnotator.CanReview())
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" Reviewer ")
	assert.True(t, ok)
	assert.Equal(t, RoleReviewer, r)

	_, ok = ParseRole("owner")
	assert.False(t, ok)
}

func TestParseReviewStatus(t *testing.T) {
	tests := []struct {
		in   string
		want AnnotationStatus
		ok   bool
	}{
		{"approved", AnnotationStatusApproved, true},
		{"REJECTED", AnnotationStatusRejected, true},
		{"pending", "", false},
		{"deleted", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseReviewStatus(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	st, ok := ParseAnnotationStatus("pending")
	assert.True(t, ok)
	assert.False(t, st.IsTerminal())
}

func TestAnnotationExceedsDuration(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	assert.False(t, (&Annotation{StartTime: f(10), EndTime: f(100)}).ExceedsDuration(120))
	assert.True(t, (&Annotation{StartTime: f(10), EndTime: f(200)}).ExceedsDuration(120))
	assert.True(t, (&Annotation{StartTime: f(130)}).ExceedsDuration(120))
	assert.False(t, (&Annotation{}).ExceedsDuration(0))
}

func TestJSONMapScan(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  JSONMap
	}{
		{"bytes", []byte(`{"a":1}`), JSONMap{"a": float64(1)}},
		{"string", `{"b":"x"}`, JSONMap{"b": "x"}},
		{"nil", nil, nil},
		{"empty", []byte{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m JSONMap
			require.NoError(t, m.Scan(tt.value))
			assert.Equal(t, tt.want, m)
		})
	}

	var m JSONMap
	assert.Error(t, m.Scan(42))
}

func TestJSONMapNumbers(t *testing.T) {
	m := JSONMap{"id": float64(7), "neg": float64(-1), "frac": 1.5, "int": 3}

	id, ok := m.GetUint("id")
	assert.True(t, ok)
	assert.Equal(t, uint(7), id)

	_, ok = m.GetUint("neg")
	assert.False(t, ok)
	_, ok = m.GetUint("frac")
	assert.False(t, ok)

	v, ok := m.GetFloat("int")
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)
}

func TestJobHelpers(t *testing.T) {
	job := &Job{
		Status:           JobStatusFailed,
		RetryCount:       1,
		MaxRetries:       3,
		SoftLimitSeconds: 1500,
		HardLimitSeconds: 1800,
		Payload:          JobPayload{"media_id": float64(4)},
	}

	assert.True(t, job.IsRetryable())
	assert.False(t, job.IsTerminal())
	assert.Equal(t, 25*time.Minute, job.SoftLimit())
	assert.Equal(t, 30*time.Minute, job.HardLimit())

	id, ok := job.GetPayloadUint("media_id")
	assert.True(t, ok)
	assert.Equal(t, uint(4), id)

	job.RetryCount = 3
	assert.True(t, job.IsTerminal())

	past := time.Now().Add(-time.Hour)
	job.RetryCount = 1
	job.LastFailedAt = &past
	assert.True(t, job.CanRetryNow(time.Second))

	assert.True(t, ErrorTypeValidation.Permanent())
	assert.False(t, ErrorTypeUpstream.Permanent())
}
