package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersOnce(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := New(registry)
	require.NoError(t, err)

	_, err = New(registry)
	assert.Error(t, err, "registering the same collectors twice fails")
}

func TestMetrics_Recording(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordEnqueued("media", "media_probe")
	m.RecordEnqueued("media", "media_probe")
	m.RecordProcessed("media", "media_probe", "completed", time.Second)
	m.RecordSoftLimitExceeded("media", "media_segment")
	m.RecordHardLimitExceeded("media", "media_segment")
	m.WorkerBusy("media", 1)
	m.RecordUpload("video", "success", 2048)
	m.RecordUpload("video", "rejected", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobsEnqueued.WithLabelValues("media", "media_probe")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsProcessed.WithLabelValues("media", "media_probe", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.softLimitExceeded.WithLabelValues("media", "media_segment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.hardLimitExceeded.WithLabelValues("media", "media_segment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.workersBusy.WithLabelValues("media")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploadsTotal.WithLabelValues("video", "rejected")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordEnqueued("media", "media_probe")
		m.RecordProcessed("media", "media_probe", "failed", time.Second)
		m.WorkerBusy("media", -1)
		m.RecordUpload("audio", "success", 1)
		m.RecordHTTPRequest("GET", "/health", "200", time.Millisecond)
	})
	assert.Nil(t, m.Registry())
}
