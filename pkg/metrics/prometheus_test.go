package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
)

type MetricsSuite struct {
	suite.Suite
}

func TestMetricsSuite(t *testing.T) {
	suite.Run(t, new(MetricsSuite))
}

func (s *MetricsSuite) TestNilReceiverIsNoop() {
	var m *Metrics
	m.ObserveUpload("gemini", nil)
	m.ObservePoll(model.Job{Name: "batches/1", State: model.JobStateRunning})
	m.ObserveRecords(1, 1)
	s.Nil(m.Registry())
	s.NoError(m.WriteTextfile(filepath.Join(s.T().TempDir(), "x.prom")))
}

func (s *MetricsSuite) TestObservePollMarksCurrentStateOnly() {
	m := New()
	m.ObservePoll(model.Job{Name: "batches/1", State: model.JobStateQueued})
	m.ObservePoll(model.Job{Name: "batches/1", State: model.JobStateRunning})

	s.Equal(1.0, testutil.ToFloat64(m.Polls.WithLabelValues("QUEUED")))
	s.Equal(1.0, testutil.ToFloat64(m.Polls.WithLabelValues("RUNNING")))
	s.Equal(0.0, testutil.ToFloat64(m.JobStates.WithLabelValues("batches/1", "QUEUED")))
	s.Equal(1.0, testutil.ToFloat64(m.JobStates.WithLabelValues("batches/1", "RUNNING")))
}

func (s *MetricsSuite) TestUploadAndDeleteOutcomes() {
	m := New()
	m.ObserveUpload("gemini", nil)
	m.ObserveUpload("gemini", errors.New("rejected"))
	m.ObserveDelete("gemini", errors.New("gone"))

	s.Equal(1.0, testutil.ToFloat64(m.Uploads.WithLabelValues("gemini")))
	s.Equal(1.0, testutil.ToFloat64(m.UploadFailures.WithLabelValues("gemini")))
	s.Equal(1.0, testutil.ToFloat64(m.CleanupFailures.WithLabelValues("gemini")))
}

func (s *MetricsSuite) TestWriteTextfile() {
	m := New()
	m.ObserveRecords(2, 1)

	path := filepath.Join(s.T().TempDir(), "polyglot.prom")
	s.Require().NoError(m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	s.Require().NoError(err)
	s.Contains(string(data), "polyglot_result_records_written_total 2")
	s.Contains(string(data), "polyglot_result_records_skipped_total 1")
}
