package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
)

// Metrics holds the counters for one CLI run. Methods are safe on a nil receiver so
// components can be used without metrics.
type Metrics struct {
	registry *prometheus.Registry

	Uploads         *prometheus.CounterVec
	UploadFailures  *prometheus.CounterVec
	Deletes         *prometheus.CounterVec
	CleanupFailures *prometheus.CounterVec
	Polls           *prometheus.CounterVec
	JobStates       *prometheus.GaugeVec
	PollWait        prometheus.Histogram
	RecordsWritten  prometheus.Counter
	RecordsSkipped  prometheus.Counter
	ChunksProcessed *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polyglot_uploads_total",
			Help: "Files uploaded to a remote service",
		}, []string{"provider"}),
		UploadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polyglot_upload_failures_total",
			Help: "Uploads rejected by a remote service",
		}, []string{"provider"}),
		Deletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polyglot_deletes_total",
			Help: "Uploaded resources deleted during cleanup",
		}, []string{"provider"}),
		CleanupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polyglot_cleanup_failures_total",
			Help: "Uploaded resources that could not be deleted",
		}, []string{"provider"}),
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polyglot_job_polls_total",
			Help: "Job status fetches by observed state",
		}, []string{"state"}),
		JobStates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "polyglot_job_state",
			Help: "Last observed state of each job (1 for the current state)",
		}, []string{"job", "state"}),
		PollWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "polyglot_job_wait_seconds",
			Help:    "Wall-clock time from submission to terminal state",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1800, 3600, 7200, 86400},
		}),
		RecordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "polyglot_result_records_written_total",
			Help: "Result records written to output files",
		}),
		RecordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "polyglot_result_records_skipped_total",
			Help: "Result records skipped because no text was produced",
		}),
		ChunksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polyglot_audio_chunks_total",
			Help: "Audio chunks sent for synchronous transcription by outcome",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.Uploads,
		m.UploadFailures,
		m.Deletes,
		m.CleanupFailures,
		m.Polls,
		m.JobStates,
		m.PollWait,
		m.RecordsWritten,
		m.RecordsSkipped,
		m.ChunksProcessed,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) ObserveUpload(provider string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.UploadFailures.WithLabelValues(provider).Inc()
		return
	}
	m.Uploads.WithLabelValues(provider).Inc()
}

func (m *Metrics) ObserveDelete(provider string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.CleanupFailures.WithLabelValues(provider).Inc()
		return
	}
	m.Deletes.WithLabelValues(provider).Inc()
}

func (m *Metrics) ObservePoll(job model.Job) {
	if m == nil {
		return
	}
	m.Polls.WithLabelValues(string(job.State)).Inc()
	for _, state := range []model.JobState{
		model.JobStateQueued, model.JobStateRunning, model.JobStateSucceeded,
		model.JobStateFailed, model.JobStateCancelled,
	} {
		value := 0.0
		if state == job.State {
			value = 1
		}
		m.JobStates.WithLabelValues(job.Name, string(state)).Set(value)
	}
}

func (m *Metrics) ObserveWait(seconds float64) {
	if m == nil {
		return
	}
	m.PollWait.Observe(seconds)
}

func (m *Metrics) ObserveRecords(written int, skipped int) {
	if m == nil {
		return
	}
	m.RecordsWritten.Add(float64(written))
	m.RecordsSkipped.Add(float64(skipped))
}

func (m *Metrics) ObserveChunk(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ChunksProcessed.WithLabelValues(outcome).Inc()
}
