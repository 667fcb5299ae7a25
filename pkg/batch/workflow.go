package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/metrics"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/utils"
)

const (
	DefaultDocumentName = "batch_requests.jsonl"
	ResultDocumentName  = "batch_results.jsonl"
)

// Workflow runs the upload, submit, poll, extract and cleanup sequence against one vendor.
type Workflow struct {
	Store    model.ResourceStore
	Jobs     model.JobService
	Provider string
	Model    string
	Poll     PollOptions
	Metrics  *metrics.Metrics
}

// RequestSpec is one request of a batch, naming local audio files instead of handles.
type RequestSpec struct {
	Key        string
	Prompt     string
	AudioPaths []string
}

type Input struct {
	Requests    []RequestSpec
	OutputDir   string
	DisplayName string
	// DocumentPath defaults to <OutputDir>/batch_requests.jsonl.
	DocumentPath string
}

type Outcome struct {
	Job           model.Job
	DocumentPath  string
	ResultPath    string
	Outputs       []string
	Diagnostics   []error
	Keys          KeyReport
	CleanupErrors []error
}

func (w *Workflow) Run(ctx context.Context, in Input) (outcome Outcome, err error) {
	const fn = "batch.Workflow.Run"
	log := logging.NewLogger(ctx)

	if len(in.Requests) == 0 {
		return outcome, utils.WrapIfNotNil(&model.SubmissionError{Model: w.Model, Err: errors.New("at least one request is required")})
	}
	if strings.TrimSpace(in.OutputDir) == "" {
		return outcome, utils.WrapIfNotNil(&model.ConfigurationError{Setting: "output.dir"})
	}

	if strings.TrimSpace(in.DisplayName) == "" {
		in.DisplayName = "polyglot-batch"
	}

	tracker := NewHandleTracker(w.Provider, w.Metrics)
	defer func() {
		outcome.CleanupErrors = tracker.Cleanup(ctx, w.Store)
	}()

	items, err := w.uploadAudio(ctx, tracker, in.Requests)
	if err != nil {
		return outcome, utils.WrapIfNotNil(err)
	}

	records, err := BuildDocument(items)
	if err != nil {
		return outcome, utils.WrapIfNotNil(err)
	}

	outcome.DocumentPath = in.DocumentPath
	if outcome.DocumentPath == "" {
		outcome.DocumentPath = filepath.Join(in.OutputDir, DefaultDocumentName)
	}
	if err := WriteDocument(outcome.DocumentPath, records); err != nil {
		return outcome, utils.WrapIfNotNil(err)
	}
	log.Infof("%s wrote %d request(s) to %s", fn, len(records), outcome.DocumentPath)

	document, err := w.upload(ctx, outcome.DocumentPath, in.DisplayName+"-input")
	if err != nil {
		return outcome, utils.WrapIfNotNil(err)
	}
	tracker.Track(document)

	job, err := Submit(ctx, w.Jobs, document, w.Model, in.DisplayName)
	if err != nil {
		return outcome, utils.WrapIfNotNil(err)
	}
	outcome.Job = job

	job, err = AwaitTerminal(ctx, w.Jobs, job.Name, w.Poll)
	outcome.Job = job
	if err != nil {
		return outcome, utils.WrapIfNotNil(err)
	}

	keys := make([]string, 0, len(records))
	for _, record := range records {
		keys = append(keys, record.Key)
	}
	if err := w.collect(ctx, job, in.OutputDir, keys, &outcome); err != nil {
		return outcome, utils.WrapIfNotNil(err)
	}
	return outcome, nil
}

type ResumeInput struct {
	JobName   string
	OutputDir string
	// DocumentPath, when set, supplies the submitted keys for correlation checks.
	DocumentPath string
}

// Resume waits on an existing job by name and extracts its results.
func (w *Workflow) Resume(ctx context.Context, in ResumeInput) (Outcome, error) {
	var outcome Outcome
	if strings.TrimSpace(in.JobName) == "" {
		return outcome, utils.WrapIfNotNil(errors.New("job name is required"))
	}

	var keys []string
	if in.DocumentPath != "" {
		f, err := os.Open(in.DocumentPath)
		if err != nil {
			return outcome, utils.WrapIfNotNil(err)
		}
		records, err := DecodeDocument(f)
		_ = f.Close()
		if err != nil {
			return outcome, utils.WrapIfNotNil(err)
		}
		for i, record := range records {
			key := record.Key
			if key == "" {
				key = PositionalKey(i)
			}
			keys = append(keys, key)
		}
		outcome.DocumentPath = in.DocumentPath
	}

	job, err := AwaitTerminal(ctx, w.Jobs, in.JobName, w.Poll)
	outcome.Job = job
	if err != nil {
		return outcome, utils.WrapIfNotNil(err)
	}
	if err := w.collect(ctx, job, in.OutputDir, keys, &outcome); err != nil {
		return outcome, utils.WrapIfNotNil(err)
	}
	return outcome, nil
}

func (w *Workflow) uploadAudio(ctx context.Context, tracker *HandleTracker, specs []RequestSpec) ([]RequestItem, error) {
	uploaded := map[string]model.Resource{}
	items := make([]RequestItem, 0, len(specs))

	for _, spec := range specs {
		item := RequestItem{Key: spec.Key, Prompt: spec.Prompt}
		for _, path := range spec.AudioPaths {
			res, ok := uploaded[path]
			if !ok {
				var err error
				res, err = w.upload(ctx, path, filepath.Base(path))
				if err != nil {
					return nil, err
				}
				tracker.Track(res)
				uploaded[path] = res
			}
			item.Resources = append(item.Resources, res)
		}
		items = append(items, item)
	}
	return items, nil
}

func (w *Workflow) upload(ctx context.Context, path string, displayName string) (model.Resource, error) {
	const fn = "batch.Workflow.upload"
	log := logging.NewLogger(ctx)

	res, err := w.Store.UploadFile(ctx, path, displayName)
	w.Metrics.ObserveUpload(w.Provider, err)
	if err != nil {
		log.Errorf("%s path=%s error: %v", fn, path, err)
		var upErr *model.UploadError
		if errors.As(err, &upErr) {
			return model.Resource{}, err
		}
		return model.Resource{}, &model.UploadError{Path: path, Err: err}
	}
	log.Infof("%s uploaded %s as %s mime=%s", fn, path, res.Name, res.MIMEType)
	return res, nil
}

func (w *Workflow) collect(ctx context.Context, job model.Job, outputDir string, keys []string, outcome *Outcome) error {
	const fn = "batch.Workflow.collect"
	log := logging.NewLogger(logging.WithFields(ctx, logging.Fields{"job": job.Name}))

	if strings.TrimSpace(job.ResultName) == "" {
		return fmt.Errorf("job %s succeeded without a result document", job.Name)
	}

	data, err := w.Store.DownloadFile(ctx, job.ResultName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	outcome.ResultPath = filepath.Join(outputDir, ResultDocumentName)
	if err := os.WriteFile(outcome.ResultPath, data, 0o644); err != nil {
		return err
	}
	log.Infof("%s downloaded %s (%d bytes) to %s", fn, job.ResultName, len(data), outcome.ResultPath)

	records, diagnostics, err := ParseResults(bytes.NewReader(data))
	if err != nil {
		return err
	}
	outcome.Diagnostics = diagnostics
	for _, diag := range diagnostics {
		log.Warnf("%s skipped: %v", fn, diag)
	}

	if keys != nil {
		outcome.Keys = VerifyKeys(keys, records, diagnostics)
		if !outcome.Keys.OK() {
			log.Warnf("%s key mismatch missing=%v unexpected=%v duplicates=%v",
				fn, outcome.Keys.Missing, outcome.Keys.Unexpected, outcome.Keys.Duplicates)
		}
	}

	outputs, err := WriteOutputs(outputDir, records)
	outcome.Outputs = outputs
	w.Metrics.ObserveRecords(len(outputs), len(diagnostics))
	if err != nil {
		return err
	}
	for _, path := range outputs {
		log.Infof("%s saved %s", fn, path)
	}
	return nil
}
