package sarvam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/audio"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/batch"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/utils"
)

type JobKind string

const (
	JobKindTranscribe JobKind = "speech-to-text"
	JobKindTranslate  JobKind = "speech-to-text-translate"
)

// Vendor job states.
const (
	JobStateAccepted  = "Accepted"
	JobStatePending   = "Pending"
	JobStateRunning   = "Running"
	JobStateCompleted = "Completed"
	JobStateFailed    = "Failed"
)

const (
	DefaultPollInterval  = 5 * time.Second
	DefaultPollTimeout   = 60 * time.Second
	DefaultUploadTimeout = 120 * time.Second
)

type JobParameters struct {
	Model           string `json:"model,omitempty"`
	LanguageCode    string `json:"language_code,omitempty"`
	WithTimestamps  bool   `json:"with_timestamps,omitempty"`
	WithDiarization bool   `json:"with_diarization"`
	NumSpeakers     int    `json:"num_speakers,omitempty"`
	Prompt          string `json:"prompt,omitempty"`
}

type JobFile struct {
	FileName string `json:"file_name"`
	FileID   string `json:"file_id"`
}

type JobDetail struct {
	Inputs       []JobFile `json:"inputs"`
	Outputs      []JobFile `json:"outputs"`
	State        string    `json:"state"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

type JobStatus struct {
	JobID                string      `json:"job_id"`
	JobState             string      `json:"job_state"`
	CreatedAt            string      `json:"created_at,omitempty"`
	UpdatedAt            string      `json:"updated_at,omitempty"`
	TotalFiles           int         `json:"total_files,omitempty"`
	SuccessfulFilesCount int         `json:"successful_files_count,omitempty"`
	FailedFilesCount     int         `json:"failed_files_count,omitempty"`
	ErrorMessage         string      `json:"error_message,omitempty"`
	JobDetails           []JobDetail `json:"job_details,omitempty"`
}

type fileURL struct {
	FileURL string `json:"file_url"`
}

type filesRequest struct {
	JobID string   `json:"job_id"`
	Files []string `json:"files"`
}

type filesResponse struct {
	JobID        string             `json:"job_id"`
	UploadURLs   map[string]fileURL `json:"upload_urls,omitempty"`
	DownloadURLs map[string]fileURL `json:"download_urls,omitempty"`
}

// JobsService drives batch jobs for one endpoint family. It implements
// model.JobStatusSource so the shared poller can wait on it.
type JobsService struct {
	client *Client
	kind   JobKind
}

func (s *JobsService) Kind() JobKind {
	return s.kind
}

func (s *JobsService) path(suffix string) string {
	return "/" + string(s.kind) + "/job/v1" + suffix
}

func (s *JobsService) Create(ctx context.Context, params JobParameters) (*JobStatus, error) {
	if params.Model == "" {
		params.Model = DefaultSTTModel
		if s.kind == JobKindTranslate {
			params.Model = DefaultTranslateModel
		}
	}
	body := map[string]any{"job_parameters": params}

	var status JobStatus
	if err := s.client.doJSON(ctx, http.MethodPost, s.path(""), body, &status); err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	if status.JobID == "" {
		return nil, utils.WrapIfNotNil(errors.New("create job response has no job_id"))
	}
	return &status, nil
}

// UploadFiles asks for presigned URLs and PUTs each local file to its URL.
func (s *JobsService) UploadFiles(ctx context.Context, jobID string, paths []string) error {
	names := make([]string, 0, len(paths))
	byName := make(map[string]string, len(paths))
	for _, path := range paths {
		name := filepath.Base(path)
		if _, dup := byName[name]; dup {
			return utils.WrapIfNotNil(fmt.Errorf("duplicate file name %q in job upload", name))
		}
		byName[name] = path
		names = append(names, name)
	}

	var urls filesResponse
	if err := s.client.doJSON(ctx, http.MethodPost, s.path("/upload-files"), filesRequest{JobID: jobID, Files: names}, &urls); err != nil {
		return utils.WrapIfNotNil(err)
	}

	for _, name := range names {
		target, ok := urls.UploadURLs[name]
		if !ok || target.FileURL == "" {
			return utils.WrapIfNotNil(&model.UploadError{Path: byName[name], Err: errors.New("no upload url returned")})
		}
		if err := s.put(ctx, target.FileURL, byName[name]); err != nil {
			return utils.WrapIfNotNil(&model.UploadError{Path: byName[name], Err: err})
		}
	}
	return nil
}

func (s *JobsService) put(ctx context.Context, url string, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return utils.WrapIfNotNil(err)
	}
	contentType, err := audio.ResolveMIMEType(path)
	if err != nil {
		return utils.WrapIfNotNil(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return utils.WrapIfNotNil(err)
	}
	req.Header.Set("x-ms-blob-type", "BlockBlob")
	req.Header.Set("Content-Type", contentType)
	return utils.WrapIfNotNil(s.client.do(req, nil))
}

func (s *JobsService) Start(ctx context.Context, jobID string) (*JobStatus, error) {
	var status JobStatus
	if err := s.client.doJSON(ctx, http.MethodPost, s.path("/"+jobID+"/start"), nil, &status); err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	return &status, nil
}

func (s *JobsService) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	var status JobStatus
	if err := s.client.doJSON(ctx, http.MethodGet, s.path("/"+jobID+"/status"), nil, &status); err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	return &status, nil
}

func (s *JobsService) JobStatus(ctx context.Context, name string) (model.Job, error) {
	status, err := s.Status(ctx, name)
	if err != nil {
		return model.Job{}, utils.WrapIfNotNil(err)
	}
	job := toJob(status)
	if job.Name == "" {
		job.Name = name
	}
	return job, nil
}

func toJob(status *JobStatus) model.Job {
	job := model.Job{
		Name:        status.JobID,
		State:       mapState(status),
		VendorState: status.JobState,
	}
	switch job.State {
	case model.JobStateSucceeded:
		job.ResultName = status.JobID
	case model.JobStateFailed:
		job.Error = status.ErrorMessage
		if job.Error == "" {
			job.Error = detailErrors(status.JobDetails)
		}
	}
	return job
}

// mapState treats a completed job in which every file failed as FAILED.
func mapState(status *JobStatus) model.JobState {
	switch strings.ToLower(status.JobState) {
	case "accepted", "pending":
		return model.JobStateQueued
	case "running":
		return model.JobStateRunning
	case "completed":
		if status.SuccessfulFilesCount == 0 && status.FailedFilesCount > 0 {
			return model.JobStateFailed
		}
		return model.JobStateSucceeded
	case "failed":
		return model.JobStateFailed
	}
	return model.JobStateQueued
}

func detailErrors(details []JobDetail) string {
	var msgs []string
	for _, d := range details {
		if d.ErrorMessage != "" {
			msgs = append(msgs, d.ErrorMessage)
		}
	}
	return strings.Join(msgs, "; ")
}

// DownloadOutputs saves every output file of a finished job into outputDir and
// writes the transcript of each as <name>_output.txt.
func (s *JobsService) DownloadOutputs(ctx context.Context, jobID string, outputDir string) ([]string, error) {
	const fn = "sarvam.JobsService.DownloadOutputs"
	log := logging.NewLogger(ctx)

	status, err := s.Status(ctx, jobID)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	var names []string
	for _, d := range status.JobDetails {
		for _, out := range d.Outputs {
			if out.FileName != "" {
				names = append(names, out.FileName)
			}
		}
	}
	if len(names) == 0 {
		return nil, utils.WrapIfNotNil(fmt.Errorf("job %s has no output files", jobID))
	}

	var urls filesResponse
	if err := s.client.doJSON(ctx, http.MethodPost, s.path("/download-files"), filesRequest{JobID: jobID, Files: names}, &urls); err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	sort.Strings(names)
	var written []string
	for _, name := range names {
		source, ok := urls.DownloadURLs[name]
		if !ok || source.FileURL == "" {
			log.Warnf("%s no download url for %s", fn, name)
			continue
		}
		data, err := s.get(ctx, source.FileURL)
		if err != nil {
			return written, utils.WrapIfNotNil(err, name)
		}

		path := filepath.Join(outputDir, filepath.Base(name))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return written, utils.WrapIfNotNil(err)
		}
		written = append(written, path)

		var out TranscriptionResponse
		if err := json.Unmarshal(data, &out); err != nil || strings.TrimSpace(out.Transcript) == "" {
			log.Warnf("%s %s carries no transcript", fn, name)
			continue
		}
		key := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
		textPath := batch.OutputPath(outputDir, key)
		if err := os.WriteFile(textPath, []byte(strings.TrimSpace(out.Transcript)), 0o644); err != nil {
			return written, utils.WrapIfNotNil(err)
		}
		written = append(written, textPath)
	}
	return written, nil
}

func (s *JobsService) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return nil, utils.WrapIfNotNil(&ConnectionError{Message: err.Error()})
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, utils.WrapIfNotNil(handleAPIError(resp))
	}
	data, err := io.ReadAll(resp.Body)
	return data, utils.WrapIfNotNil(err)
}

type JobRequest struct {
	Params        JobParameters
	AudioPaths    []string
	OutputDir     string
	Poll          batch.PollOptions
	UploadTimeout time.Duration
}

type JobResult struct {
	Job     model.Job
	Outputs []string
}

// RunJob creates a job, uploads the audio, starts it, waits for a terminal state
// and downloads the outputs.
func (s *JobsService) RunJob(ctx context.Context, req JobRequest) (JobResult, error) {
	const fn = "sarvam.JobsService.RunJob"
	var result JobResult

	if len(req.AudioPaths) == 0 {
		return result, utils.WrapIfNotNil(errors.New("at least one audio file is required"))
	}
	for _, path := range req.AudioPaths {
		if _, err := audio.CheckFormat(path); err != nil {
			return result, utils.WrapIfNotNil(err)
		}
	}
	if req.Poll.Interval <= 0 {
		req.Poll.Interval = DefaultPollInterval
	}
	if req.UploadTimeout <= 0 {
		req.UploadTimeout = DefaultUploadTimeout
	}

	created, err := s.Create(ctx, req.Params)
	if err != nil {
		return result, utils.WrapIfNotNil(&model.SubmissionError{Model: req.Params.Model, Err: err})
	}
	result.Job = model.Job{Name: created.JobID, State: model.JobStateQueued, VendorState: created.JobState}

	log := logging.NewLogger(logging.WithFields(ctx, logging.Fields{"job": created.JobID, "provider": ProviderName}))
	log.Infof("%s created %s job", fn, s.kind)

	uploadCtx, cancel := context.WithTimeout(ctx, req.UploadTimeout)
	err = s.UploadFiles(uploadCtx, created.JobID, req.AudioPaths)
	cancel()
	for range req.AudioPaths {
		req.Poll.Metrics.ObserveUpload(ProviderName, err)
	}
	if err != nil {
		log.Errorf("%s upload error: %v", fn, err)
		return result, utils.WrapIfNotNil(err)
	}

	if _, err := s.Start(ctx, created.JobID); err != nil {
		return result, utils.WrapIfNotNil(&model.SubmissionError{Model: req.Params.Model, Err: err})
	}
	log.Infof("%s started with %d file(s)", fn, len(req.AudioPaths))

	job, err := batch.AwaitTerminal(ctx, s, created.JobID, req.Poll)
	result.Job = job
	if err != nil {
		return result, utils.WrapIfNotNil(err)
	}

	outputs, err := s.DownloadOutputs(ctx, created.JobID, req.OutputDir)
	result.Outputs = outputs
	if err != nil {
		return result, utils.WrapIfNotNil(err)
	}
	log.Infof("%s saved %d file(s) to %s", fn, len(outputs), req.OutputDir)
	return result, nil
}
