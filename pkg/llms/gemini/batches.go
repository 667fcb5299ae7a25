package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/batch"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/metrics"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/utils"
)

type batchesAPI interface {
	Create(ctx context.Context, model string, src *genai.BatchJobSource, config *genai.CreateBatchJobConfig) (*genai.BatchJob, error)
	Get(ctx context.Context, name string, config *genai.GetBatchJobConfig) (*genai.BatchJob, error)
}

// BatchService implements model.JobService on the Gemini Batch API.
type BatchService struct {
	batches batchesAPI
}

func NewBatchService(client *genai.Client) *BatchService {
	return &BatchService{batches: client.Batches}
}

// NewBatchWorkflow wires the Gemini file store and batch service into a batch.Workflow.
func NewBatchWorkflow(client *genai.Client, modelName string, poll batch.PollOptions, m *metrics.Metrics) *batch.Workflow {
	poll.Metrics = m
	return &batch.Workflow{
		Store:    NewFileStore(client),
		Jobs:     NewBatchService(client),
		Provider: ProviderName,
		Model:    resolveModelName(modelName, defaultBatchModelName),
		Poll:     poll,
		Metrics:  m,
	}
}

func (s *BatchService) CreateJob(ctx context.Context, modelName string, document model.Resource, displayName string) (model.Job, error) {
	const fn = "gemini.BatchService.CreateJob"

	job, err := s.batches.Create(ctx, modelName, &genai.BatchJobSource{FileName: document.Name}, &genai.CreateBatchJobConfig{
		DisplayName: displayName,
	})
	if err != nil {
		logging.NewLogger(ctx).Errorf("%s model=%s src=%s error: %v", fn, modelName, document.Name, err)
		return model.Job{}, utils.WrapIfNotNil(&model.SubmissionError{Model: modelName, Err: err})
	}
	return toJob(job), nil
}

func (s *BatchService) JobStatus(ctx context.Context, name string) (model.Job, error) {
	job, err := s.batches.Get(ctx, name, nil)
	if err != nil {
		return model.Job{}, utils.WrapIfNotNil(err)
	}
	return toJob(job), nil
}

func toJob(job *genai.BatchJob) model.Job {
	if job == nil {
		return model.Job{}
	}

	out := model.Job{
		Name:        job.Name,
		DisplayName: job.DisplayName,
		Model:       job.Model,
		State:       mapJobState(job.State),
		VendorState: string(job.State),
	}
	if job.Dest != nil && out.State == model.JobStateSucceeded {
		out.ResultName = job.Dest.FileName
	}
	if job.Error != nil {
		out.Error = jobErrorMessage(job.Error)
	}
	return out
}

// mapJobState folds the vendor's job states onto the five neutral ones.
// PARTIALLY_SUCCEEDED still carries a result document, so it counts as SUCCEEDED;
// EXPIRED ends without results and counts as FAILED. Unknown values stay non-terminal.
func mapJobState(state genai.JobState) model.JobState {
	switch state {
	case genai.JobStateSucceeded, genai.JobStatePartiallySucceeded:
		return model.JobStateSucceeded
	case genai.JobStateFailed, genai.JobStateExpired:
		return model.JobStateFailed
	case genai.JobStateCancelled:
		return model.JobStateCancelled
	case genai.JobStateRunning, genai.JobStateCancelling, genai.JobStateUpdating:
		return model.JobStateRunning
	case genai.JobStateQueued, genai.JobStatePending, genai.JobStatePaused, genai.JobStateUnspecified:
		return model.JobStateQueued
	}
	return model.JobStateQueued
}

func jobErrorMessage(jobErr *genai.JobError) string {
	msg := strings.TrimSpace(jobErr.Message)
	if jobErr.Code != nil {
		msg = strings.TrimSpace(fmt.Sprintf("code %d: %s", *jobErr.Code, msg))
	}
	if len(jobErr.Details) > 0 {
		msg += " (" + strings.Join(jobErr.Details, "; ") + ")"
	}
	return msg
}
