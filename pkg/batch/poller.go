package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/metrics"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/utils"
)

type PollOptions struct {
	// Interval is the fixed wait between status fetches.
	Interval time.Duration
	// Timeout bounds the whole wait. Zero waits until a terminal state.
	Timeout time.Duration
	Metrics *metrics.Metrics
}

// Submit creates a remote job from an uploaded batch document.
func Submit(
	ctx context.Context,
	submitter model.JobSubmitter,
	document model.Resource,
	modelName string,
	displayName string,
) (model.Job, error) {
	const fn = "batch.Submit"
	log := logging.NewLogger(ctx)

	if strings.TrimSpace(modelName) == "" {
		err := &model.SubmissionError{Err: errors.New("model name is required")}
		return model.Job{}, utils.WrapIfNotNil(err)
	}
	if strings.TrimSpace(document.Name) == "" {
		err := &model.SubmissionError{Model: modelName, Err: errors.New("batch document handle is required")}
		return model.Job{}, utils.WrapIfNotNil(err)
	}

	job, err := submitter.CreateJob(ctx, modelName, document, displayName)
	if err != nil {
		log.Errorf("%s model=%s document=%s error: %v", fn, modelName, document.Name, err)
		var subErr *model.SubmissionError
		if errors.As(err, &subErr) {
			return model.Job{}, utils.WrapIfNotNil(err)
		}
		return model.Job{}, utils.WrapIfNotNil(&model.SubmissionError{Model: modelName, Err: err})
	}
	if job.State == "" {
		job.State = model.JobStateQueued
	}

	log.Infof("%s created job=%s model=%s state=%s", fn, job.Name, modelName, job.State)
	return job, nil
}

// AwaitTerminal polls name until the job reaches a terminal state. Only the last
// observed state is kept, so polling can resume from the job name alone.
func AwaitTerminal(
	ctx context.Context,
	source model.JobStatusSource,
	name string,
	opts PollOptions,
) (model.Job, error) {
	const fn = "batch.AwaitTerminal"
	log := logging.NewLogger(logging.WithFields(ctx, logging.Fields{"job": name}))

	if opts.Interval <= 0 {
		return model.Job{}, utils.WrapIfNotNil(&model.ConfigurationError{Setting: "poll_interval", Message: "must be positive"})
	}

	start := time.Now()
	var deadline time.Time
	if opts.Timeout > 0 {
		deadline = start.Add(opts.Timeout)
	}

	var last model.Job
	for polls := 1; ; polls++ {
		job, err := source.JobStatus(ctx, name)
		if err != nil {
			log.Errorf("%s poll=%d error: %v", fn, polls, err)
			return last, utils.WrapIfNotNil(err)
		}
		opts.Metrics.ObservePoll(job)

		if last.State != "" && last.State.Regresses(job.State) {
			log.Warnf("%s state went backwards from %s to %s", fn, last.State, job.State)
		}
		last = job

		if job.State.IsTerminal() {
			opts.Metrics.ObserveWait(time.Since(start).Seconds())
			if job.Failed() {
				log.Errorf("%s poll=%d state=%s diagnostic=%q", fn, polls, job.State, job.Diagnostic())
				return job, utils.WrapIfNotNil(&model.TerminalJobFailure{Job: job})
			}
			log.Infof("%s poll=%d state=%s elapsed=%s", fn, polls, job.State, time.Since(start).Round(time.Second))
			return job, nil
		}

		wait := opts.Interval
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				err := &model.PollingTimeoutError{JobName: name, Timeout: opts.Timeout, LastState: job.State}
				log.Errorf("%s error: %v", fn, err)
				return job, utils.WrapIfNotNil(err)
			}
			if wait > remaining {
				wait = remaining
			}
		}

		log.Infof("%s poll=%d state=%s vendor_state=%s next_poll_in=%s", fn, polls, job.State, job.VendorState, wait)
		if err := sleep(ctx, wait); err != nil {
			return job, utils.WrapIfNotNil(fmt.Errorf("waiting for job %s: %w", name, err))
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
