package model

import (
	"fmt"
	"time"
)

// ConfigurationError is returned before any network call when required settings are missing.
type ConfigurationError struct {
	Setting string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("configuration error: %s is required", e.Setting)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Setting, e.Message)
}

// UploadError is returned when the remote service rejects a file.
type UploadError struct {
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Path, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// SubmissionError is returned when a batch document or job request is rejected.
type SubmissionError struct {
	Model string
	Err   error
}

func (e *SubmissionError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("submission rejected: %v", e.Err)
	}
	return fmt.Sprintf("submission rejected for model %s: %v", e.Model, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollingTimeoutError is returned when a job does not reach a terminal state in time.
type PollingTimeoutError struct {
	JobName   string
	Timeout   time.Duration
	LastState JobState
}

func (e *PollingTimeoutError) Error() string {
	return fmt.Sprintf("job %s did not finish within %s (last state %s)", e.JobName, e.Timeout, e.LastState)
}

// TerminalJobFailure is returned when a job ends FAILED or CANCELLED.
type TerminalJobFailure struct {
	Job Job
}

func (e *TerminalJobFailure) Error() string {
	return fmt.Sprintf("job %s %s: %s", e.Job.Name, e.Job.State, e.Job.Diagnostic())
}

// ResultParseError describes one result record that yielded no text. It never aborts a batch.
type ResultParseError struct {
	Key    string
	Line   int
	Reason string
}

func (e *ResultParseError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("result line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("result line %d (key %s): %s", e.Line, e.Key, e.Reason)
}

// CleanupError is returned when a remote resource could not be deleted.
type CleanupError struct {
	Resource string
	Err      error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("delete %s: %v", e.Resource, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }
