package model

import "strings"

// JobState is the vendor-neutral state of a remote batch job.
type JobState string

const (
	JobStateQueued    JobState = "QUEUED"
	JobStateRunning   JobState = "RUNNING"
	JobStateSucceeded JobState = "SUCCEEDED"
	JobStateFailed    JobState = "FAILED"
	JobStateCancelled JobState = "CANCELLED"
)

func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateSucceeded, JobStateFailed, JobStateCancelled:
		return true
	}
	return false
}

// rank orders states for monotonicity checks. Terminal states share a rank.
func (s JobState) rank() int {
	switch s {
	case JobStateQueued:
		return 0
	case JobStateRunning:
		return 1
	case JobStateSucceeded, JobStateFailed, JobStateCancelled:
		return 2
	}
	return -1
}

// Regresses reports whether moving from s to next goes backwards.
func (s JobState) Regresses(next JobState) bool {
	return s.rank() >= 0 && next.rank() >= 0 && next.rank() < s.rank()
}

// Job is a snapshot of a remote batch job as observed by one status fetch.
type Job struct {
	Name        string
	DisplayName string
	Model       string
	State       JobState
	// VendorState is the state string exactly as the vendor reported it.
	VendorState string
	// ResultName references the result document. Set only when State is SUCCEEDED.
	ResultName string
	// Error is the remote diagnostic for FAILED or CANCELLED jobs.
	Error string
}

func (j Job) Failed() bool {
	return j.State == JobStateFailed || j.State == JobStateCancelled
}

func (j Job) Diagnostic() string {
	if msg := strings.TrimSpace(j.Error); msg != "" {
		return msg
	}
	if j.VendorState != "" {
		return "job ended in state " + j.VendorState
	}
	return "job ended in state " + string(j.State)
}
