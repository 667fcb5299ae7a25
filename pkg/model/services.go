package model

import "context"

// These interfaces are what each vendor package implements for the batch workflow.

type ResourceUploader interface {
	UploadFile(ctx context.Context, path string, displayName string) (Resource, error)
}

type ResourceDeleter interface {
	DeleteFile(ctx context.Context, name string) error
}

type ResourceDownloader interface {
	DownloadFile(ctx context.Context, name string) ([]byte, error)
}

type ResourceStore interface {
	ResourceUploader
	ResourceDeleter
	ResourceDownloader
}

type JobSubmitter interface {
	CreateJob(ctx context.Context, modelName string, document Resource, displayName string) (Job, error)
}

type JobStatusSource interface {
	JobStatus(ctx context.Context, name string) (Job, error)
}

type JobService interface {
	JobSubmitter
	JobStatusSource
}
