package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
)

type stubStore struct {
	mu         sync.Mutex
	uploads    []string
	deletes    []string
	downloads  []string
	documents  map[string][]byte
	results    map[string][]byte
	failUpload map[string]error
	failDelete map[string]error
}

func newStubStore() *stubStore {
	return &stubStore{
		documents:  map[string][]byte{},
		results:    map[string][]byte{},
		failUpload: map[string]error{},
		failDelete: map[string]error{},
	}
}

func (s *stubStore) UploadFile(_ context.Context, path string, displayName string) (model.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failUpload[filepath.Base(path)]; ok {
		return model.Resource{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Resource{}, err
	}
	name := fmt.Sprintf("files/upload-%d", len(s.uploads)+1)
	s.uploads = append(s.uploads, name)
	s.documents[name] = data
	return model.Resource{
		Name:        name,
		URI:         "https://example.test/v1beta/" + name,
		MIMEType:    "audio/mpeg",
		DisplayName: displayName,
	}, nil
}

func (s *stubStore) DeleteFile(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, name)
	return s.failDelete[name]
}

func (s *stubStore) DownloadFile(_ context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloads = append(s.downloads, name)
	data, ok := s.results[name]
	if !ok {
		return nil, errors.New("not found: " + name)
	}
	return data, nil
}

// stubJobs replays a fixed sequence of states, repeating the last one.
type stubJobs struct {
	mu         sync.Mutex
	states     []model.JobState
	polls      int
	created    []string
	createErr  error
	statusErr  error
	resultName string
	diagnostic string
	lastModel  string
}

func (j *stubJobs) CreateJob(_ context.Context, modelName string, document model.Resource, displayName string) (model.Job, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.createErr != nil {
		return model.Job{}, j.createErr
	}
	j.created = append(j.created, document.Name)
	j.lastModel = modelName
	return model.Job{Name: "batches/job-1", DisplayName: displayName, Model: modelName, State: model.JobStateQueued}, nil
}

func (j *stubJobs) JobStatus(_ context.Context, name string) (model.Job, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.polls++
	if j.statusErr != nil {
		return model.Job{}, j.statusErr
	}
	idx := j.polls - 1
	if idx >= len(j.states) {
		idx = len(j.states) - 1
	}
	job := model.Job{Name: name, State: j.states[idx], VendorState: "JOB_STATE_" + string(j.states[idx])}
	switch job.State {
	case model.JobStateSucceeded:
		job.ResultName = j.resultName
	case model.JobStateFailed, model.JobStateCancelled:
		job.Error = j.diagnostic
	}
	return job, nil
}
