package gemini

import (
	"context"
	"path/filepath"
	"strings"

	"google.golang.org/genai"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/audio"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/utils"
)

// Batch documents are uploaded with this MIME type so the batch service accepts them.
const batchDocumentMIMEType = "jsonl"

type filesAPI interface {
	UploadFromPath(ctx context.Context, path string, config *genai.UploadFileConfig) (*genai.File, error)
	Delete(ctx context.Context, name string, config *genai.DeleteFileConfig) (*genai.DeleteFileResponse, error)
	Download(ctx context.Context, uri genai.DownloadURI, config *genai.DownloadFileConfig) ([]byte, error)
}

// FileStore implements model.ResourceStore on the Gemini Files API.
type FileStore struct {
	files filesAPI
}

func NewFileStore(client *genai.Client) *FileStore {
	return &FileStore{files: client.Files}
}

func (s *FileStore) UploadFile(ctx context.Context, path string, displayName string) (model.Resource, error) {
	const fn = "gemini.FileStore.UploadFile"
	log := logging.NewLogger(ctx)

	mimeType, err := uploadMIMEType(path)
	if err != nil {
		log.Errorf("%s error: %v", fn, err)
		return model.Resource{}, utils.WrapIfNotNil(&model.UploadError{Path: path, Err: err})
	}

	file, err := s.files.UploadFromPath(ctx, path, &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: displayName,
	})
	if err != nil {
		log.Errorf("%s path=%s error: %v", fn, path, err)
		return model.Resource{}, utils.WrapIfNotNil(&model.UploadError{Path: path, Err: err})
	}

	res := model.Resource{
		Name:        file.Name,
		URI:         file.URI,
		MIMEType:    file.MIMEType,
		DisplayName: file.DisplayName,
	}
	if res.MIMEType == "" {
		res.MIMEType = mimeType
	}
	log.Debugf("%s path=%s name=%s uri=%s", fn, path, res.Name, res.URI)
	return res, nil
}

// DeleteFile removes an uploaded file. A file that is already gone (expired or
// deleted elsewhere) counts as deleted.
func (s *FileStore) DeleteFile(ctx context.Context, name string) error {
	const fn = "gemini.FileStore.DeleteFile"
	_, err := s.files.Delete(ctx, name, nil)
	if err != nil && (utils.ContainsErrorSubstring(err, "NOT_FOUND") || utils.ContainsErrorSubstring(err, "Error 404")) {
		logging.NewLogger(ctx).Debugf("%s name=%s already gone: %v", fn, name, err)
		return nil
	}
	return utils.WrapIfNotNil(err)
}

// DownloadFile fetches a file by its resource name, e.g. a batch job's result document.
func (s *FileStore) DownloadFile(ctx context.Context, name string) ([]byte, error) {
	const fn = "gemini.FileStore.DownloadFile"
	data, err := s.files.Download(ctx, genai.NewDownloadURIFromFile(&genai.File{DownloadURI: name}), nil)
	if err != nil {
		logging.NewLogger(ctx).Errorf("%s name=%s error: %v", fn, name, err)
		return nil, utils.WrapIfNotNil(err)
	}
	return data, nil
}

func uploadMIMEType(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".json":
		return batchDocumentMIMEType, nil
	case ".txt":
		return "text/plain", nil
	}
	return audio.ResolveMIMEType(path)
}
