package sarvam

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/audio"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/utils"
)

const (
	DefaultSTTModel       = "saarika:v2.5"
	DefaultTranslateModel = "saaras:v2.5"
)

// TranscribeParams are the form fields of a synchronous request. Empty fields are omitted;
// an empty LanguageCode lets the service handle code-mixed speech.
type TranscribeParams struct {
	Model          string
	LanguageCode   string
	WithTimestamps bool
	// Prompt is only accepted by the translate endpoint.
	Prompt string
}

type Timestamps struct {
	Words            []string  `json:"words"`
	StartTimeSeconds []float64 `json:"start_time_seconds"`
	EndTimeSeconds   []float64 `json:"end_time_seconds"`
}

type TranscriptionResponse struct {
	RequestID    string      `json:"request_id"`
	Transcript   string      `json:"transcript"`
	LanguageCode string      `json:"language_code"`
	Timestamps   *Timestamps `json:"timestamps,omitempty"`
}

// SpeechToTextService calls the synchronous speech endpoints, limited to short clips.
type SpeechToTextService struct {
	client *Client
}

func (s *SpeechToTextService) Transcribe(ctx context.Context, params TranscribeParams, audioData io.Reader, filename string) (*TranscriptionResponse, error) {
	if params.Model == "" {
		params.Model = DefaultSTTModel
	}
	return s.post(ctx, "/speech-to-text", params, audioData, filename)
}

// Translate transcribes and translates the clip to English in one call.
func (s *SpeechToTextService) Translate(ctx context.Context, params TranscribeParams, audioData io.Reader, filename string) (*TranscriptionResponse, error) {
	if params.Model == "" {
		params.Model = DefaultTranslateModel
	}
	return s.post(ctx, "/speech-to-text-translate", params, audioData, filename)
}

func (s *SpeechToTextService) TranscribeFile(ctx context.Context, params TranscribeParams, path string) (*TranscriptionResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	defer func() { _ = f.Close() }()
	return s.Transcribe(ctx, params, f, filepath.Base(path))
}

func (s *SpeechToTextService) TranslateFile(ctx context.Context, params TranscribeParams, path string) (*TranscriptionResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	defer func() { _ = f.Close() }()
	return s.Translate(ctx, params, f, filepath.Base(path))
}

func (s *SpeechToTextService) post(ctx context.Context, path string, params TranscribeParams, audioData io.Reader, filename string) (*TranscriptionResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	contentType, err := audio.ResolveMIMEType(filename)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filename)))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	if _, err := io.Copy(part, audioData); err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	fields := map[string]string{"model": params.Model}
	if params.LanguageCode != "" {
		fields["language_code"] = params.LanguageCode
	}
	if params.WithTimestamps {
		fields["with_timestamps"] = "true"
	}
	if params.Prompt != "" {
		fields["prompt"] = params.Prompt
	}
	for _, name := range []string{"model", "language_code", "with_timestamps", "prompt"} {
		value, ok := fields[name]
		if !ok {
			continue
		}
		if err := writer.WriteField(name, value); err != nil {
			return nil, utils.WrapIfNotNil(err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.baseURL+path, &buf)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	req.Header.Set(apiKeyHeader, s.client.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result TranscriptionResponse
	if err := s.client.do(req, &result); err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	return &result, nil
}
