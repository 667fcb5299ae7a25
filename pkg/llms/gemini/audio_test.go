package gemini

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
	"google.golang.org/genai"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
)

type fakeModels struct {
	response  *genai.GenerateContentResponse
	err       error
	model     string
	contents  []*genai.Content
	config    *genai.GenerateContentConfig
	tokens    *genai.CountTokensResponse
	tokensErr error
}

func (f *fakeModels) GenerateContent(_ context.Context, modelName string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = modelName
	f.contents = contents
	f.config = config
	return f.response, f.err
}

func (f *fakeModels) CountTokens(_ context.Context, modelName string, contents []*genai.Content, _ *genai.CountTokensConfig) (*genai.CountTokensResponse, error) {
	f.model = modelName
	f.contents = contents
	return f.tokens, f.tokensErr
}

type fakeStore struct {
	uploads []string
	deletes []string
	err     error
}

func (f *fakeStore) UploadFile(_ context.Context, path string, _ string) (model.Resource, error) {
	if f.err != nil {
		return model.Resource{}, f.err
	}
	f.uploads = append(f.uploads, path)
	return model.Resource{Name: "files/abc", URI: "https://example.test/files/abc", MIMEType: "audio/mpeg"}, nil
}

func (f *fakeStore) DeleteFile(_ context.Context, name string) error {
	f.deletes = append(f.deletes, name)
	return nil
}

func (f *fakeStore) DownloadFile(context.Context, string) ([]byte, error) {
	return nil, errors.New("not supported")
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		ResponseID: "resp-1",
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: text}}},
			FinishReason: genai.FinishReasonStop,
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 120, CandidatesTokenCount: 30, TotalTokenCount: 150},
	}
}

type AudioGeneratorSuite struct {
	suite.Suite
	ctx    context.Context
	audio  string
	models *fakeModels
	store  *fakeStore
}

func TestAudioGeneratorSuite(t *testing.T) {
	suite.Run(t, new(AudioGeneratorSuite))
}

func (s *AudioGeneratorSuite) SetupTest() {
	s.ctx = context.Background()
	s.audio = filepath.Join(s.T().TempDir(), "clip.mp3")
	s.Require().NoError(os.WriteFile(s.audio, []byte("ID3 fake"), 0o644))
	s.models = &fakeModels{}
	s.store = &fakeStore{}
}

func (s *AudioGeneratorSuite) generator(opts model.AudioOptions) *audioGenerator {
	gen, err := NewAudioGenerator(s.audio, opts)
	s.Require().NoError(err)
	g := gen.(*audioGenerator)
	g.models = s.models
	g.store = s.store
	return g
}

func (s *AudioGeneratorSuite) TestNewAudioGeneratorValidatesInput() {
	_, err := NewAudioGenerator("   ", model.AudioOptions{})
	s.Require().Error(err)

	_, err = NewAudioGenerator("notes.txt", model.AudioOptions{})
	s.Require().Error(err)

	_, err = NewAudioGenerator(s.audio, model.AudioOptions{Task: model.AudioTaskTranslate, Timestamped: true})
	var cfgErr *model.ConfigurationError
	s.True(errors.As(err, &cfgErr))
}

func (s *AudioGeneratorSuite) TestUploadModeReferencesFileAndDeletesIt() {
	s.models.response = textResponse("  नमस्ते  ")

	text, meta, err := s.generator(model.AudioOptions{}).Generate(s.ctx)
	s.Require().NoError(err)

	s.Equal("नमस्ते", text)
	s.Equal(defaultGenerationModelName, s.models.model)
	s.Equal([]string{s.audio}, s.store.uploads)
	s.Equal([]string{"files/abc"}, s.store.deletes)
	s.Equal("files/abc", meta[model.MetadataKeyUploadedFile])
	s.Equal("150", meta[model.MetadataKeyTotalTokens])
	s.Equal("resp-1", meta[model.MetadataKeyResponseID])

	parts := s.models.contents[0].Parts
	s.Require().Len(parts, 2)
	s.Contains(parts[0].Text, "Hindi and Gujarati")
	s.Require().NotNil(parts[1].FileData)
	s.Equal("https://example.test/files/abc", parts[1].FileData.FileURI)
}

func (s *AudioGeneratorSuite) TestUploadIsDeletedWhenGenerationFails() {
	s.models.err = errors.New("500 internal")

	_, _, err := s.generator(model.AudioOptions{}).Generate(s.ctx)
	s.Require().Error(err)
	s.Equal([]string{"files/abc"}, s.store.deletes)
}

func (s *AudioGeneratorSuite) TestInlineModeSendsBytesWithoutUpload() {
	s.models.response = textResponse("hello")

	_, _, err := s.generator(model.AudioOptions{Delivery: model.AudioDeliveryInline, Model: "gemini-2.5-flash"}).Generate(s.ctx)
	s.Require().NoError(err)

	s.Empty(s.store.uploads)
	s.Equal("gemini-2.5-flash", s.models.model)
	parts := s.models.contents[0].Parts
	s.Require().NotNil(parts[1].InlineData)
	s.Equal("audio/mpeg", parts[1].InlineData.MIMEType)
	s.Equal([]byte("ID3 fake"), parts[1].InlineData.Data)
}

func (s *AudioGeneratorSuite) TestEmptyResponseUsesPlaceholder() {
	s.models.response = &genai.GenerateContentResponse{}

	text, _, err := s.generator(model.AudioOptions{}).Generate(s.ctx)
	s.Require().NoError(err)
	s.Equal(EmptyTranscriptionText, text)

	text, _, err = s.generator(model.AudioOptions{Task: model.AudioTaskTranslate}).Generate(s.ctx)
	s.Require().NoError(err)
	s.Equal(EmptyTranslationText, text)
}

func (s *AudioGeneratorSuite) TestTimestampedUsesSchemaAndRendersSegments() {
	s.models.response = textResponse(`{"segments":[
		{"start":"00:00","end":"00:12","language":"Hindi","text":"नमस्ते"},
		{"start":"00:13","end":"00:27","language":"Gujarati","text":"કેમ છો?"}
	]}`)

	text, _, err := s.generator(model.AudioOptions{Timestamped: true}).Generate(s.ctx)
	s.Require().NoError(err)

	s.Equal("[00:00 - 00:12] (Hindi): नमस्ते\n[00:13 - 00:27] (Gujarati): કેમ છો?", text)
	s.Equal("application/json", s.models.config.ResponseMIMEType)
	schema, ok := s.models.config.ResponseJsonSchema.(map[string]any)
	s.Require().True(ok)
	s.Contains(schema["properties"], "segments")
}

func (s *AudioGeneratorSuite) TestTimestampedRejectsNonJSON() {
	s.models.response = textResponse("[00:00 - 00:12] (Hindi): plain text")

	_, _, err := s.generator(model.AudioOptions{Timestamped: true}).Generate(s.ctx)
	s.Require().Error(err)
}

func (s *AudioGeneratorSuite) TestTranslationPromptNamesTargetLanguage() {
	s.Contains(TranslationPrompt(""), "natural English")
	s.Contains(TranslationPrompt("French"), "French translation")
	s.Equal("custom", BuildAudioPrompt(model.AudioOptions{Prompt: " custom "}))
	s.Contains(BuildAudioPrompt(model.AudioOptions{Timestamped: true}), "MM:SS")
	s.Contains(BuildAudioPrompt(model.AudioOptions{}), "without timestamps")
}

func (s *AudioGeneratorSuite) TestTemperatureIsPassedThrough() {
	s.models.response = textResponse("hello")

	_, _, err := s.generator(model.AudioOptions{}).Generate(s.ctx)
	s.Require().NoError(err)
	s.Nil(s.models.config.Temperature)

	temperature := 0.2
	_, _, err = s.generator(model.AudioOptions{Temperature: &temperature}).Generate(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(s.models.config.Temperature)
	s.InDelta(0.2, float64(*s.models.config.Temperature), 1e-6)
}
