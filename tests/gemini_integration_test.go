package tests

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/batch"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/llms/gemini"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/metrics"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
)

type GeminiIntegrationSuite struct {
	ExternalDependenciesSuite
	apiKey    string
	baseURL   string
	modelName string
	audioPath string
}

func (s *GeminiIntegrationSuite) SetupSuite() {
	s.ExternalDependenciesSuite.SetupSuite()

	s.apiKey = s.requireEnv("GEMINI_API_KEY")
	s.baseURL = strings.TrimSpace(os.Getenv("GEMINI_BASE_URL"))
	s.modelName = strings.TrimSpace(os.Getenv("GEMINI_AUDIO_MODEL"))
	if s.modelName == "" {
		s.modelName = "gemini-2.5-flash"
	}
	s.audioPath = s.audioFixture()
}

func (s *GeminiIntegrationSuite) audioOptions(task model.AudioTask) model.AudioOptions {
	return model.AudioOptions{
		AuthToken: s.apiKey,
		URL:       s.baseURL,
		Model:     s.modelName,
		Task:      task,
	}
}

func (s *GeminiIntegrationSuite) TestTranscribeUploadedAudio() {
	ctx, cancel := context.WithTimeout(context.Background(), 180*time.Second)
	defer cancel()

	generator, err := gemini.NewAudioGenerator(s.audioPath, s.audioOptions(model.AudioTaskTranscribe))
	require.NoError(s.T(), err)

	transcript, metadata, err := generator.Generate(ctx)
	require.NoError(s.T(), err)
	assert.NotEmpty(s.T(), strings.TrimSpace(transcript))
	assert.Equal(s.T(), "gemini", metadata[model.MetadataKeyProvider])
	assert.NotEmpty(s.T(), metadata[model.MetadataKeyLatencyMs])
	assert.NotEmpty(s.T(), metadata[model.MetadataKeyUploadedFile])
}

func (s *GeminiIntegrationSuite) TestTimestampedTranscription() {
	ctx, cancel := context.WithTimeout(context.Background(), 180*time.Second)
	defer cancel()

	opts := s.audioOptions(model.AudioTaskTranscribe)
	opts.Timestamped = true
	generator, err := gemini.NewAudioGenerator(s.audioPath, opts)
	require.NoError(s.T(), err)

	transcript, _, err := generator.Generate(ctx)
	require.NoError(s.T(), err)
	assert.Regexp(s.T(), `^\[\d{2}:\d{2} - \d{2}:\d{2}\] \(`, transcript)
}

func (s *GeminiIntegrationSuite) TestTranslateInlineAudio() {
	ctx, cancel := context.WithTimeout(context.Background(), 180*time.Second)
	defer cancel()

	opts := s.audioOptions(model.AudioTaskTranslate)
	opts.Delivery = model.AudioDeliveryInline
	generator, err := gemini.NewAudioGenerator(s.audioPath, opts)
	require.NoError(s.T(), err)

	translation, metadata, err := generator.Generate(ctx)
	require.NoError(s.T(), err)
	assert.NotEmpty(s.T(), strings.TrimSpace(translation))
	assert.Empty(s.T(), metadata[model.MetadataKeyUploadedFile])
}

func (s *GeminiIntegrationSuite) TestCountTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	client, err := gemini.NewAPIClient(ctx, model.WithAuthToken(s.apiKey), model.WithURL(s.baseURL))
	require.NoError(s.T(), err)

	count, err := gemini.NewTokenCounter(client, s.modelName).Count(ctx, gemini.BatchTranslationPrompt, s.audioPath)
	require.NoError(s.T(), err)
	assert.Greater(s.T(), count.Total, int32(0))
}

// TestBatchWorkflow waits for a real batch job, which can take many minutes.
// It only runs when GEMINI_RUN_BATCH is set.
func (s *GeminiIntegrationSuite) TestBatchWorkflow() {
	s.requireEnv("GEMINI_RUN_BATCH")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	client, err := gemini.NewAPIClient(ctx, model.WithAuthToken(s.apiKey), model.WithURL(s.baseURL))
	require.NoError(s.T(), err)

	workflow := gemini.NewBatchWorkflow(client, s.modelName, batch.PollOptions{Interval: 20 * time.Second}, metrics.New())
	outcome, err := workflow.Run(ctx, batch.Input{
		Requests: []batch.RequestSpec{
			{Key: "translation", Prompt: gemini.BatchTranslationPrompt, AudioPaths: []string{s.audioPath}},
		},
		OutputDir:   s.T().TempDir(),
		DisplayName: "polyglot-speech-integration",
	})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), model.JobStateSucceeded, outcome.Job.State)
	assert.Len(s.T(), outcome.Outputs, 1)
	assert.True(s.T(), outcome.Keys.OK())
	assert.Empty(s.T(), outcome.CleanupErrors)
}

func TestGeminiIntegrationSuite(t *testing.T) {
	suite.Run(t, new(GeminiIntegrationSuite))
}
