package gemini

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/utils"
)

const (
	ProviderName               = "gemini"
	defaultGenerationModelName = "gemini-2.5-pro"
	defaultBatchModelName      = "gemini-2.5-flash"
	apiKeyEnv                  = "GEMINI_API_KEY"
)

// NewAPIClient builds a Gemini Developer API client. The API key falls back to
// GEMINI_API_KEY when no auth token is configured.
func NewAPIClient(ctx context.Context, opts ...model.GeneratorOption) (*genai.Client, error) {
	return newAPIClient(ctx, model.ResolveGeneratorOpts(opts...))
}

func newAPIClient(ctx context.Context, cfg model.GeneratorConfig) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
	}

	token := strings.TrimSpace(cfg.AuthToken)
	if token == "" {
		token = strings.TrimSpace(os.Getenv(apiKeyEnv))
	}
	if token == "" {
		return nil, utils.WrapIfNotNil(&model.ConfigurationError{Setting: apiKeyEnv})
	}
	clientCfg.APIKey = token

	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{
			BaseURL: baseURL,
		}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	return client, nil
}

func initMetadata(modelName string) model.GenerationMetadata {
	if strings.TrimSpace(modelName) == "" {
		modelName = "unknown"
	}

	return model.GenerationMetadata{
		model.MetadataKeyProvider: ProviderName,
		model.MetadataKeyModel:    modelName,
	}
}

func setLatencyMetadata(meta model.GenerationMetadata, start time.Time) {
	if meta == nil {
		return
	}
	meta[model.MetadataKeyLatencyMs] = strconv.FormatInt(time.Since(start).Milliseconds(), 10)
}

func resolveModelName(name string, fallback string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return fallback
}

func applyUsageMetadata(meta model.GenerationMetadata, response *genai.GenerateContentResponse) {
	if meta == nil || response == nil {
		return
	}

	if usage := response.UsageMetadata; usage != nil {
		meta[model.MetadataKeyInputTokens] = strconv.Itoa(int(usage.PromptTokenCount))
		meta[model.MetadataKeyOutputTokens] = strconv.Itoa(int(usage.CandidatesTokenCount))
		meta[model.MetadataKeyTotalTokens] = strconv.Itoa(int(usage.TotalTokenCount))
		meta[model.MetadataKeyCachedInputTokens] = strconv.Itoa(int(usage.CachedContentTokenCount))
		meta[model.MetadataKeyReasoningTokens] = strconv.Itoa(int(usage.ThoughtsTokenCount))
	}
	if strings.TrimSpace(response.ResponseID) != "" {
		meta[model.MetadataKeyResponseID] = response.ResponseID
	}
	if len(response.Candidates) > 0 && response.Candidates[0] != nil {
		meta[model.MetadataKeyResponseStatus] = string(response.Candidates[0].FinishReason)
	}
}
