package gemini

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/genai"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/batch"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/utils"
)

type TokenCount struct {
	Total  int32
	Cached int32
}

// TokenCounter asks the model for the token count of a prompt plus files.
// Text files (.txt) are sent inline; audio files are uploaded and deleted afterwards.
type TokenCounter struct {
	Model string

	models modelsAPI
	store  model.ResourceStore
}

func NewTokenCounter(client *genai.Client, modelName string) *TokenCounter {
	return &TokenCounter{
		Model:  resolveModelName(modelName, defaultBatchModelName),
		models: client.Models,
		store:  NewFileStore(client),
	}
}

func (c *TokenCounter) Count(ctx context.Context, prompt string, paths ...string) (TokenCount, error) {
	const fn = "gemini.TokenCounter.Count"
	log := logging.NewLogger(ctx)

	tracker := batch.NewHandleTracker(ProviderName, nil)
	defer tracker.Cleanup(ctx, c.store)

	var parts []*genai.Part
	if strings.TrimSpace(prompt) != "" {
		parts = append(parts, genai.NewPartFromText(prompt))
	}
	for _, path := range paths {
		if strings.EqualFold(filepath.Ext(path), ".txt") {
			data, err := os.ReadFile(path)
			if err != nil {
				return TokenCount{}, utils.WrapIfNotNil(err)
			}
			parts = append(parts, genai.NewPartFromText(string(data)))
			continue
		}

		res, err := c.store.UploadFile(ctx, path, filepath.Base(path))
		if err != nil {
			log.Errorf("%s error: %v", fn, err)
			return TokenCount{}, err
		}
		tracker.Track(res)
		parts = append(parts, genai.NewPartFromURI(res.URI, res.MIMEType))
	}
	if len(parts) == 0 {
		return TokenCount{}, utils.WrapIfNotNil(&model.ConfigurationError{Setting: "prompt", Message: "a prompt or at least one file is required"})
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	response, err := c.models.CountTokens(ctx, c.Model, contents, nil)
	if err != nil {
		log.Errorf("%s model=%s error: %v", fn, c.Model, err)
		return TokenCount{}, utils.WrapIfNotNil(err)
	}

	count := TokenCount{Total: response.TotalTokens, Cached: response.CachedContentTokenCount}
	log.Infof("%s model=%s parts=%d total_tokens=%d", fn, c.Model, len(parts), count.Total)
	return count, nil
}
