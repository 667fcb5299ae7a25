package model

import "context"

// GenerationMetadata describes a single provider call: model, latency and token usage.
type GenerationMetadata map[string]string

const (
	MetadataKeyProvider          = "provider"
	MetadataKeyModel             = "model"
	MetadataKeyLatencyMs         = "latency_ms"
	MetadataKeyInputTokens       = "input_tokens"
	MetadataKeyOutputTokens      = "output_tokens"
	MetadataKeyTotalTokens       = "total_tokens"
	MetadataKeyCachedInputTokens = "cached_input_tokens"
	MetadataKeyReasoningTokens   = "reasoning_tokens"
	MetadataKeyResponseID        = "response_id"
	MetadataKeyResponseStatus    = "response_status"
	MetadataKeyUploadedFile      = "uploaded_file"
	MetadataKeyLanguageCode      = "language_code"
	MetadataKeyRequestID         = "request_id"
)

type AudioGenerator interface {
	Generate(ctx context.Context) (string, GenerationMetadata, error)
}

type GeneratorOption interface {
	apply(*GeneratorConfig)
}

type generatorOptionFunc func(*GeneratorConfig)

func (f generatorOptionFunc) apply(cfg *GeneratorConfig) {
	f(cfg)
}

type GeneratorConfig struct {
	URL       string
	AuthToken string
}

func ResolveGeneratorOpts(opts ...GeneratorOption) GeneratorConfig {
	cfg := GeneratorConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&cfg)
		}
	}
	return cfg
}

func WithURL(value string) GeneratorOption {
	return generatorOptionFunc(func(cfg *GeneratorConfig) {
		cfg.URL = value
	})
}

func WithAuthToken(value string) GeneratorOption {
	return generatorOptionFunc(func(cfg *GeneratorConfig) {
		cfg.AuthToken = value
	})
}
