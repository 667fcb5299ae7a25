package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"google.golang.org/genai"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/audio"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/utils"
)

const (
	EmptyTranscriptionText = "(No transcription text returned)"
	EmptyTranslationText   = "(No translation text returned)"
)

type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	CountTokens(ctx context.Context, model string, contents []*genai.Content, config *genai.CountTokensConfig) (*genai.CountTokensResponse, error)
}

type audioGenerator struct {
	filePath string
	opts     model.AudioOptions

	// set by tests; otherwise built from opts on each Generate
	models modelsAPI
	store  model.ResourceStore
}

// NewAudioGenerator returns a synchronous transcription or translation generator
// for one local audio file.
func NewAudioGenerator(filePath string, opts model.AudioOptions) (model.AudioGenerator, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, utils.WrapIfNotNil(errors.New("file path is required"))
	}
	if opts.Task == "" {
		opts.Task = model.AudioTaskTranscribe
	}
	if opts.Delivery == "" {
		opts.Delivery = model.AudioDeliveryUpload
	}
	if opts.Task == model.AudioTaskTranslate && opts.Timestamped {
		return nil, utils.WrapIfNotNil(&model.ConfigurationError{Setting: "timestamped", Message: "only supported for transcription"})
	}
	if _, err := audio.ResolveMIMEType(filePath); err != nil {
		return nil, err
	}

	return &audioGenerator{filePath: filePath, opts: opts}, nil
}

func (g *audioGenerator) Generate(ctx context.Context) (string, model.GenerationMetadata, error) {
	const fn = "gemini.audioGenerator.Generate"
	start := time.Now()
	modelName := resolveModelName(g.opts.Model, defaultGenerationModelName)
	meta := initMetadata(modelName)
	defer setLatencyMetadata(meta, start)

	log := logging.NewLogger(logging.WithFields(ctx, logging.Fields{"provider": ProviderName, "task": string(g.opts.Task)}))

	if err := g.connect(ctx); err != nil {
		log.Errorf("%s error: %v", fn, err)
		return "", meta, utils.WrapIfNotNil(err)
	}

	audioPart, cleanup, err := g.audioPart(ctx, meta)
	if err != nil {
		log.Errorf("%s error: %v", fn, err)
		return "", meta, utils.WrapIfNotNil(err)
	}
	defer cleanup()

	config, err := g.generateConfig()
	if err != nil {
		log.Errorf("%s error: %v", fn, err)
		return "", meta, utils.WrapIfNotNil(err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts(
			[]*genai.Part{
				genai.NewPartFromText(BuildAudioPrompt(g.opts)),
				audioPart,
			},
			genai.RoleUser,
		),
	}

	log.Infof("%s model=%s delivery=%s timestamped=%t file=%s", fn, modelName, g.opts.Delivery, g.opts.Timestamped, g.filePath)
	response, err := g.models.GenerateContent(ctx, modelName, contents, config)
	if err != nil {
		log.Errorf("%s error: %v", fn, err)
		return "", meta, utils.WrapIfNotNil(err)
	}
	applyUsageMetadata(meta, response)

	text, err := g.renderResponse(response)
	if err != nil {
		log.Errorf("%s error: %v", fn, err)
		return "", meta, utils.WrapIfNotNil(err)
	}
	return text, meta, nil
}

func (g *audioGenerator) connect(ctx context.Context) error {
	if g.models != nil && (g.store != nil || g.opts.Delivery == model.AudioDeliveryInline) {
		return nil
	}
	client, err := newAPIClient(ctx, model.GeneratorConfig{URL: g.opts.URL, AuthToken: g.opts.AuthToken})
	if err != nil {
		return err
	}
	g.models = client.Models
	g.store = NewFileStore(client)
	return nil
}

// audioPart returns the part carrying the audio and a func releasing any upload.
func (g *audioGenerator) audioPart(ctx context.Context, meta model.GenerationMetadata) (*genai.Part, func(), error) {
	mimeType, err := audio.ResolveMIMEType(g.filePath)
	if err != nil {
		return nil, nil, err
	}

	if g.opts.Delivery == model.AudioDeliveryInline {
		data, err := os.ReadFile(g.filePath)
		if err != nil {
			return nil, nil, err
		}
		return genai.NewPartFromBytes(data, mimeType), func() {}, nil
	}

	res, err := g.store.UploadFile(ctx, g.filePath, "")
	if err != nil {
		return nil, nil, err
	}
	meta[model.MetadataKeyUploadedFile] = res.Name

	release := func() {
		const fn = "gemini.audioGenerator.release"
		log := logging.NewLogger(ctx)
		if err := g.store.DeleteFile(context.WithoutCancel(ctx), res.Name); err != nil {
			log.Warnf("%s %v", fn, &model.CleanupError{Resource: res.Name, Err: err})
			return
		}
		log.Infof("%s deleted %s", fn, res.Name)
	}
	return genai.NewPartFromURI(res.URI, res.MIMEType), release, nil
}

func (g *audioGenerator) generateConfig() (*genai.GenerateContentConfig, error) {
	config := &genai.GenerateContentConfig{}
	if g.opts.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*g.opts.Temperature))
	}
	if !g.opts.Timestamped {
		return config, nil
	}

	schema, err := generateJSONSchema[model.TimestampedTranscript]()
	if err != nil {
		return nil, err
	}
	config.ResponseMIMEType = "application/json"
	config.ResponseJsonSchema = schema
	return config, nil
}

func (g *audioGenerator) renderResponse(response *genai.GenerateContentResponse) (string, error) {
	text := strings.TrimSpace(response.Text())
	if text == "" {
		if g.opts.Task == model.AudioTaskTranslate {
			return EmptyTranslationText, nil
		}
		return EmptyTranscriptionText, nil
	}
	if !g.opts.Timestamped {
		return text, nil
	}

	var transcript model.TimestampedTranscript
	if err := json.Unmarshal([]byte(text), &transcript); err != nil {
		return "", err
	}
	rendered := transcript.Render()
	if rendered == "" {
		return EmptyTranscriptionText, nil
	}
	return rendered, nil
}

func generateJSONSchema[T any]() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	var value T
	schema := reflector.Reflect(value)

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	var schemaMap map[string]any
	err = json.Unmarshal(schemaJSON, &schemaMap)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	return schemaMap, nil
}
