package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
	"gopkg.in/yaml.v3"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/batch"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/llms/gemini"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/utils"
)

// requestsFile is the YAML form of a batch: one entry per request.
//
//	requests:
//	  - key: call-1
//	    prompt: Translate this audio clip into English.
//	    audio: [call-1.mp3]
type requestsFile struct {
	Requests []struct {
		Key    string   `yaml:"key"`
		Prompt string   `yaml:"prompt"`
		Audio  []string `yaml:"audio"`
	} `yaml:"requests"`
}

func (a *app) geminiCommand() *cli.Command {
	return &cli.Command{
		Name:  "gemini",
		Usage: "Gemini transcription, translation and batch jobs",
		Commands: []*cli.Command{
			{
				Name:      "batch",
				Usage:     "Run a batch job over audio files and write one output per request",
				ArgsUsage: "[audio files...]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "task", Value: string(model.AudioTaskTranslate), Usage: "transcribe or translate"},
					&cli.StringFlag{Name: "prompt", Usage: "prompt for every request (defaults to the task prompt)"},
					&cli.StringFlag{Name: "requests", Usage: "YAML file listing key, prompt and audio per request"},
					&cli.BoolFlag{Name: "positional-keys", Usage: "key requests r1, r2, ... instead of by file name"},
					&cli.StringFlag{Name: "model", Usage: "batch model"},
					&cli.StringFlag{Name: "display-name", Usage: "job display name (default polyglot-<run id>)"},
					&cli.DurationFlag{Name: "poll-interval", Usage: "wait between status checks"},
					&cli.DurationFlag{Name: "poll-timeout", Usage: "give up waiting after this long (0 waits forever)"},
				},
				Action: a.geminiBatch,
			},
			{
				Name:      "resume",
				Usage:     "Wait for an existing batch job and extract its results",
				ArgsUsage: "<job name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "document", Usage: "request document of the job, to check result keys"},
					&cli.DurationFlag{Name: "poll-interval", Usage: "wait between status checks"},
					&cli.DurationFlag{Name: "poll-timeout", Usage: "give up waiting after this long (0 waits forever)"},
				},
				Action: a.geminiResume,
			},
			{
				Name:      "transcribe",
				Usage:     "Transcribe Hindi/Gujarati audio in its native script",
				ArgsUsage: "<audio file>",
				Flags: append(generateFlags(),
					&cli.BoolFlag{Name: "timestamped", Usage: "split the transcript into timed segments"},
				),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return a.geminiGenerate(ctx, cmd, model.AudioTaskTranscribe)
				},
			},
			{
				Name:      "translate",
				Usage:     "Translate Hindi/Gujarati audio",
				ArgsUsage: "<audio file>",
				Flags: append(generateFlags(),
					&cli.StringFlag{Name: "target-language", Value: "English"},
				),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return a.geminiGenerate(ctx, cmd, model.AudioTaskTranslate)
				},
			},
			{
				Name:      "count-tokens",
				Usage:     "Count the tokens of a prompt plus text or audio files",
				ArgsUsage: "[files...]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "prompt", Value: gemini.BatchTranslationPrompt},
					&cli.StringFlag{Name: "model"},
				},
				Action: a.geminiCountTokens,
			},
		},
	}
}

func generateFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "model"},
		&cli.StringFlag{Name: "prompt", Usage: "override the built-in prompt"},
		&cli.BoolFlag{Name: "inline", Usage: "send audio bytes with the request instead of uploading"},
		&cli.FloatFlag{Name: "temperature", Usage: "sampling temperature (model default when unset)"},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output file (default under --output-dir)"},
	}
}

func (a *app) geminiClient(ctx context.Context) (*genai.Client, error) {
	if err := a.cfg.RequireGemini(); err != nil {
		return nil, err
	}
	return gemini.NewAPIClient(ctx,
		model.WithAuthToken(a.cfg.Gemini.APIKey),
		model.WithURL(a.cfg.Gemini.BaseURL),
	)
}

func (a *app) geminiPoll(cmd *cli.Command) batch.PollOptions {
	poll := batch.PollOptions{
		Interval: a.cfg.Gemini.PollInterval,
		Timeout:  a.cfg.Gemini.PollTimeout,
	}
	if cmd.IsSet("poll-interval") {
		poll.Interval = cmd.Duration("poll-interval")
	}
	if cmd.IsSet("poll-timeout") {
		poll.Timeout = cmd.Duration("poll-timeout")
	}
	return poll
}

func (a *app) geminiBatch(ctx context.Context, cmd *cli.Command) error {
	const fn = "main.geminiBatch"
	log := logging.NewLogger(ctx)

	requests, err := batchRequests(cmd)
	if err != nil {
		return err
	}

	client, err := a.geminiClient(ctx)
	if err != nil {
		return err
	}
	modelName := firstNonEmpty(cmd.String("model"), a.cfg.Gemini.BatchModel)
	workflow := gemini.NewBatchWorkflow(client, modelName, a.geminiPoll(cmd), a.metrics)

	displayName := firstNonEmpty(cmd.String("display-name"), a.displayName("polyglot"))
	outcome, err := workflow.Run(ctx, batch.Input{
		Requests:    requests,
		OutputDir:   a.cfg.Output.Dir,
		DisplayName: displayName,
	})
	reportOutcome(ctx, outcome)
	if err != nil {
		log.Errorf("%s error: %v", fn, err)
		if outcome.Job.Name != "" && !outcome.Job.State.IsTerminal() {
			log.Infof("%s resume with: polyglot-speech gemini resume --document %s %s", fn, outcome.DocumentPath, outcome.Job.Name)
		}
		return err
	}
	return nil
}

// batchRequests builds the request list from --requests or from the positional audio files.
func batchRequests(cmd *cli.Command) ([]batch.RequestSpec, error) {
	if path := cmd.String("requests"); path != "" {
		if cmd.Args().Len() > 0 {
			return nil, &model.ConfigurationError{Setting: "requests", Message: "cannot be combined with audio arguments"}
		}
		return loadRequestsFile(path)
	}

	task := model.AudioTask(strings.ToLower(cmd.String("task")))
	prompt := cmd.String("prompt")
	switch task {
	case model.AudioTaskTranslate:
		prompt = firstNonEmpty(prompt, gemini.BatchTranslationPrompt)
	case model.AudioTaskTranscribe:
		prompt = firstNonEmpty(prompt, gemini.BatchTranscriptionPrompt)
	default:
		return nil, &model.ConfigurationError{Setting: "task", Message: fmt.Sprintf("unsupported task %q", cmd.String("task"))}
	}

	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return nil, &model.ConfigurationError{Setting: "audio", Message: "at least one audio file is required"}
	}
	requests := make([]batch.RequestSpec, 0, len(paths))
	for _, path := range paths {
		key := ""
		if !cmd.Bool("positional-keys") {
			key = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		requests = append(requests, batch.RequestSpec{Key: key, Prompt: prompt, AudioPaths: []string{path}})
	}
	return requests, nil
}

// loadRequestsFile reads a YAML batch description. Audio paths are relative to the file.
func loadRequestsFile(path string) ([]batch.RequestSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	var file requestsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &model.ConfigurationError{Setting: "requests", Message: fmt.Sprintf("failed to parse %s: %v", path, err)}
	}
	if len(file.Requests) == 0 {
		return nil, &model.ConfigurationError{Setting: "requests", Message: fmt.Sprintf("%s lists no requests", path)}
	}

	base := filepath.Dir(path)
	requests := make([]batch.RequestSpec, 0, len(file.Requests))
	for _, entry := range file.Requests {
		spec := batch.RequestSpec{Key: entry.Key, Prompt: entry.Prompt}
		for _, audioPath := range entry.Audio {
			if !filepath.IsAbs(audioPath) {
				audioPath = filepath.Join(base, audioPath)
			}
			spec.AudioPaths = append(spec.AudioPaths, audioPath)
		}
		requests = append(requests, spec)
	}
	return requests, nil
}

func (a *app) geminiResume(ctx context.Context, cmd *cli.Command) error {
	jobName := cmd.Args().First()
	if jobName == "" {
		return &model.ConfigurationError{Setting: "job", Message: "job name argument is required"}
	}

	client, err := a.geminiClient(ctx)
	if err != nil {
		return err
	}
	workflow := gemini.NewBatchWorkflow(client, a.cfg.Gemini.BatchModel, a.geminiPoll(cmd), a.metrics)

	ctx = logging.WithFields(ctx, logging.Fields{"job": jobName})
	outcome, err := workflow.Resume(ctx, batch.ResumeInput{
		JobName:      jobName,
		OutputDir:    a.cfg.Output.Dir,
		DocumentPath: cmd.String("document"),
	})
	reportOutcome(ctx, outcome)
	return err
}

func reportOutcome(ctx context.Context, outcome batch.Outcome) {
	log := logging.NewLogger(ctx)
	if outcome.Job.Name != "" {
		log.Infof("job %s finished in state %s", outcome.Job.Name, outcome.Job.State)
	}
	for _, diag := range outcome.Diagnostics {
		log.Warnf("skipped result: %v", diag)
	}
	if len(outcome.Keys.Missing) > 0 {
		log.Warnf("no result for key(s): %s", strings.Join(outcome.Keys.Missing, ", "))
	}
	if len(outcome.Keys.Unexpected) > 0 {
		log.Warnf("unexpected result key(s): %s", strings.Join(outcome.Keys.Unexpected, ", "))
	}
	for _, err := range outcome.CleanupErrors {
		log.Warnf("cleanup: %v", err)
	}
	for _, path := range outcome.Outputs {
		fmt.Println(path)
	}
}

func (a *app) geminiGenerate(ctx context.Context, cmd *cli.Command, task model.AudioTask) error {
	const fn = "main.geminiGenerate"
	log := logging.NewLogger(ctx)

	path := cmd.Args().First()
	if path == "" {
		return &model.ConfigurationError{Setting: "audio", Message: "audio file argument is required"}
	}
	if err := a.cfg.RequireGemini(); err != nil {
		return err
	}

	opts := model.AudioOptions{
		URL:       a.cfg.Gemini.BaseURL,
		AuthToken: a.cfg.Gemini.APIKey,
		Model:     firstNonEmpty(cmd.String("model"), a.cfg.Gemini.Model),
		Task:      task,
		Delivery:  model.AudioDeliveryUpload,
		Prompt:    cmd.String("prompt"),
	}
	if cmd.Bool("inline") {
		opts.Delivery = model.AudioDeliveryInline
	}
	if cmd.IsSet("temperature") {
		temperature := cmd.Float("temperature")
		opts.Temperature = &temperature
	}
	if task == model.AudioTaskTranscribe {
		opts.Timestamped = cmd.Bool("timestamped")
	} else {
		opts.TargetLanguage = cmd.String("target-language")
	}

	generator, err := gemini.NewAudioGenerator(path, opts)
	if err != nil {
		return err
	}
	text, meta, err := generator.Generate(ctx)
	if err != nil {
		log.Errorf("%s error: %v", fn, err)
		return err
	}
	log.Infof("%s model=%s latency_ms=%s total_tokens=%s", fn,
		meta[model.MetadataKeyModel], meta[model.MetadataKeyLatencyMs], meta[model.MetadataKeyTotalTokens])

	suffix := "_transcript.txt"
	if task == model.AudioTaskTranslate {
		suffix = "_translation.txt"
	}
	output := firstNonEmpty(cmd.String("output"), defaultOutputPath(a.cfg.Output.Dir, path, suffix))
	if err := writeText(output, text); err != nil {
		return err
	}
	fmt.Println(output)
	return nil
}

func (a *app) geminiCountTokens(ctx context.Context, cmd *cli.Command) error {
	client, err := a.geminiClient(ctx)
	if err != nil {
		return err
	}
	counter := gemini.NewTokenCounter(client, firstNonEmpty(cmd.String("model"), a.cfg.Gemini.BatchModel))
	count, err := counter.Count(ctx, cmd.String("prompt"), cmd.Args().Slice()...)
	if err != nil {
		return err
	}
	fmt.Printf("model=%s total_tokens=%d cached_tokens=%d\n", counter.Model, count.Total, count.Cached)
	return nil
}

func defaultOutputPath(dir string, audioPath string, suffix string) string {
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return filepath.Join(dir, base+suffix)
}

func writeText(path string, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return utils.WrapIfNotNil(err)
	}
	return utils.WrapIfNotNil(os.WriteFile(path, []byte(text), 0o644))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
