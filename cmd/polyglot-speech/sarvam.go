package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/audio"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/batch"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/llms/sarvam"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
)

func (a *app) sarvamCommand() *cli.Command {
	return &cli.Command{
		Name:  "sarvam",
		Usage: "SarvamAI speech-to-text and speech translation",
		Commands: []*cli.Command{
			{
				Name:      "transcribe",
				Usage:     "Transcribe (or translate) one audio file with the synchronous API",
				ArgsUsage: "<audio file>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "chunked", Usage: "split long audio with ffmpeg and transcribe chunk by chunk"},
					&cli.DurationFlag{Name: "chunk-duration", Usage: "chunk length for --chunked"},
					&cli.BoolFlag{Name: "translate", Usage: "translate to English instead of transcribing"},
					&cli.StringFlag{Name: "language-code", Usage: "e.g. hi-IN or gu-IN; empty for code-mixed speech"},
					&cli.StringFlag{Name: "model"},
					&cli.StringFlag{Name: "prompt", Usage: "context prompt, translate only"},
					&cli.BoolFlag{Name: "timestamps", Usage: "request word timestamps"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output file (default under --output-dir)"},
				},
				Action: a.sarvamTranscribe,
			},
			{
				Name:      "batch",
				Usage:     "Run a batch job over audio files and download its outputs",
				ArgsUsage: "<audio files...>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "translate", Usage: "use the speech-to-text-translate job"},
					&cli.StringFlag{Name: "language-code", Usage: "e.g. hi-IN or gu-IN"},
					&cli.StringFlag{Name: "model"},
					&cli.BoolFlag{Name: "timestamps"},
					&cli.BoolFlag{Name: "diarization"},
					&cli.IntFlag{Name: "num-speakers"},
					&cli.DurationFlag{Name: "poll-interval", Usage: "wait between status checks"},
					&cli.DurationFlag{Name: "poll-timeout", Usage: "give up waiting after this long (0 waits forever)"},
				},
				Action: a.sarvamBatch,
			},
		},
	}
}

func (a *app) sarvamClient() (*sarvam.Client, error) {
	if err := a.cfg.RequireSarvam(); err != nil {
		return nil, err
	}
	return sarvam.NewClient(
		sarvam.WithAPIKey(a.cfg.Sarvam.APIKey),
		sarvam.WithBaseURL(a.cfg.Sarvam.BaseURL),
	)
}

func (a *app) sarvamTranscribe(ctx context.Context, cmd *cli.Command) error {
	const fn = "main.sarvamTranscribe"
	log := logging.NewLogger(ctx)

	path := cmd.Args().First()
	if path == "" {
		return &model.ConfigurationError{Setting: "audio", Message: "audio file argument is required"}
	}
	translate := cmd.Bool("translate")
	if translate && cmd.Bool("chunked") {
		return &model.ConfigurationError{Setting: "chunked", Message: "chunked mode only transcribes"}
	}

	client, err := a.sarvamClient()
	if err != nil {
		return err
	}

	params := sarvam.TranscribeParams{
		Model:          firstNonEmpty(cmd.String("model"), a.cfg.Sarvam.STTModel),
		LanguageCode:   firstNonEmpty(cmd.String("language-code"), a.cfg.Sarvam.LanguageCode),
		WithTimestamps: cmd.Bool("timestamps"),
	}
	suffix := "_transcript.txt"
	if translate {
		params.Model = firstNonEmpty(cmd.String("model"), a.cfg.Sarvam.TranslateModel)
		params.Prompt = cmd.String("prompt")
		suffix = "_translation.txt"
	}
	output := firstNonEmpty(cmd.String("output"), defaultOutputPath(a.cfg.Output.Dir, path, suffix))

	if cmd.Bool("chunked") {
		segment := audio.SegmentOptions{
			Duration:  a.cfg.Audio.ChunkDuration,
			OutputDir: a.cfg.Audio.ChunkDir,
		}
		if cmd.IsSet("chunk-duration") {
			segment.Duration = cmd.Duration("chunk-duration")
		}
		transcriber := sarvam.NewChunkedTranscriber(client, audio.NewSegmenter(a.cfg.Audio.FFmpegPath), params, segment)
		transcriber.Metrics = a.metrics
		skipped, err := transcriber.TranscribeToFile(ctx, path, output)
		for _, chunkErr := range skipped {
			log.Warnf("%s skipped %v", fn, chunkErr)
		}
		if err != nil {
			return err
		}
		fmt.Println(output)
		return nil
	}

	if _, err := audio.CheckFormat(path); err != nil {
		return err
	}
	var resp *sarvam.TranscriptionResponse
	if translate {
		resp, err = client.SpeechToText.TranslateFile(ctx, params, path)
	} else {
		resp, err = client.SpeechToText.TranscribeFile(ctx, params, path)
	}
	if err != nil {
		log.Errorf("%s error: %v", fn, err)
		return err
	}
	log.Infof("%s request_id=%s language_code=%s", fn, resp.RequestID, resp.LanguageCode)

	if err := writeText(output, resp.Transcript); err != nil {
		return err
	}
	fmt.Println(output)
	return nil
}

func (a *app) sarvamBatch(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return &model.ConfigurationError{Setting: "audio", Message: "at least one audio file is required"}
	}

	client, err := a.sarvamClient()
	if err != nil {
		return err
	}

	jobs := client.STTJobs
	modelName := firstNonEmpty(cmd.String("model"), a.cfg.Sarvam.STTModel)
	if cmd.Bool("translate") {
		jobs = client.TranslateJobs
		modelName = firstNonEmpty(cmd.String("model"), a.cfg.Sarvam.TranslateModel)
	}

	poll := batch.PollOptions{
		Interval: a.cfg.Sarvam.PollInterval,
		Timeout:  a.cfg.Sarvam.PollTimeout,
		Metrics:  a.metrics,
	}
	if cmd.IsSet("poll-interval") {
		poll.Interval = cmd.Duration("poll-interval")
	}
	if cmd.IsSet("poll-timeout") {
		poll.Timeout = cmd.Duration("poll-timeout")
	}

	result, err := jobs.RunJob(ctx, sarvam.JobRequest{
		Params: sarvam.JobParameters{
			Model:           modelName,
			LanguageCode:    firstNonEmpty(cmd.String("language-code"), a.cfg.Sarvam.LanguageCode),
			WithTimestamps:  cmd.Bool("timestamps"),
			WithDiarization: cmd.Bool("diarization"),
			NumSpeakers:     cmd.Int("num-speakers"),
		},
		AudioPaths:    paths,
		OutputDir:     filepath.Join(a.cfg.Output.Dir, "sarvam_"+string(jobs.Kind())),
		Poll:          poll,
		UploadTimeout: a.cfg.Sarvam.UploadTimeout,
	})
	if result.Job.Name != "" {
		logging.NewLogger(ctx).Infof("sarvam job %s finished in state %s", result.Job.Name, result.Job.State)
	}
	for _, path := range result.Outputs {
		fmt.Println(path)
	}
	return err
}
