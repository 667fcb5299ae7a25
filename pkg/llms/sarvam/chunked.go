package sarvam

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/audio"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/metrics"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/utils"
)

type chunkTranscriber interface {
	TranscribeFile(ctx context.Context, params TranscribeParams, path string) (*TranscriptionResponse, error)
}

type chunkSplitter interface {
	Split(ctx context.Context, path string, opts audio.SegmentOptions) ([]string, error)
}

// ChunkedTranscriber splits long audio into short clips and transcribes them one
// by one with the synchronous endpoint.
type ChunkedTranscriber struct {
	STT      chunkTranscriber
	Splitter chunkSplitter
	Params   TranscribeParams
	Segment  audio.SegmentOptions
	Metrics  *metrics.Metrics
}

func NewChunkedTranscriber(client *Client, segmenter *audio.Segmenter, params TranscribeParams, segment audio.SegmentOptions) *ChunkedTranscriber {
	return &ChunkedTranscriber{
		STT:      client.SpeechToText,
		Splitter: segmenter,
		Params:   params,
		Segment:  segment,
	}
}

// Transcribe returns the chunk transcripts joined with a space. A failing chunk is
// logged and skipped; its error is returned in the second value. Chunks are removed
// before it returns.
func (t *ChunkedTranscriber) Transcribe(ctx context.Context, path string) (string, []error, error) {
	const fn = "sarvam.ChunkedTranscriber.Transcribe"
	log := logging.NewLogger(ctx)

	if _, err := audio.CheckFormat(path); err != nil {
		return "", nil, err
	}

	chunks, err := t.Splitter.Split(ctx, path, t.Segment)
	if err != nil {
		return "", nil, utils.WrapIfNotNil(err)
	}
	defer func() {
		if err := audio.RemoveChunks(chunks); err != nil {
			log.Warnf("%s chunk cleanup: %v", fn, err)
		}
	}()

	var (
		parts   []string
		skipped []error
	)
	for i, chunk := range chunks {
		if ctx.Err() != nil {
			return "", skipped, ctx.Err()
		}
		log.Infof("%s chunk %d/%d %s", fn, i+1, len(chunks), chunk)
		resp, err := t.STT.TranscribeFile(ctx, t.Params, chunk)
		t.Metrics.ObserveChunk(err)
		if err != nil {
			chunkErr := fmt.Errorf("chunk %s: %w", filepath.Base(chunk), err)
			log.Warnf("%s %v", fn, chunkErr)
			skipped = append(skipped, chunkErr)
			continue
		}
		if text := strings.TrimSpace(resp.Transcript); text != "" {
			parts = append(parts, text)
		}
	}

	if len(parts) == 0 && len(skipped) == len(chunks) {
		return "", skipped, utils.WrapIfNotNil(errors.Join(append([]error{errors.New("every chunk failed")}, skipped...)...))
	}
	return strings.TrimSpace(strings.Join(parts, " ")), skipped, nil
}

// TranscribeToFile writes the joined transcript to outputPath, creating parent directories.
func (t *ChunkedTranscriber) TranscribeToFile(ctx context.Context, path string, outputPath string) ([]error, error) {
	text, skipped, err := t.Transcribe(ctx, path)
	if err != nil {
		return skipped, err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return skipped, utils.WrapIfNotNil(err)
	}
	return skipped, utils.WrapIfNotNil(os.WriteFile(outputPath, []byte(text), 0o644))
}
