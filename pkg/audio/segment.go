package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/utils"
)

const (
	DefaultFFmpegPath    = "ffmpeg"
	DefaultChunkDuration = 29 * time.Second
	chunkPattern         = "%03d"
)

// Runner executes an external command and returns its stderr.
type Runner interface {
	Run(ctx context.Context, binary string, args ...string) ([]byte, error)
}

type SegmentOptions struct {
	// Duration of each chunk; DefaultChunkDuration when zero.
	Duration time.Duration
	// OutputDir receives the chunks; the source file's directory when empty.
	OutputDir string
}

// Segmenter splits audio into fixed-length chunks with ffmpeg's segment muxer.
type Segmenter struct {
	FFmpegPath string
	Runner     Runner
}

func NewSegmenter(ffmpegPath string) *Segmenter {
	return &Segmenter{FFmpegPath: ffmpegPath}
}

// Split writes <base>_000<ext>, <base>_001<ext>, ... into a fresh <base>-* directory
// under the output directory and returns their paths in order. Callers release them
// with RemoveChunks.
func (s *Segmenter) Split(ctx context.Context, path string, opts SegmentOptions) ([]string, error) {
	const fn = "audio.Segmenter.Split"
	log := logging.NewLogger(ctx)

	ext, err := CheckFormat(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	outDir := opts.OutputDir
	if outDir == "" {
		outDir = filepath.Dir(path)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	runDir, err := os.MkdirTemp(outDir, chunkBase(path)+"-*")
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	args := SegmentArgs(path, ext, runDir, opts.Duration)
	binary := s.FFmpegPath
	if binary == "" {
		binary = DefaultFFmpegPath
	}

	log.Infof("%s running %s %s", fn, binary, strings.Join(args, " "))
	stderr, err := s.runner().Run(ctx, binary, args...)
	if err != nil {
		log.Errorf("%s error: %v stderr=%s", fn, err, strings.TrimSpace(string(stderr)))
		_ = os.RemoveAll(runDir)
		return nil, utils.WrapIfNotNil(fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(string(stderr))))
	}

	chunks, err := filepath.Glob(filepath.Join(runDir, chunkBase(path)+"_*"+ext))
	if err != nil {
		_ = os.RemoveAll(runDir)
		return nil, utils.WrapIfNotNil(err)
	}
	sort.Strings(chunks)
	if len(chunks) == 0 {
		_ = os.RemoveAll(runDir)
		return nil, utils.WrapIfNotNil(errors.New("ffmpeg produced no chunks for " + path))
	}
	log.Infof("%s split %s into %d chunk(s)", fn, path, len(chunks))
	return chunks, nil
}

// RemoveChunks deletes the chunk files and then their directories once empty.
func RemoveChunks(chunks []string) error {
	var errs []error
	dirs := map[string]struct{}{}
	for _, chunk := range chunks {
		if err := os.Remove(chunk); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
		dirs[filepath.Dir(chunk)] = struct{}{}
	}
	for dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err != nil {
			errs = append(errs, err)
		}
	}
	return utils.WrapIfNotNil(errors.Join(errs...))
}

func (s *Segmenter) runner() Runner {
	if s.Runner != nil {
		return s.Runner
	}
	return execRunner{gracePeriod: 5 * time.Second}
}

// SegmentArgs builds the ffmpeg argument list for splitting path into chunks.
func SegmentArgs(path string, ext string, outDir string, duration time.Duration) []string {
	if duration <= 0 {
		duration = DefaultChunkDuration
	}
	seconds := strconv.FormatFloat(duration.Seconds(), 'f', -1, 64)

	codec := "libmp3lame"
	if ext == ".wav" {
		codec = "pcm_s16le"
	}

	return []string{
		"-hide_banner",
		"-y",
		"-i", path,
		"-f", "segment",
		"-segment_time", seconds,
		"-c:a", codec,
		filepath.Join(outDir, chunkBase(path)+"_"+chunkPattern+ext),
	}
}

func chunkBase(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

type execRunner struct {
	gracePeriod time.Duration
}

// Run starts the command in its own process group; cancellation sends SIGTERM first.
func (r execRunner) Run(ctx context.Context, binary string, args ...string) ([]byte, error) {
	c := exec.CommandContext(ctx, binary, args...) //nolint:gosec // binary comes from configuration
	var stderr bytes.Buffer
	c.Stderr = &stderr
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		return syscall.Kill(-c.Process.Pid, syscall.SIGTERM)
	}
	c.WaitDelay = r.gracePeriod

	if err := c.Run(); err != nil {
		if ctx.Err() != nil {
			return stderr.Bytes(), fmt.Errorf("killed by context: %w", ctx.Err())
		}
		return stderr.Bytes(), fmt.Errorf("exit code %d: %w", c.ProcessState.ExitCode(), err)
	}
	return stderr.Bytes(), nil
}
