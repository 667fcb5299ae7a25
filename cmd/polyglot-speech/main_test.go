package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/urfave/cli/v3"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/batch"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
)

type MainSuite struct {
	suite.Suite
}

func TestMainSuite(t *testing.T) {
	suite.Run(t, new(MainSuite))
}

func (s *MainSuite) TestExitCode() {
	s.Equal(exitConfigurationError, exitCode(&model.ConfigurationError{Setting: "GEMINI_API_KEY"}))
	s.Equal(exitConfigurationError, exitCode(fmt.Errorf("main: %w", &model.ConfigurationError{Setting: "x"})))
	s.Equal(exitFailure, exitCode(&model.TerminalJobFailure{Job: model.Job{Name: "batches/1", State: model.JobStateFailed}}))
	s.Equal(exitFailure, exitCode(errors.New("boom")))
	s.Equal(3, exitCode(cli.Exit("custom", 3)))
}

func (s *MainSuite) TestLoadRequestsFileResolvesRelativeAudio() {
	dir := s.T().TempDir()
	path := filepath.Join(dir, "requests.yaml")
	content := "requests:\n" +
		"  - key: call-1\n" +
		"    prompt: Translate this audio clip into English.\n" +
		"    audio: [call-1.mp3, /abs/extra.wav]\n" +
		"  - prompt: Just text\n"
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o644))

	requests, err := loadRequestsFile(path)
	s.Require().NoError(err)
	s.Require().Len(requests, 2)
	s.Equal("call-1", requests[0].Key)
	s.Equal([]string{filepath.Join(dir, "call-1.mp3"), "/abs/extra.wav"}, requests[0].AudioPaths)
	s.Equal("", requests[1].Key)
	s.Empty(requests[1].AudioPaths)
}

func (s *MainSuite) TestLoadRequestsFileRejectsEmptyList() {
	path := filepath.Join(s.T().TempDir(), "requests.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("requests: []\n"), 0o644))

	_, err := loadRequestsFile(path)
	var cfgErr *model.ConfigurationError
	s.Require().ErrorAs(err, &cfgErr)
	s.Equal("requests", cfgErr.Setting)
}

func (s *MainSuite) TestInspectRequests() {
	records, err := batch.BuildDocument([]batch.RequestItem{
		{Key: "a", Prompt: "first prompt", Resources: []model.Resource{{Name: "files/1", URI: "https://files/1", MIMEType: "audio/mpeg"}}},
		{Prompt: "second\nprompt"},
	})
	s.Require().NoError(err)
	data, err := batch.EncodeDocument(records)
	s.Require().NoError(err)

	var out bytes.Buffer
	s.Require().NoError(inspectRequests(&out, bytes.NewReader(data)))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	s.Require().Len(lines, 3)
	s.Equal("a\tfiles=https://files/1\tprompt=first prompt", lines[0])
	s.Equal("r2\tfiles=\tprompt=second prompt", lines[1])
	s.Equal("2 request(s)", lines[2])
}

func (s *MainSuite) TestDefaultOutputPath() {
	s.Equal(filepath.Join("out", "talk_transcript.txt"), defaultOutputPath("out", "/audio/talk.mp3", "_transcript.txt"))
}

func (s *MainSuite) TestPreviewTruncates() {
	s.Equal("a b", preview("  a\n b "))
	long := strings.Repeat("x", 70)
	s.Equal(strings.Repeat("x", 60)+"...", preview(long))
}

func (s *MainSuite) TestFirstNonEmpty() {
	s.Equal("b", firstNonEmpty("", "  ", "b", "c"))
	s.Equal("", firstNonEmpty())
}
