package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"
)

type LoggerSuite struct {
	suite.Suite
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerSuite))
}

func (s *LoggerSuite) TearDownTest() {
	SetLoggerFactory(nil)
	s.Require().NoError(Configure("info", "text", nil))
}

func (s *LoggerSuite) TestConfigureJSONIncludesContextFields() {
	var buf bytes.Buffer
	s.Require().NoError(Configure("debug", "json", &buf))

	ctx := WithFields(context.Background(), Fields{"run_id": "abc"})
	ctx = WithFields(ctx, Fields{"job": "batches/1"})
	NewLogger(ctx).Debugf("polling %s", "now")

	var entry map[string]any
	s.Require().NoError(json.Unmarshal(buf.Bytes(), &entry))
	s.Equal("polling now", entry["msg"])
	s.Equal("abc", entry["run_id"])
	s.Equal("batches/1", entry["job"])
}

func (s *LoggerSuite) TestConfigureRejectsUnknownLevel() {
	s.Error(Configure("loud", "text", nil))
}

func (s *LoggerSuite) TestLevelFiltersDebug() {
	var buf bytes.Buffer
	s.Require().NoError(Configure("warn", "text", &buf))

	NewLogger(context.Background()).Infof("hidden")
	s.Empty(buf.String())
}

type recordingFactory struct {
	calls int
}

func (f *recordingFactory) CreateLogger(ctx context.Context) Logger {
	f.calls++
	return newLogrusLogger(ctx)
}

func (s *LoggerSuite) TestFactoryOverridesDefault() {
	factory := &recordingFactory{}
	SetLoggerFactory(factory)

	NewLogger(context.Background())
	s.Equal(1, factory.calls)
	s.Same(factory, GetLoggerFactory())
}
