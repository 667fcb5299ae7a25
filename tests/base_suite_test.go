package tests

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const audioFixtureEnv = "POLYGLOT_TEST_AUDIO"

type ExternalDependenciesSuite struct {
	suite.Suite
	settingsFile string
}

func (s *ExternalDependenciesSuite) SetupSuite() {
	settingsFromEnv := strings.TrimSpace(os.Getenv("SETTINGS_FILE"))
	settingsFile := settingsFromEnv
	if settingsFile == "" {
		homeDir, err := os.UserHomeDir()
		require.NoError(s.T(), err)
		settingsFile = filepath.Join(homeDir, ".env")
	}

	s.settingsFile = settingsFile

	_, err := os.Stat(settingsFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && settingsFromEnv == "" {
			// If defaulting to $HOME/.env and it doesn't exist, continue.
			return
		}
		require.NoError(s.T(), err)
		return
	}

	err = godotenv.Overload(settingsFile)
	require.NoError(s.T(), err)
}

func (s *ExternalDependenciesSuite) SettingsFile() string {
	return s.settingsFile
}

// requireEnv returns the trimmed variable or skips the suite when it is unset.
func (s *ExternalDependenciesSuite) requireEnv(key string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		s.T().Skipf("%s is not set; skipping external dependency integration test", key)
	}
	return value
}

// audioFixture is a short Hindi/Gujarati .wav or .mp3 clip named by $POLYGLOT_TEST_AUDIO.
func (s *ExternalDependenciesSuite) audioFixture() string {
	path := s.requireEnv(audioFixtureEnv)
	if _, err := os.Stat(path); err != nil {
		s.T().Skipf("%s is not accessible (%v); skipping audio integration test", path, err)
	}
	return path
}
