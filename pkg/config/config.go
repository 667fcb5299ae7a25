package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/utils"
)

const (
	EnvGeminiAPIKey  = "GEMINI_API_KEY"
	EnvGeminiBaseURL = "GEMINI_BASE_URL"
	EnvSarvamAPIKey  = "SARVAM_API_KEY"
	EnvSarvamBaseURL = "SARVAM_BASE_URL"
	EnvConfigFile    = "POLYGLOT_CONFIG"
	EnvLogLevel      = "POLYGLOT_LOG_LEVEL"
	EnvOutputDir     = "POLYGLOT_OUTPUT_DIR"
	EnvMetricsFile   = "POLYGLOT_METRICS_FILE"
)

// Config is built once at startup and handed to each component.
type Config struct {
	Gemini  GeminiConfig  `yaml:"gemini"`
	Sarvam  SarvamConfig  `yaml:"sarvam"`
	Audio   AudioConfig   `yaml:"audio"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
}

type GeminiConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	Model        string        `yaml:"model"`
	BatchModel   string        `yaml:"batch_model"`
	PollInterval time.Duration `yaml:"poll_interval"`
	// PollTimeout of zero waits until the job reaches a terminal state.
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

type SarvamConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	STTModel       string        `yaml:"stt_model"`
	TranslateModel string        `yaml:"translate_model"`
	LanguageCode   string        `yaml:"language_code"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	PollTimeout    time.Duration `yaml:"poll_timeout"`
	UploadTimeout  time.Duration `yaml:"upload_timeout"`
}

type AudioConfig struct {
	FFmpegPath    string        `yaml:"ffmpeg_path"`
	ChunkDuration time.Duration `yaml:"chunk_duration"`
	ChunkDir      string        `yaml:"chunk_dir"`
}

type OutputConfig struct {
	Dir         string `yaml:"dir"`
	MetricsFile string `yaml:"metrics_file"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Gemini: GeminiConfig{
			Model:        "gemini-2.5-pro",
			BatchModel:   "gemini-2.5-flash",
			PollInterval: 20 * time.Second,
		},
		Sarvam: SarvamConfig{
			BaseURL:        "https://api.sarvam.ai",
			STTModel:       "saarika:v2.5",
			TranslateModel: "saaras:v2.5",
			PollInterval:   5 * time.Second,
			PollTimeout:    60 * time.Second,
			UploadTimeout:  120 * time.Second,
		},
		Audio: AudioConfig{
			FFmpegPath:    "ffmpeg",
			ChunkDuration: 29 * time.Second,
			ChunkDir:      "output/chunked",
		},
		Output: OutputConfig{
			Dir: "output",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

type LoadOptions struct {
	// EnvFile is loaded with godotenv when it exists. Defaults to ".env".
	EnvFile string
	// ConfigFile is an optional YAML file. Falls back to $POLYGLOT_CONFIG.
	ConfigFile string
}

// Load merges defaults, the YAML file, the env file and the process environment, in that order.
func Load(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := loadEnvFile(envFile, opts.EnvFile != ""); err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	cfg := Default()

	configFile := strings.TrimSpace(opts.ConfigFile)
	if configFile == "" {
		configFile = strings.TrimSpace(os.Getenv(EnvConfigFile))
	}
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, utils.WrapIfNotNil(fmt.Errorf("failed to read config file %s: %w", configFile, err))
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, utils.WrapIfNotNil(fmt.Errorf("failed to parse config file %s: %w", configFile, err))
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	return &cfg, nil
}

func loadEnvFile(path string, required bool) error {
	_, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

func (c *Config) applyEnv() error {
	setString(&c.Gemini.APIKey, EnvGeminiAPIKey)
	setString(&c.Gemini.BaseURL, EnvGeminiBaseURL)
	setString(&c.Sarvam.APIKey, EnvSarvamAPIKey)
	setString(&c.Sarvam.BaseURL, EnvSarvamBaseURL)
	setString(&c.Logging.Level, EnvLogLevel)
	setString(&c.Output.Dir, EnvOutputDir)
	setString(&c.Output.MetricsFile, EnvMetricsFile)

	if err := setDuration(&c.Gemini.PollInterval, "GEMINI_POLL_INTERVAL"); err != nil {
		return err
	}
	if err := setDuration(&c.Gemini.PollTimeout, "GEMINI_POLL_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&c.Sarvam.PollInterval, "SARVAM_POLL_INTERVAL"); err != nil {
		return err
	}
	return setDuration(&c.Sarvam.PollTimeout, "SARVAM_POLL_TIMEOUT")
}

func setString(dst *string, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*dst = value
	}
}

// setDuration accepts Go durations ("20s") or bare seconds ("20").
func setDuration(dst *time.Duration, key string) error {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		*dst = time.Duration(seconds) * time.Second
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return &model.ConfigurationError{Setting: key, Message: fmt.Sprintf("invalid duration %q", value)}
	}
	*dst = parsed
	return nil
}

// Validate checks settings that every command depends on. Vendor keys are checked
// by RequireGemini and RequireSarvam so a command only needs the vendor it uses.
func (c *Config) Validate() error {
	if c.Gemini.PollInterval <= 0 {
		return &model.ConfigurationError{Setting: "gemini.poll_interval", Message: "must be positive"}
	}
	if c.Gemini.PollTimeout < 0 {
		return &model.ConfigurationError{Setting: "gemini.poll_timeout", Message: "must not be negative"}
	}
	if c.Sarvam.PollInterval <= 0 {
		return &model.ConfigurationError{Setting: "sarvam.poll_interval", Message: "must be positive"}
	}
	if c.Sarvam.PollTimeout < 0 {
		return &model.ConfigurationError{Setting: "sarvam.poll_timeout", Message: "must not be negative"}
	}
	if c.Audio.ChunkDuration < time.Second {
		return &model.ConfigurationError{Setting: "audio.chunk_duration", Message: "must be at least 1s"}
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return &model.ConfigurationError{Setting: "output.dir"}
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "text", "json":
	default:
		return &model.ConfigurationError{Setting: "logging.format", Message: fmt.Sprintf("unsupported format %q", c.Logging.Format)}
	}
	return nil
}

func (c *Config) RequireGemini() error {
	if strings.TrimSpace(c.Gemini.APIKey) == "" {
		return &model.ConfigurationError{Setting: EnvGeminiAPIKey, Message: "not found in environment or .env file"}
	}
	return nil
}

func (c *Config) RequireSarvam() error {
	if strings.TrimSpace(c.Sarvam.APIKey) == "" {
		return &model.ConfigurationError{Setting: EnvSarvamAPIKey, Message: "not found in environment or .env file"}
	}
	return nil
}
