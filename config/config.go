// Package config loads the client configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath = "MEDIASSIST_CONFIG"
	DefaultPath   = "mediassist.yaml"
)

// Config is the root configuration loaded from YAML.
type Config struct {
	Backend       BackendConfig       `yaml:"backend"`
	Analysis      AnalysisConfig      `yaml:"analysis"`
	Recording     RecordingConfig     `yaml:"recording"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	History       HistoryConfig       `yaml:"history"`
	Compose       ComposeConfig       `yaml:"compose"`
}

// BackendConfig points at the MediAssist REST backend.
type BackendConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	UserID  string        `yaml:"userId"`
	Timeout time.Duration `yaml:"timeout"`
}

// AnalysisConfig tunes deep-analysis status polling.
type AnalysisConfig struct {
	PollInterval time.Duration `yaml:"pollInterval"`
	MaxDuration  time.Duration `yaml:"maxDuration"` // 0 polls until a terminal status
	MaxFailures  int           `yaml:"maxFailures"` // consecutive poll errors tolerated; 0 = unlimited
}

type RecordingConfig struct {
	Device       string        `yaml:"device"` // capture device name; empty = system default
	FlushTimeout time.Duration `yaml:"flushTimeout"`
}

// TranscriptionConfig selects the speech-to-text provider.
type TranscriptionConfig struct {
	Provider string        `yaml:"provider"` // groq | openai | fake
	APIKey   string        `yaml:"apiKey"`
	Model    string        `yaml:"model"`
	Language string        `yaml:"language"`
	BaseURL  string        `yaml:"baseUrl"`
	Timeout  time.Duration `yaml:"timeout"`
	FakeText string        `yaml:"fakeText"`
}

type HistoryConfig struct {
	Path     string `yaml:"path"` // empty = <logdir>/history.db
	Disabled bool   `yaml:"disabled"`
}

type ComposeConfig struct {
	Clipboard bool `yaml:"clipboard"` // also copy dictated compose text to the clipboard
}

// Load reads YAML config from path, expands environment variables, and validates it.
// An empty path tries MEDIASSIST_CONFIG, then ./mediassist.yaml; when neither
// exists the defaults are used.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		if env := os.Getenv(EnvConfigPath); env != "" {
			path, explicit = env, true
		} else {
			path = DefaultPath
		}
	}

	var cfg Config
	data, err := os.ReadFile(filepath.Clean(path))
	switch {
	case err == nil:
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = "http://localhost:5000"
	}
	cfg.Backend.BaseURL = strings.TrimRight(cfg.Backend.BaseURL, "/")
	if cfg.Backend.UserID == "" {
		cfg.Backend.UserID = "user123"
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 30 * time.Second
	}

	if cfg.Analysis.PollInterval == 0 {
		cfg.Analysis.PollInterval = 2 * time.Second
	}

	if cfg.Recording.FlushTimeout == 0 {
		cfg.Recording.FlushTimeout = 2 * time.Second
	}

	t := &cfg.Transcription
	if t.Provider == "" {
		switch {
		case os.Getenv("GROQ_API_KEY") != "":
			t.Provider = "groq"
		case os.Getenv("OPENAI_API_KEY") != "":
			t.Provider = "openai"
		}
	}
	t.Provider = strings.ToLower(strings.TrimSpace(t.Provider))
	if t.APIKey == "" {
		switch t.Provider {
		case "groq":
			t.APIKey = os.Getenv("GROQ_API_KEY")
		case "openai":
			t.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if t.Language == "" {
		t.Language = "en"
	}
	if t.Timeout == 0 {
		t.Timeout = 60 * time.Second
	}
}

func validate(cfg *Config) error {
	u, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.baseUrl %q is not an absolute URL", cfg.Backend.BaseURL)
	}
	if cfg.Analysis.PollInterval < 0 {
		return errors.New("analysis.pollInterval must be positive")
	}
	if cfg.Analysis.MaxDuration < 0 {
		return errors.New("analysis.maxDuration must not be negative")
	}
	if cfg.Analysis.MaxFailures < 0 {
		return errors.New("analysis.maxFailures must not be negative")
	}
	if cfg.Recording.FlushTimeout < 0 {
		return errors.New("recording.flushTimeout must not be negative")
	}

	switch cfg.Transcription.Provider {
	case "":
		return errors.New("no transcription provider: set transcription.provider, GROQ_API_KEY or OPENAI_API_KEY")
	case "groq", "openai":
		if strings.TrimSpace(cfg.Transcription.APIKey) == "" {
			return fmt.Errorf("transcription.apiKey is required for provider %q", cfg.Transcription.Provider)
		}
	case "fake":
	default:
		return fmt.Errorf("unknown transcription.provider %q (use groq, openai or fake)", cfg.Transcription.Provider)
	}
	return nil
}

// HistoryPath resolves the sqlite ledger location, defaulting to logDir.
func (c *Config) HistoryPath(logDir string) string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(logDir, "history.db")
}
