package main

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	minContentChars = 1
	minAttempts     = 1
)

// ConfigOverrides allows overriding embedded defaults with file paths
type ConfigOverrides struct {
	SettingsPath *string
	PromptPath   *string
	TemplatePath *string
}

//go:embed config/settings.yaml
var defaultSettings []byte

//go:embed config/extract-prompt.md
var defaultPrompt string

//go:embed config/export-block.tmpl
var defaultTemplate string

// Settings represents the YAML configuration structure
type Settings struct {
	Server      ServerSettings  `yaml:"server"`
	Agent       AgentSettings   `yaml:"agent"`
	Fetcher     FetcherSettings `yaml:"fetcher"`
	Retry       RetrySettings   `yaml:"retry"`
	Spreadsheet ColumnSettings  `yaml:"spreadsheet"`
	Export      ExportSettings  `yaml:"export"`
	Log         LogSettings     `yaml:"log"`
}

type FetcherSettings struct {
	MinContentChars int `yaml:"min_content_chars"`
}

type ServerSettings struct {
	Addr        string `yaml:"addr"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

// AgentSettings configures the Gemini backend. ThinkingBudget 0 is fast mode.
type AgentSettings struct {
	Model          string        `yaml:"model"`
	ThinkingBudget int32         `yaml:"thinking_budget"`
	Timeout        time.Duration `yaml:"timeout"`
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"-"`
}

type RetrySettings struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

// ColumnSettings holds the exact header labels of the required columns
type ColumnSettings struct {
	Name string `yaml:"name_column"`
	URL  string `yaml:"url_column"`
}

type ExportSettings struct {
	Filename  string `yaml:"filename"`
	NameLabel string `yaml:"name_label"`
	URLLabel  string `yaml:"url_label"`
}

type LogSettings struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Config holds configuration and overrides
type Config struct {
	Settings  *Settings
	Overrides *ConfigOverrides
}

// NewConfig loads embedded defaults, the optional settings file, .env files
// and environment overrides, in that order.
func NewConfig(overrides *ConfigOverrides) (*Config, error) {
	if overrides == nil {
		overrides = &ConfigOverrides{}
	}

	settings, err := loadSettings(overrides.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	loadDotEnv()
	applyEnvOverrides(settings)
	enforceMinimums(settings)

	return &Config{
		Settings:  settings,
		Overrides: overrides,
	}, nil
}

// GetPrompt returns the extraction prompt template (from override file or embedded)
func (c *Config) GetPrompt() (string, error) {
	if c.Overrides != nil && c.Overrides.PromptPath != nil {
		content, err := os.ReadFile(*c.Overrides.PromptPath)
		if err != nil {
			return "", fmt.Errorf("reading prompt file: %w", err)
		}
		return string(content), nil
	}
	return defaultPrompt, nil
}

// GetTemplate returns the export block template (from override file or embedded)
func (c *Config) GetTemplate() (string, error) {
	if c.Overrides != nil && c.Overrides.TemplatePath != nil {
		content, err := os.ReadFile(*c.Overrides.TemplatePath)
		if err != nil {
			return "", fmt.Errorf("reading template file: %w", err)
		}
		return string(content), nil
	}
	return defaultTemplate, nil
}

// loadSettings parses the embedded defaults and layers the settings file on
// top. An explicit path must exist; the default path is optional.
func loadSettings(path *string) (*Settings, error) {
	var settings Settings
	if err := yaml.Unmarshal(defaultSettings, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse embedded settings: %w", err)
	}

	settingsPath := "settings.yaml"
	required := false
	if path != nil {
		settingsPath = *path
		required = true
	}

	data, err := os.ReadFile(settingsPath)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !required:
		return &settings, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read settings file %s: %w", settingsPath, err)
	}

	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings YAML: %w", err)
	}
	return &settings, nil
}

// loadDotEnv loads .env.local then .env. Existing variables are never overwritten.
func loadDotEnv() {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Printf("Warning: failed to load %s: %v", name, err)
		}
	}
}

func applyEnvOverrides(s *Settings) {
	if v := firstEnv("API_KEY", "GEMINI_API_KEY"); v != "" {
		s.Agent.APIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		s.Log.Level = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		s.Server.Addr = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func enforceMinimums(s *Settings) {
	if s.Retry.Attempts < minAttempts {
		log.Printf("Warning: retry.attempts is %d, defaulting to %d (minimum)", s.Retry.Attempts, minAttempts)
		s.Retry.Attempts = minAttempts
	}
	if s.Retry.Delay < 0 {
		s.Retry.Delay = 0
	}
	if s.Fetcher.MinContentChars < minContentChars {
		log.Printf("Warning: fetcher.min_content_chars is %d, defaulting to %d (minimum)", s.Fetcher.MinContentChars, minContentChars)
		s.Fetcher.MinContentChars = minContentChars
	}
	if s.Server.MaxUploadMB <= 0 {
		s.Server.MaxUploadMB = 10
	}
}
