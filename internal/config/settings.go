// Package config assembles the process-wide settings object. Settings are
// loaded once at startup and passed by reference into every component that
// needs them; nothing reads the environment ambiently after Load returns.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings is the immutable runtime configuration.
type Settings struct {
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	Backend      string `mapstructure:"backend"`
	NullSentinel string `mapstructure:"null_sentinel"`

	OpenAI  OpenAISettings  `mapstructure:"openai"`
	Retry   RetrySettings   `mapstructure:"retry"`
	Render  RenderSettings  `mapstructure:"render"`
	Pages   PagesSettings   `mapstructure:"pages"`
	Cache   CacheSettings   `mapstructure:"cache"`
	Journal JournalSettings `mapstructure:"journal"`
	Match   MatchSettings   `mapstructure:"match"`
}

// OpenAISettings configures the OpenAI-compatible multimodal backend.
type OpenAISettings struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
}

// RetrySettings bounds backend retry behavior.
type RetrySettings struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
}

// RenderSettings configures PDF rasterization.
type RenderSettings struct {
	Pdftoppm    string `mapstructure:"pdftoppm"`
	DPI         int    `mapstructure:"dpi"`
	ImageFormat string `mapstructure:"image_format"`
}

// PagesSettings configures blank-page detection.
type PagesSettings struct {
	InkRatioThreshold float64 `mapstructure:"ink_ratio_threshold"`
	NearWhiteLevel    int     `mapstructure:"near_white_level"`
	DropBlankPages    bool    `mapstructure:"drop_blank_pages"`
}

// CacheSettings configures the filesystem schema cache.
type CacheSettings struct {
	Dir string `mapstructure:"dir"`
}

// JournalSettings configures the sqlite run journal.
type JournalSettings struct {
	Path string `mapstructure:"path"`
}

// MatchSettings configures heuristic schema matching.
type MatchSettings struct {
	Threshold float64 `mapstructure:"threshold"`
}

// Load reads settings from an optional config file plus EXTRACTFORMS_*
// environment variables, with code-registered defaults.
func Load(cfgFile string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("EXTRACTFORMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("extractforms")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/extractforms")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", true)
	v.SetDefault("backend", "multimodal")
	v.SetDefault("null_sentinel", "NULL")

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	// Registered empty so EXTRACTFORMS_OPENAI_API_KEY is visible to
	// Unmarshal; AutomaticEnv only surfaces keys viper already knows.
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.timeout", 60*time.Second)
	v.SetDefault("openai.concurrency", 4)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.backoff_base", 500*time.Millisecond)

	v.SetDefault("render.pdftoppm", "pdftoppm")
	v.SetDefault("render.dpi", 200)
	v.SetDefault("render.image_format", "png")

	v.SetDefault("pages.ink_ratio_threshold", 0.003)
	v.SetDefault("pages.near_white_level", 245)
	v.SetDefault("pages.drop_blank_pages", true)

	v.SetDefault("cache.dir", ".extractforms/schemas")
	v.SetDefault("journal.path", ".extractforms/journal.db")

	v.SetDefault("match.threshold", 0.5)
}

// Validate rejects settings no component can run with.
func (s *Settings) Validate() error {
	switch s.Backend {
	case "multimodal", "ocr":
	default:
		return fmt.Errorf("backend must be multimodal or ocr, got %q", s.Backend)
	}
	if s.NullSentinel == "" {
		return errors.New("null_sentinel must not be empty")
	}
	if s.OpenAI.Concurrency < 1 {
		return errors.New("openai.concurrency must be >= 1")
	}
	if s.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be >= 1")
	}
	if s.Pages.NearWhiteLevel < 0 || s.Pages.NearWhiteLevel > 255 {
		return errors.New("pages.near_white_level must be in 0..255")
	}
	if s.Pages.InkRatioThreshold < 0 {
		return errors.New("pages.ink_ratio_threshold must be >= 0")
	}
	if s.Render.DPI < 36 {
		return errors.New("render.dpi must be >= 36")
	}
	if s.Match.Threshold < 0 || s.Match.Threshold > 1 {
		return errors.New("match.threshold must be in 0..1")
	}
	return nil
}
