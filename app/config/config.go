// Package config assembles the bot configuration: the reusable core
// settings plus the funnel, referral and sender knobs specific to this
// bot. Values load from YAML first, then environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	coreconfig "dripbot/core/config"
	coredatabase "dripbot/core/database"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// FunnelConfig tunes onboarding pacing.
type FunnelConfig struct {
	IntroAudioDelaySeconds      int `yaml:"intro_audio_delay_seconds" envconfig:"FUNNEL_INTRO_AUDIO_DELAY_SECONDS"`
	MaterialsPromptDelaySeconds int `yaml:"materials_prompt_delay_seconds" envconfig:"FUNNEL_MATERIALS_PROMPT_DELAY_SECONDS"`
}

// ReferralConfig tunes referral code generation and the deep-link shape.
type ReferralConfig struct {
	CodeLength      int    `yaml:"code_length" envconfig:"REFERRAL_CODE_LENGTH"`
	MaxAttempts     int    `yaml:"max_attempts" envconfig:"REFERRAL_MAX_ATTEMPTS"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds" envconfig:"CACHE_TTL"`
	LinkBase        string `yaml:"link_base" envconfig:"REFERRAL_LINK_BASE"`
}

// SenderConfig sizes the asynchronous outbound dispatcher.
type SenderConfig struct {
	Workers   int `yaml:"workers" envconfig:"WORKER_COUNT"`
	QueueSize int `yaml:"queue_size" envconfig:"SENDER_QUEUE_SIZE"`
}

// Config is the full bot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Funnel   FunnelConfig        `yaml:"funnel"`
	Referral ReferralConfig      `yaml:"referral"`
	Sender   SenderConfig        `yaml:"sender"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// Load reads configuration from a YAML file, applies environment
// overrides and fills in defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if err := normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func normalize(cfg *Config) error {
	if strings.TrimSpace(cfg.Database.Path) == "" {
		cfg.Database.Path = "data/database.db"
	}

	if cfg.Funnel.IntroAudioDelaySeconds < 0 {
		return fmt.Errorf("funnel.intro_audio_delay_seconds must be >= 0")
	}
	if cfg.Funnel.IntroAudioDelaySeconds == 0 {
		cfg.Funnel.IntroAudioDelaySeconds = 4
	}
	if cfg.Funnel.MaterialsPromptDelaySeconds < 0 {
		return fmt.Errorf("funnel.materials_prompt_delay_seconds must be >= 0")
	}
	if cfg.Funnel.MaterialsPromptDelaySeconds == 0 {
		cfg.Funnel.MaterialsPromptDelaySeconds = 2
	}

	if cfg.Referral.CodeLength == 0 {
		cfg.Referral.CodeLength = 6
	}
	if cfg.Referral.CodeLength < 1 || cfg.Referral.CodeLength > 32 {
		return fmt.Errorf("referral.code_length must be between 1 and 32")
	}
	if cfg.Referral.LinkBase == "" {
		return fmt.Errorf("referral.link_base is required")
	}

	return nil
}
