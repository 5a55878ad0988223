// Package config handles configuration loading and management for Foreman.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/tbaxter-dev/foreman/pkg/models"
)

// Config holds all configuration for Foreman.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Defaults  DefaultsConfig  `mapstructure:"defaults"`
	Pool      PoolConfig      `mapstructure:"pool"`
	Phases    PhasesConfig    `mapstructure:"phases"`
	Review    ReviewConfig    `mapstructure:"review"`
	Strategy  StrategyConfig  `mapstructure:"strategy"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey        string `mapstructure:"api_key"`
	Model         string `mapstructure:"model"`
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// DefaultsConfig holds default values applied to submitted tasks.
type DefaultsConfig struct {
	// BudgetCap is the per-task spend ceiling in dollars when a task
	// does not name its own.
	BudgetCap float64 `mapstructure:"budget_cap"`
	// Urgency is the urgency assumed when a task does not name one.
	Urgency string `mapstructure:"urgency"`
}

// PoolConfig holds worker pool settings.
type PoolConfig struct {
	// Roster lists one specialty per worker slot.
	Roster []string `mapstructure:"roster"`
	// WorkTimeout is the per-assignment execution timeout.
	WorkTimeout time.Duration `mapstructure:"work_timeout"`
}

// PhasesConfig holds full-loop orchestration settings.
type PhasesConfig struct {
	// MaxAuditsPerStage bounds execute-review rounds within one phase.
	MaxAuditsPerStage int `mapstructure:"max_audits_per_stage"`
	// RoundEstimate is the projected dollar cost charged before each round.
	RoundEstimate float64 `mapstructure:"round_estimate"`
}

// ReviewConfig holds review gate thresholds.
type ReviewConfig struct {
	// AutoApproveRiskMax is the highest risk score the gate approves
	// without escalating.
	AutoApproveRiskMax float64 `mapstructure:"auto_approve_risk_max"`
	// CriticalRiskMin is the risk score at or above which the gate
	// always escalates.
	CriticalRiskMin float64 `mapstructure:"critical_risk_min"`
	// MaxDuration is the execution time beyond which the gate flags
	// the attempt.
	MaxDuration time.Duration `mapstructure:"max_duration"`
}

// StrategyConfig holds strategy decider settings.
type StrategyConfig struct {
	// OverridesFile points at a YAML override rule table. Empty means
	// built-in rules only.
	OverridesFile string `mapstructure:"overrides_file"`
	// UseModelScorer routes complexity/risk scoring through the LLM
	// instead of the keyword heuristic.
	UseModelScorer bool `mapstructure:"use_model_scorer"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (FOREMAN_*, ANTHROPIC_API_KEY)
// 2. Project config (.foreman.yaml in current directory or parent)
// 3. User config (~/.config/foreman/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("FOREMAN")
	v.AutomaticEnv()

	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.use_aws_bedrock", "CLAUDE_CODE_USE_BEDROCK")
	v.BindEnv("anthropic.aws_region", "AWS_REGION")
	v.BindEnv("anthropic.aws_profile", "AWS_PROFILE")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that configured values are usable.
func (c *Config) Validate() error {
	if c.Defaults.BudgetCap <= 0 {
		return fmt.Errorf("defaults.budget_cap must be positive, got %v", c.Defaults.BudgetCap)
	}
	if u := models.Urgency(c.Defaults.Urgency); !u.Valid() {
		return fmt.Errorf("defaults.urgency %q is not a known urgency", c.Defaults.Urgency)
	}
	if len(c.Pool.Roster) == 0 {
		return fmt.Errorf("pool.roster must name at least one worker")
	}
	for _, s := range c.Pool.Roster {
		if !models.Specialty(s).Valid() {
			return fmt.Errorf("pool.roster entry %q is not a known specialty", s)
		}
	}
	if c.Phases.MaxAuditsPerStage < 1 {
		return fmt.Errorf("phases.max_audits_per_stage must be at least 1, got %d", c.Phases.MaxAuditsPerStage)
	}
	if c.Phases.RoundEstimate <= 0 {
		return fmt.Errorf("phases.round_estimate must be positive, got %v", c.Phases.RoundEstimate)
	}
	if c.Review.CriticalRiskMin < c.Review.AutoApproveRiskMax {
		return fmt.Errorf("review.critical_risk_min (%v) must not be below review.auto_approve_risk_max (%v)",
			c.Review.CriticalRiskMin, c.Review.AutoApproveRiskMax)
	}
	return nil
}

// Roster converts the configured roster strings into specialties.
func (c *Config) Roster() []models.Specialty {
	roster := make([]models.Specialty, len(c.Pool.Roster))
	for i, s := range c.Pool.Roster {
		roster[i] = models.Specialty(s)
	}
	return roster
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_aws_bedrock", cfg.Anthropic.UseAWSBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("defaults.budget_cap", cfg.Defaults.BudgetCap)
	v.Set("defaults.urgency", cfg.Defaults.Urgency)
	v.Set("pool.roster", cfg.Pool.Roster)
	v.Set("pool.work_timeout", cfg.Pool.WorkTimeout.String())
	v.Set("phases.max_audits_per_stage", cfg.Phases.MaxAuditsPerStage)
	v.Set("phases.round_estimate", cfg.Phases.RoundEstimate)
	v.Set("review.auto_approve_risk_max", cfg.Review.AutoApproveRiskMax)
	v.Set("review.critical_risk_min", cfg.Review.CriticalRiskMin)
	v.Set("review.max_duration", cfg.Review.MaxDuration.String())
	v.Set("strategy.overrides_file", cfg.Strategy.OverridesFile)
	v.Set("strategy.use_model_scorer", cfg.Strategy.UseModelScorer)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.use_aws_bedrock", false)

	v.SetDefault("defaults.budget_cap", 25.0)
	v.SetDefault("defaults.urgency", string(models.UrgencyNormal))

	v.SetDefault("pool.roster", []string{
		string(models.SpecialtyGeneral),
		string(models.SpecialtyGeneral),
		string(models.SpecialtyResearch),
		string(models.SpecialtyEngineering),
		string(models.SpecialtyWriting),
	})
	v.SetDefault("pool.work_timeout", "10m")

	v.SetDefault("phases.max_audits_per_stage", 3)
	v.SetDefault("phases.round_estimate", 1.0)

	v.SetDefault("review.auto_approve_risk_max", 7.0)
	v.SetDefault("review.critical_risk_min", 9.0)
	v.SetDefault("review.max_duration", "15m")

	v.SetDefault("strategy.overrides_file", "")
	v.SetDefault("strategy.use_model_scorer", true)
}

// getUserConfigDir returns the XDG config directory for Foreman.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "foreman")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "foreman")
	}
	return filepath.Join(home, ".config", "foreman")
}

// findProjectConfig searches for .foreman.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".foreman.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			BudgetCap: 25.0,
			Urgency:   string(models.UrgencyNormal),
		},
		Pool: PoolConfig{
			Roster: []string{
				string(models.SpecialtyGeneral),
				string(models.SpecialtyGeneral),
				string(models.SpecialtyResearch),
				string(models.SpecialtyEngineering),
				string(models.SpecialtyWriting),
			},
			WorkTimeout: 10 * time.Minute,
		},
		Phases: PhasesConfig{
			MaxAuditsPerStage: 3,
			RoundEstimate:     1.0,
		},
		Review: ReviewConfig{
			AutoApproveRiskMax: 7.0,
			CriticalRiskMin:    9.0,
			MaxDuration:        15 * time.Minute,
		},
		Strategy: StrategyConfig{
			UseModelScorer: true,
		},
	}
}
