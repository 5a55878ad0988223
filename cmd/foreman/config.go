package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbaxter-dev/foreman/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify Foreman configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/foreman/config.yaml
Project-specific overrides can be placed in .foreman.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("anthropic.api_key: %s\n", config.MaskAPIKey(cfg.Anthropic.APIKey))
	fmt.Printf("anthropic.model: %s\n", orUnset(cfg.Anthropic.Model))
	fmt.Printf("anthropic.use_aws_bedrock: %t\n", cfg.Anthropic.UseAWSBedrock)
	fmt.Printf("defaults.budget_cap: %.2f\n", cfg.Defaults.BudgetCap)
	fmt.Printf("defaults.urgency: %s\n", cfg.Defaults.Urgency)
	fmt.Printf("pool.roster: %s\n", strings.Join(cfg.Pool.Roster, ", "))
	fmt.Printf("pool.work_timeout: %s\n", cfg.Pool.WorkTimeout)
	fmt.Printf("phases.max_audits_per_stage: %d\n", cfg.Phases.MaxAuditsPerStage)
	fmt.Printf("phases.round_estimate: %.2f\n", cfg.Phases.RoundEstimate)
	fmt.Printf("review.auto_approve_risk_max: %.1f\n", cfg.Review.AutoApproveRiskMax)
	fmt.Printf("review.critical_risk_min: %.1f\n", cfg.Review.CriticalRiskMin)
	fmt.Printf("review.max_duration: %s\n", cfg.Review.MaxDuration)
	fmt.Printf("strategy.overrides_file: %s\n", orUnset(cfg.Strategy.OverridesFile))
	fmt.Printf("strategy.use_model_scorer: %t\n", cfg.Strategy.UseModelScorer)
}

func orUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return orUnset(cfg.Anthropic.Model), nil
	case "anthropic.use_aws_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseAWSBedrock), nil
	case "defaults.budget_cap":
		return strconv.FormatFloat(cfg.Defaults.BudgetCap, 'f', 2, 64), nil
	case "defaults.urgency":
		return cfg.Defaults.Urgency, nil
	case "pool.roster":
		return strings.Join(cfg.Pool.Roster, ","), nil
	case "pool.work_timeout":
		return cfg.Pool.WorkTimeout.String(), nil
	case "phases.max_audits_per_stage":
		return strconv.Itoa(cfg.Phases.MaxAuditsPerStage), nil
	case "phases.round_estimate":
		return strconv.FormatFloat(cfg.Phases.RoundEstimate, 'f', 2, 64), nil
	case "review.auto_approve_risk_max":
		return strconv.FormatFloat(cfg.Review.AutoApproveRiskMax, 'f', 1, 64), nil
	case "review.critical_risk_min":
		return strconv.FormatFloat(cfg.Review.CriticalRiskMin, 'f', 1, 64), nil
	case "review.max_duration":
		return cfg.Review.MaxDuration.String(), nil
	case "strategy.overrides_file":
		return orUnset(cfg.Strategy.OverridesFile), nil
	case "strategy.use_model_scorer":
		return strconv.FormatBool(cfg.Strategy.UseModelScorer), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.use_aws_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for use_aws_bedrock: %w", err)
		}
		cfg.Anthropic.UseAWSBedrock = b
	case "defaults.budget_cap":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for budget_cap: %w", err)
		}
		cfg.Defaults.BudgetCap = f
	case "defaults.urgency":
		cfg.Defaults.Urgency = value
	case "pool.roster":
		cfg.Pool.Roster = strings.Split(value, ",")
		for i := range cfg.Pool.Roster {
			cfg.Pool.Roster[i] = strings.TrimSpace(cfg.Pool.Roster[i])
		}
	case "pool.work_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for work_timeout: %w", err)
		}
		cfg.Pool.WorkTimeout = d
	case "phases.max_audits_per_stage":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_audits_per_stage: %w", err)
		}
		cfg.Phases.MaxAuditsPerStage = n
	case "phases.round_estimate":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for round_estimate: %w", err)
		}
		cfg.Phases.RoundEstimate = f
	case "review.auto_approve_risk_max":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for auto_approve_risk_max: %w", err)
		}
		cfg.Review.AutoApproveRiskMax = f
	case "review.critical_risk_min":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for critical_risk_min: %w", err)
		}
		cfg.Review.CriticalRiskMin = f
	case "review.max_duration":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for max_duration: %w", err)
		}
		cfg.Review.MaxDuration = d
	case "strategy.overrides_file":
		cfg.Strategy.OverridesFile = value
	case "strategy.use_model_scorer":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for use_model_scorer: %w", err)
		}
		cfg.Strategy.UseModelScorer = b
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
