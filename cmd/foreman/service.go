package main

import (
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/tbaxter-dev/foreman/internal/config"
	"github.com/tbaxter-dev/foreman/internal/llm"
	"github.com/tbaxter-dev/foreman/internal/phase"
	"github.com/tbaxter-dev/foreman/internal/pool"
	"github.com/tbaxter-dev/foreman/internal/review"
	"github.com/tbaxter-dev/foreman/internal/router"
	"github.com/tbaxter-dev/foreman/internal/state"
	"github.com/tbaxter-dev/foreman/internal/strategy"
)

// services bundles everything a command needs to execute tasks.
type services struct {
	cfg     *config.Config
	db      *state.DB
	pool    *pool.Pool
	service *router.Service
}

func (s *services) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

// buildServices wires the execution stack from configuration: the Anthropic
// client, worker pool, review gate, strategy decider, state store, and the
// task router on top of them all.
func buildServices(cfg *config.Config) (*services, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	apiKey, err := config.GetAPIKey(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w\n\nSet ANTHROPIC_API_KEY or run 'foreman config anthropic.api_key <key>'", err)
	}

	client, err := llm.NewClient(llm.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        apiKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return nil, fmt.Errorf("create model client: %w", err)
	}

	db, err := state.Open(state.ProjectDBPath(cwd))
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate state database: %w", err)
	}

	p, err := pool.New(pool.Config{
		Roster:         cfg.Roster(),
		Factory:        llm.NewFactory(client),
		DefaultTimeout: cfg.Pool.WorkTimeout,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	gate := review.New(review.Config{
		AutoApproveRiskMax: cfg.Review.AutoApproveRiskMax,
		CriticalRiskMin:    cfg.Review.CriticalRiskMin,
		MaxDuration:        cfg.Review.MaxDuration,
	}, llm.NewCriteriaChecker(client))

	overrides, err := loadOverrides(cfg)
	if err != nil {
		p.Close()
		db.Close()
		return nil, err
	}

	var scorer strategy.Scorer
	if cfg.Strategy.UseModelScorer {
		scorer = llm.NewScorer(client)
	}
	decider := strategy.NewDecider(scorer, overrides)

	var planner phase.Planner = llm.NewPlanner(client)

	svc, err := router.New(router.Config{
		Decider:           decider,
		Pool:              p,
		Gate:              gate,
		Planner:           planner,
		Store:             db,
		MaxAuditsPerStage: cfg.Phases.MaxAuditsPerStage,
		RoundEstimate:     cfg.Phases.RoundEstimate,
		WorkTimeout:       cfg.Pool.WorkTimeout,
		DefaultBudgetCap:  cfg.Defaults.BudgetCap,
	})
	if err != nil {
		p.Close()
		db.Close()
		return nil, fmt.Errorf("create task router: %w", err)
	}

	return &services{cfg: cfg, db: db, pool: p, service: svc}, nil
}

func loadOverrides(cfg *config.Config) (*strategy.OverrideTable, error) {
	if cfg.Strategy.OverridesFile == "" {
		return nil, nil
	}
	table, err := strategy.LoadOverrides(cfg.Strategy.OverridesFile)
	if err != nil {
		return nil, fmt.Errorf("load override rules: %w", err)
	}
	return table, nil
}
