package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tbaxter-dev/foreman/internal/config"
	"github.com/tbaxter-dev/foreman/internal/router"
	"github.com/tbaxter-dev/foreman/pkg/models"
)

var (
	runBudget  float64
	runUrgency string
	runMode    string
)

var runCmd = &cobra.Command{
	Use:   "run <task description>",
	Short: "Route and execute a task",
	Long: `Submit a task for routing and execution.

The task is scored for complexity and risk, assigned an execution mode,
and executed. Low-stakes tasks run as a single worker call; complex ones
get planned into phases, executed by specialty workers, and reviewed
after every round.

Mode override (--mode):
  - direct:         single worker call, no review
  - reviewed:       single worker call plus one review pass
  - full_loop:      plan, partition, execute, audit
  - human_approval: park the task until a human approves it

Tasks that look destructive or touch production are parked for approval
regardless of their scores. Approve or reject them from another terminal
with 'foreman approve <task-id>' or 'foreman reject <task-id>'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().Float64Var(&runBudget, "budget", 0, "Per-task spend ceiling in dollars (0 uses the configured default)")
	runCmd.Flags().StringVar(&runUrgency, "urgency", "", "Task urgency: normal or immediate")
	runCmd.Flags().StringVar(&runMode, "mode", "", "Force an execution mode instead of routing")
}

func runTask(cmd *cobra.Command, args []string) error {
	description := strings.Join(args, " ")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	svcs, err := buildServices(cfg)
	if err != nil {
		return err
	}
	defer svcs.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	watcher, err := router.NewApprovalWatcher(svcs.service, cwd)
	if err != nil {
		return fmt.Errorf("start approval watcher: %w", err)
	}
	defer watcher.Close()
	watcher.Start(ctx)

	go printEvents(svcs.service)
	go printApprovalNotices(svcs.service)

	urgency := cfg.Defaults.Urgency
	if runUrgency != "" {
		urgency = runUrgency
	}

	rec, err := svcs.service.Run(ctx, models.Task{
		Description: description,
		Urgency:     models.Urgency(urgency),
		BudgetCap:   runBudget,
		Override:    models.ExecutionMode(runMode),
	})
	if err != nil {
		if ctx.Err() != nil {
			fmt.Println("\nInterrupted. The task stays queued; re-run 'foreman status' to inspect it.")
			return nil
		}
		return err
	}

	printRecord(rec)
	if rec.FinalStatus == models.TaskStatusFailed {
		os.Exit(1)
	}
	return nil
}

func printEvents(svc *router.Service) {
	for ev := range svc.Events() {
		label := string(ev.Status)
		switch ev.Status {
		case models.TaskStatusCompleted:
			label = color.GreenString(label)
		case models.TaskStatusFailed:
			label = color.RedString(label)
		case models.TaskStatusRequiresApproval:
			label = color.YellowString(label)
		default:
			label = color.CyanString(label)
		}

		line := fmt.Sprintf("[%s] %s", ev.TaskID, label)
		if ev.Mode != "" {
			line += fmt.Sprintf(" mode=%s", ev.Mode)
		}
		if ev.CurrentPhase != "" {
			line += fmt.Sprintf(" phase=%s", ev.CurrentPhase)
			if ev.RoundIndex > 0 {
				line += fmt.Sprintf(" round=%d", ev.RoundIndex)
			}
		}
		if ev.CostSoFar > 0 {
			line += fmt.Sprintf(" spent=$%.2f", ev.CostSoFar)
		}
		if ev.Detail != "" {
			line += " " + ev.Detail
		}
		fmt.Println(line)
	}
}

func printApprovalNotices(svc *router.Service) {
	for notice := range svc.ApprovalNotices() {
		fmt.Println()
		color.Yellow("Task %s needs human approval (risk %.1f):", notice.TaskID, notice.RiskScore)
		fmt.Printf("  %s\n\n", notice.PlanSummary)
		fmt.Printf("  foreman approve %s    # execute under review\n", notice.TaskID)
		fmt.Printf("  foreman reject %s     # abandon the task\n\n", notice.TaskID)
	}
}

func printRecord(rec models.RunRecord) {
	fmt.Println()
	if rec.FinalStatus == models.TaskStatusCompleted {
		color.Green("✓ Task %s completed ($%.2f spent)", rec.TaskID, rec.TotalCost)
	} else {
		color.Red("✗ Task %s failed: %s ($%.2f spent)", rec.TaskID, rec.FailureReason, rec.TotalCost)
	}
	if rec.EscalationCount > 0 {
		fmt.Printf("  escalations: %d\n", rec.EscalationCount)
	}
	for _, ph := range rec.PhaseHistory {
		mark := color.GreenString("✓")
		if ph.Status != models.PhasePassed {
			mark = color.RedString("✗")
		}
		fmt.Printf("  %s %s (%d round(s))\n", mark, ph.Name, ph.Rounds)
	}
	for _, a := range rec.Artifacts {
		fmt.Printf("  artifact: %s\n", a.Name)
	}
}
