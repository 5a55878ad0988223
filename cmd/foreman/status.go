package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tbaxter-dev/foreman/internal/state"
	"github.com/tbaxter-dev/foreman/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show task state",
	Long: `Display the state of submitted tasks.

Without arguments, lists tasks waiting for approval and recent activity.
With a task ID, shows that task's status and run record.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	dbPath := state.ProjectDBPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No tasks yet. Run 'foreman run <task>' to start.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if len(args) == 1 {
		return showTask(db, args[0])
	}
	return showOverview(db)
}

func showTask(db *state.DB, taskID string) error {
	row, err := db.GetTask(taskID)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}
	if row == nil {
		return fmt.Errorf("no task with id %s", taskID)
	}

	fmt.Printf("Task %s: %s\n", row.Task.ID, colorStatus(row.Status))
	fmt.Printf("  %s\n", row.Task.Description)
	if row.Task.BudgetCap > 0 {
		fmt.Printf("  budget: $%.2f\n", row.Task.BudgetCap)
	}

	rec, err := db.GetRunRecord(taskID)
	if err != nil {
		return fmt.Errorf("get run record: %w", err)
	}
	if rec != nil {
		printRecord(*rec)
	}
	return nil
}

func showOverview(db *state.DB) error {
	pending, err := db.ListPendingApprovals()
	if err != nil {
		return fmt.Errorf("list pending approvals: %w", err)
	}
	if len(pending) > 0 {
		color.Yellow("Waiting for approval:")
		for _, p := range pending {
			fmt.Printf("  %s (risk %.1f, %s ago)\n", p.TaskID, p.RiskScore, formatDuration(time.Since(p.CreatedAt)))
			fmt.Printf("    %s\n", p.PlanSummary)
		}
		fmt.Println()
	}

	active := 0
	for _, status := range []models.TaskStatus{
		models.TaskStatusPending, models.TaskStatusRouting, models.TaskStatusExecuting,
	} {
		rows, err := db.ListTasksByStatus(status)
		if err != nil {
			return fmt.Errorf("list %s tasks: %w", status, err)
		}
		for _, row := range rows {
			if active == 0 {
				fmt.Println("Active:")
			}
			active++
			fmt.Printf("  %s: %s  %q\n", row.Task.ID, colorStatus(row.Status), truncate(row.Task.Description, 60))
		}
	}
	if active > 0 {
		fmt.Println()
	}

	recent := 0
	for _, status := range []models.TaskStatus{models.TaskStatusCompleted, models.TaskStatusFailed} {
		rows, err := db.ListTasksByStatus(status)
		if err != nil {
			return fmt.Errorf("list %s tasks: %w", status, err)
		}
		for _, row := range rows {
			if recent == 0 {
				fmt.Println("Recent:")
			}
			recent++
			if recent > 10 {
				break
			}
			fmt.Printf("  %s: %s  %q\n", row.Task.ID, colorStatus(row.Status), truncate(row.Task.Description, 60))
		}
	}

	if len(pending) == 0 && active == 0 && recent == 0 {
		fmt.Println("No tasks yet. Run 'foreman run <task>' to start.")
	}
	return nil
}

func colorStatus(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusCompleted:
		return color.GreenString(string(s))
	case models.TaskStatusFailed:
		return color.RedString(string(s))
	case models.TaskStatusRequiresApproval:
		return color.YellowString(string(s))
	default:
		return color.CyanString(string(s))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}
