package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tbaxter-dev/foreman/internal/config"
)

var (
	approveResume bool
	rejectResume  bool
)

var approveCmd = &cobra.Command{
	Use:   "approve <task-id>",
	Short: "Approve a task waiting for human sign-off",
	Long: `Approve a parked task. The task resumes under the reviewed tier:
one worker call followed by a review pass.

By default this drops a signal file that a running 'foreman run' picks
up. Use --resume to execute the task in this process instead, for tasks
parked by a session that has since exited.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveTask(args[0], true, approveResume)
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <task-id>",
	Short: "Reject a task waiting for human sign-off",
	Long: `Reject a parked task. The task fails terminally and its run record
is kept for inspection.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveTask(args[0], false, rejectResume)
	},
}

func init() {
	approveCmd.Flags().BoolVar(&approveResume, "resume", false, "Execute the approved task in this process")
	rejectCmd.Flags().BoolVar(&rejectResume, "resume", false, "Record the rejection in this process")
}

func resolveTask(taskID string, approve, resume bool) error {
	if resume {
		return resolveInProcess(taskID, approve)
	}
	return writeSignalFile(taskID, approve)
}

// writeSignalFile drops a decision file into the approvals directory for a
// running foreman process to consume.
func writeSignalFile(taskID string, approve bool) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	dir := filepath.Join(cwd, ".foreman", "approvals")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create approvals directory: %w", err)
	}

	suffix := ".approve"
	verb := "approved"
	if !approve {
		suffix = ".reject"
		verb = "rejected"
	}

	path := filepath.Join(dir, taskID+suffix)
	if err := os.WriteFile(path, nil, 0644); err != nil {
		return fmt.Errorf("write signal file: %w", err)
	}

	color.Green("✓ Task %s %s", taskID, verb)
	fmt.Println("  A running 'foreman run' session will pick this up.")
	fmt.Println("  If no session is running, use --resume to execute here.")
	return nil
}

// resolveInProcess resolves the approval against the durable queue and, on
// approval, executes the task in this process.
func resolveInProcess(taskID string, approve bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	svcs, err := buildServices(cfg)
	if err != nil {
		return err
	}
	defer svcs.Close()

	go printEvents(svcs.service)

	if err := svcs.service.ResumeApproval(context.Background(), taskID, approve); err != nil {
		return err
	}
	svcs.service.Wait()

	status, rec, err := svcs.service.Status(taskID)
	if err != nil {
		return err
	}
	if rec != nil {
		printRecord(*rec)
	} else {
		fmt.Printf("Task %s is now %s\n", taskID, status)
	}
	return nil
}
