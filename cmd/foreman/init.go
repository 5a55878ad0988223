package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize Foreman in a project",
	Long: `Set up the Foreman working directory for a project.

Creates the .foreman directory (state database, approval queue) and a
.foreman.yaml configuration template, and adds the state files to
.gitignore when the project is a git repository.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Reinitialize even if .foreman already exists")
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) == 1 {
		targetDir = args[0]
	}

	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	fmt.Printf("Initializing Foreman in %s...\n\n", absPath)

	foremanDir := filepath.Join(absPath, ".foreman")
	if _, err := os.Stat(foremanDir); err == nil && !initForce {
		fmt.Println("Directory already initialized. Use --force to reinitialize.")
		return nil
	}

	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		printStatus("⚠", "ANTHROPIC_API_KEY not set (you can set it later)", color.FgYellow)
	} else {
		printStatus("✓", "ANTHROPIC_API_KEY is set", color.FgGreen)
	}

	if err := os.MkdirAll(filepath.Join(foremanDir, "approvals"), 0755); err != nil {
		return fmt.Errorf("creating .foreman directory: %w", err)
	}
	printStatus("✓", "Created .foreman directory structure", color.FgGreen)

	if err := updateGitignore(absPath); err == nil {
		printStatus("✓", "Updated .gitignore with Foreman entries", color.FgGreen)
	}

	projectConfig := filepath.Join(absPath, ".foreman.yaml")
	if _, err := os.Stat(projectConfig); os.IsNotExist(err) || initForce {
		if err := os.WriteFile(projectConfig, []byte(projectConfigTemplate), 0644); err != nil {
			return fmt.Errorf("creating .foreman.yaml: %w", err)
		}
		printStatus("✓", "Created .foreman.yaml template", color.FgGreen)
	}

	fmt.Printf("\n%s Foreman initialization complete!\n\n", color.GreenString("✓"))
	fmt.Println("Next steps:")
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		fmt.Println("  1. Set your API key:")
		fmt.Println("     export ANTHROPIC_API_KEY=your-key-here")
		fmt.Println()
	}
	fmt.Println("  2. Run a task:")
	fmt.Println("     foreman run \"summarize the open items in TODO.md\"")
	return nil
}

// updateGitignore appends Foreman state entries to .gitignore if the project
// has one and the entries are missing.
func updateGitignore(repoPath string) error {
	gitignorePath := filepath.Join(repoPath, ".gitignore")

	existing, err := os.ReadFile(gitignorePath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	entries := []string{".foreman/state.db*", ".foreman/approvals/"}
	var missing []string
	for _, e := range entries {
		if !strings.Contains(string(existing), e) {
			missing = append(missing, e)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return err
		}
	}
	if _, err := f.WriteString("\n# Foreman\n" + strings.Join(missing, "\n") + "\n"); err != nil {
		return err
	}
	return nil
}

const projectConfigTemplate = `# Foreman project configuration.
# Values here override ~/.config/foreman/config.yaml.

defaults:
  budget_cap: 25.0
  urgency: normal

pool:
  roster:
    - general
    - general
    - research
    - engineering
    - writing
  work_timeout: 10m

phases:
  max_audits_per_stage: 3
  round_estimate: 1.0

review:
  auto_approve_risk_max: 7
  critical_risk_min: 9
  max_duration: 15m

# strategy:
#   overrides_file: .foreman/overrides.yaml
#   use_model_scorer: true
`

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
