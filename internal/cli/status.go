// Package cli — status.go implements the "gitsync status" command.
//
// The status command summarizes the working tree the way a sync run would
// see it: which branch is checked out, whether the checkout is a linked
// worktree, and how many paths are modified, added, deleted or conflicted.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/gitsync/internal/model"
	"github.com/shinji-kodama/gitsync/internal/repo"
)

// statusFlags holds the flag values for the status command.
type statusFlags struct {
	// dir is the repository working directory.
	dir string
}

// NewStatusCommand creates the "status" cobra command.
func NewStatusCommand() *cobra.Command {
	flags := &statusFlags{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize pending changes in the working tree",
		Long: `Summarize pending changes in the working tree.

Examples:
  gitsync status
  gitsync status --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.dir, "dir", "C", "", "Repository directory (default: current directory or $GITSYNC_DIR)")

	return cmd
}

// statusResult is the status command's output document.
type statusResult struct {
	Root           string   `json:"root"`
	Branch         string   `json:"branch,omitempty"`
	Detached       bool     `json:"detached"`
	LinkedWorktree bool     `json:"linkedWorktree"`
	Clean          bool     `json:"clean"`
	Summary        string   `json:"summary"`
	Paths          []string `json:"paths"`
}

// runStatus is the main logic function for the status command.
func runStatus(ctx context.Context, flags *statusFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}

	mgr, closeLog, _, err := newCommandManager(flags.dir)
	if err != nil {
		return err
	}
	defer closeLog()

	root, err := mgr.TopLevel(ctx)
	if err != nil {
		return model.WrapCLIError(model.ExitGitError, fmt.Sprintf("%s is not inside a git working tree", mgr.Dir()), err)
	}

	branch, attached, err := mgr.CurrentBranch(ctx)
	if err != nil {
		return model.WrapCLIError(model.ExitGitError, "failed to read current branch", err)
	}

	porcelain, err := mgr.Status(ctx)
	if err != nil {
		return model.WrapCLIError(model.ExitGitError, "failed to read working tree status", err)
	}

	outcome := model.WorkflowOutcome{RemainingChanges: porcelain}
	result := statusResult{
		Root:           root,
		Branch:         branch,
		Detached:       !attached,
		LinkedWorktree: repo.IsLinkedWorktree(root),
		Clean:          strings.TrimSpace(porcelain) == "",
		Summary:        repo.SummarizeStatus(porcelain),
		Paths:          nonNil(outcome.RemainingPaths()),
	}

	printStatusResult(result)
	return nil
}

// printStatusResult outputs the status result in text or JSON format.
func printStatusResult(result statusResult) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	branch := result.Branch
	if result.Detached {
		branch = "(detached HEAD)"
	}
	if result.LinkedWorktree {
		branch += " [worktree]"
	}

	fmt.Printf("On %s in %s\n", branch, result.Root)
	fmt.Printf("  %s\n", result.Summary)
	for _, p := range result.Paths {
		fmt.Printf("    %s\n", p)
	}
}
