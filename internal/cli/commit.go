// Package cli — commit.go implements the "gitsync commit" and
// "gitsync amend" shortcuts.
//
// commit stages every change (git add -A) and commits it in one step.
// amend rewrites the last commit, either with a new message or keeping
// the existing one. Neither command touches the remote.
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

// commitFlags holds the flag values shared by commit and amend.
type commitFlags struct {
	// dir is the repository working directory.
	dir string
}

// NewCommitCommand creates the "commit" cobra command.
func NewCommitCommand() *cobra.Command {
	flags := &commitFlags{}

	cmd := &cobra.Command{
		Use:   "commit [message]",
		Short: "Stage all changes and commit them",
		Long: `Stage all modified, added and deleted files and commit them.

Without a message the configured default commit message is used. Having
nothing to commit is not an error.

Examples:
  gitsync commit "Quick update"
  gitsync commit --dir ~/src/site`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			message := ""
			if len(args) == 1 {
				message = args[0]
			}
			return runCommit(cmd.Context(), message, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.dir, "dir", "C", "", "Repository directory (default: current directory or $GITSYNC_DIR)")

	return cmd
}

// NewAmendCommand creates the "amend" cobra command.
func NewAmendCommand() *cobra.Command {
	flags := &commitFlags{}

	cmd := &cobra.Command{
		Use:   "amend [message]",
		Short: "Amend the last commit",
		Long: `Amend the last commit with whatever is staged.

With a message the commit is reworded; without one the existing message
is kept.

Examples:
  gitsync amend
  gitsync amend "Better wording"`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			message := ""
			if len(args) == 1 {
				message = args[0]
			}
			return runAmend(cmd.Context(), message, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.dir, "dir", "C", "", "Repository directory (default: current directory or $GITSYNC_DIR)")

	return cmd
}

// commitResult describes the commit created by commit or amend.
type commitResult struct {
	Action  string `json:"action"`
	Commit  string `json:"commit,omitempty"`
	Message string `json:"message,omitempty"`
}

// newCommandManager loads configuration and returns a Manager for the
// configured repository, plus a cleanup function for the logger.
func newCommandManager(dir string) (*repo.Manager, func(), string, error) {
	cfg, err := loadConfig(dir)
	if err != nil {
		return nil, nil, "", err
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return nil, nil, "", err
	}

	runner, err := newRunner(cfg, logger)
	if err != nil {
		closeLog()
		return nil, nil, "", err
	}

	mgr := repo.NewManager(runner, cfg.Dir)
	return mgr, closeLog, cfg.Message, nil
}

// runCommit is the main logic function for the commit command.
func runCommit(ctx context.Context, message string, flags *commitFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}

	mgr, closeLog, defaultMessage, err := newCommandManager(flags.dir)
	if err != nil {
		return err
	}
	defer closeLog()

	if strings.TrimSpace(message) == "" {
		message = defaultMessage
	}

	// Step 1: Stage everything.
	if err := gitMust(ctx, mgr, "add", "-A"); err != nil {
		return err
	}

	// Step 2: Commit if anything is staged.
	staged, err := mgr.HasStagedChanges(ctx)
	if err != nil {
		return model.WrapCLIError(model.ExitGitError, "failed to inspect staged changes", err)
	}
	if !staged {
		printCommitResult(commitResult{Action: "nothing to commit"})
		return nil
	}

	if err := gitMust(ctx, mgr, "commit", "-m", message); err != nil {
		return err
	}

	head, _, err := mgr.RevParse(ctx, "HEAD")
	if err != nil {
		return err
	}
	printCommitResult(commitResult{Action: "committed", Commit: head, Message: message})
	return nil
}

// runAmend is the main logic function for the amend command.
func runAmend(ctx context.Context, message string, flags *commitFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}

	mgr, closeLog, _, err := newCommandManager(flags.dir)
	if err != nil {
		return err
	}
	defer closeLog()

	args := []string{"commit", "--amend"}
	if strings.TrimSpace(message) != "" {
		args = append(args, "-m", message)
	} else {
		args = append(args, "--no-edit")
	}
	if err := gitMust(ctx, mgr, args...); err != nil {
		return err
	}

	head, _, err := mgr.RevParse(ctx, "HEAD")
	if err != nil {
		return err
	}
	subject := ""
	if res, err := mgr.Git(ctx, "log", "-1", "--format=%s"); err == nil && res.Succeeded {
		subject = strings.TrimSpace(res.Stdout)
	}
	printCommitResult(commitResult{Action: "amended", Commit: head, Message: subject})
	return nil
}

// gitMust runs a git command and converts a non-zero exit into a CLIError
// carrying git's first line of output.
func gitMust(ctx context.Context, mgr *repo.Manager, args ...string) error {
	res, err := mgr.Git(ctx, args...)
	if err != nil {
		return err
	}
	if !res.Succeeded {
		return model.NewCLIError(model.ExitGitError,
			fmt.Sprintf("git %s failed: %s", strings.Join(args, " "), res.Summary()))
	}
	return nil
}

// printCommitResult outputs the commit result in text or JSON format.
func printCommitResult(result commitResult) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	if result.Commit == "" {
		fmt.Println("Nothing to commit")
		return
	}
	short := result.Commit
	if len(short) > 7 {
		short = short[:7]
	}
	verb := "Committed"
	if result.Action == "amended" {
		verb = "Amended"
	}
	fmt.Printf("%s %s: %s\n", verb, short, firstLine(result.Message))
}

// firstLine returns the subject line of a commit message.
func firstLine(message string) string {
	line, _, _ := strings.Cut(message, "\n")
	return line
}
