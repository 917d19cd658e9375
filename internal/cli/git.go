// Package cli — git.go implements the "gitsync git" passthrough command.
//
// The passthrough forwards a git subcommand and its arguments verbatim to
// git, rooted at the configured repository directory ($GITSYNC_DIR or the
// "dir" setting of the config file). Output is streamed as it is produced
// and the command exits with git's own exit code.
package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/gitsync/internal/model"
)

// gitUsage is reported when no git subcommand is given.
const gitUsage = "usage: gitsync git <subcommand> [args...]"

// NewGitCommand creates the "git" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewGitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "git <subcommand> [args...]",
		Short: "Run a git command in the configured repository",
		Long: `Run any git command in the configured repository directory.

Arguments are passed to git unchanged; gitsync defines no flags of its own
here. The repository directory comes from $GITSYNC_DIR or the "dir" setting
of the config file, and the git binary from $GIT_EXECUTABLE.

Examples:
  gitsync git status --short
  gitsync git log --oneline -5
  GITSYNC_DIR=~/src/site gitsync git push origin main`,

		// Every argument, including ones that look like flags, belongs to git.
		DisableFlagParsing: true,

		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				return model.NewCLIError(model.ExitGeneralError, gitUsage)
			}
			return nil
		},

		RunE: func(cmd *cobra.Command, args []string) error {
			return runGitPassthrough(cmd.Context(), args)
		},
	}

	return cmd
}

// runGitPassthrough executes git with args and forwards its exit status.
func runGitPassthrough(ctx context.Context, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig("")
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	runner, err := newRunner(cfg, logger)
	if err != nil {
		return err
	}
	runner.Stdin = os.Stdin
	runner.Stdout = os.Stdout
	runner.Stderr = os.Stderr

	VerboseLog("Running git %v in %s", args, cfg.Dir)
	res, err := runner.Run(ctx, cfg.Dir, args...)
	if err != nil {
		return err
	}
	if !res.Succeeded {
		return &model.ExitCodeError{Code: res.ExitCode}
	}
	return nil
}
