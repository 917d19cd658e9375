// Package cli — sync.go implements the "gitsync sync" command.
//
// The sync command runs the full sync-and-publish workflow against the
// configured remote branch:
//  1. Stash uncommitted work (including untracked files)
//  2. Fetch, then hard-reset to or merge the remote branch
//  3. Restore the stash, stage and commit everything
//  4. Push, falling back once to --force-with-lease
//  5. Report what, if anything, is still uncommitted
//
// Progress is narrated step by step. The exit code tells scripts whether
// the branch was published and the working tree ended up clean.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/gitsync/internal/config"
	"github.com/shinji-kodama/gitsync/internal/model"
	"github.com/shinji-kodama/gitsync/internal/publish"
	"github.com/shinji-kodama/gitsync/internal/repo"
	"github.com/shinji-kodama/gitsync/internal/telemetry"
)

// syncFlags holds the flag values for the sync command.
type syncFlags struct {
	// dir is the repository working directory.
	dir string

	// remote and branch override the configured publish target.
	remote string
	branch string

	// policy overrides the reconciliation policy (hard-reset or merge).
	policy string

	// message is the commit message for local work.
	message string

	// yes skips the force-push confirmation prompt.
	yes bool

	// confirmForce asks before force-pushing after an automatic conflict
	// resolution.
	confirmForce bool

	// trace exports OpenTelemetry spans for each step to stderr.
	trace bool
}

// NewSyncCommand creates the "sync" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewSyncCommand() *cobra.Command {
	flags := &syncFlags{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize with the remote branch and publish local work",
		Long: `Synchronize the working copy with the remote branch and publish local work.

Reconciliation policies:
  hard-reset  Make local history match the remote branch exactly. Local
              commits that were never pushed are discarded; uncommitted
              work is stashed first and restored afterwards.
  merge       Merge the remote branch. Conflicts are resolved by keeping
              the local version of every conflicting file.

The publish branch must be checked out; sync refuses to run on any other
branch or on a detached HEAD.

If the push is rejected, one --force-with-lease push is attempted against
the remote commit observed right after fetching. If the remote moved in
the meantime, nothing is overwritten and the command exits with code 8.

Examples:
  gitsync sync
  gitsync sync -m "Complete database integration"
  gitsync sync --policy merge --confirm-force
  gitsync sync --dir ~/src/site --remote upstream --branch release --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.dir, "dir", "C", "", "Repository directory (default: current directory or $GITSYNC_DIR)")
	cmd.Flags().StringVar(&flags.remote, "remote", "", "Remote to fetch from and push to (default: origin)")
	cmd.Flags().StringVar(&flags.branch, "branch", "", "Branch to synchronize and publish (default: main)")
	cmd.Flags().StringVar(&flags.policy, "policy", "", "Reconciliation policy: hard-reset or merge (default: hard-reset)")
	cmd.Flags().StringVarP(&flags.message, "message", "m", "", "Commit message for local changes")
	cmd.Flags().BoolVarP(&flags.yes, "yes", "y", false, "Force-push without asking after a conflict resolution")
	cmd.Flags().BoolVar(&flags.confirmForce, "confirm-force", false, "Ask before force-pushing after a conflict resolution")
	cmd.Flags().BoolVar(&flags.trace, "trace", false, "Print OpenTelemetry spans for each step to stderr")

	return cmd
}

// applySyncFlags overlays explicitly set flags onto cfg.
func applySyncFlags(cmd *cobra.Command, flags *syncFlags, cfg *config.Config) error {
	changed := cmd.Flags().Changed

	if changed("remote") {
		cfg.Remote = flags.remote
	}
	if changed("branch") {
		cfg.Branch = flags.branch
	}
	if changed("message") {
		cfg.Message = flags.message
	}
	if changed("policy") {
		policy, err := model.ParsePolicy(flags.policy)
		if err != nil {
			return model.WrapCLIError(model.ExitConfigError, "invalid --policy", err)
		}
		cfg.Policy = policy
	}
	if flags.confirmForce {
		cfg.ConfirmForce = true
	}
	if flags.trace {
		cfg.Trace.Enabled = true
	}
	return cfg.Validate()
}

// runSync is the main logic function for the sync command.
func runSync(ctx context.Context, cmd *cobra.Command, flags *syncFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Step 1: Resolve configuration (defaults, file, env, flags).
	cfg, err := loadConfig(flags.dir)
	if err != nil {
		return err
	}
	if err := applySyncFlags(cmd, flags, cfg); err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	shutdown, err := telemetry.SetupTracing(ctx, cfg.Trace, os.Stderr)
	if err != nil {
		return model.WrapCLIError(model.ExitConfigError, "failed to set up tracing", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	runner, err := newRunner(cfg, logger)
	if err != nil {
		return err
	}

	// Step 2: Locate the working tree root so the command works from any
	// subdirectory.
	mgr := repo.NewManager(runner, cfg.Dir)
	root, err := mgr.TopLevel(ctx)
	if err != nil {
		return model.WrapCLIError(model.ExitGitError, fmt.Sprintf("%s is not inside a git working tree", cfg.Dir), err)
	}
	VerboseLog("Repository root: %s", root)

	// Step 3: Run the workflow. In JSON mode the narrative goes to stderr
	// so that stdout carries only the result document.
	narrative := io.Writer(os.Stdout)
	if IsJSONOutput() {
		narrative = os.Stderr
	}

	opts := publish.FromConfig(cfg)
	opts.Narrator = newStyledNarrator(narrative)
	opts.Logger = logger
	if cfg.ConfirmForce && !flags.yes {
		opts.Confirmer = stdinConfirmer{in: os.Stdin, out: os.Stderr}
	}

	VerboseLog("Syncing %s with %s/%s using %s policy", root, cfg.Remote, cfg.Branch, cfg.Policy)
	outcome, err := publish.New(runner, opts).Run(ctx, root, cfg.Message)
	if err != nil {
		return err
	}

	// Step 4: Output the result and map it to an exit code.
	printSyncResult(outcome, cfg)
	return syncExitError(outcome)
}

// syncExitError converts an unsuccessful outcome into a CLIError carrying
// the matching exit code. It returns nil for a fully successful run.
func syncExitError(outcome *model.WorkflowOutcome) error {
	if outcome.ManualIntervention {
		if force, ok := outcome.Step(model.StepForcePublish); ok && force.Skipped {
			return model.NewCLIError(model.ExitUserCancelled, "force push declined; the branch was not published")
		}
		return model.NewCLIError(model.ExitManualIntervention,
			"publishing failed even with --force-with-lease; manual intervention needed")
	}
	if outcome.StashRetained {
		return model.NewCLIError(model.ExitManualIntervention,
			"local changes could not be restored and remain in the stash; see git stash list")
	}
	if status, ok := outcome.Step(model.StepStatus); ok && !status.Succeeded {
		return model.NewCLIError(model.ExitGitError, "could not determine final working tree status: "+status.Message)
	}
	if !outcome.Published {
		return model.NewCLIError(model.ExitManualIntervention, "the branch was not published")
	}
	if paths := outcome.RemainingPaths(); len(paths) > 0 {
		return model.NewCLIError(model.ExitChangesRemain,
			fmt.Sprintf("published, but %d path(s) still have uncommitted changes", len(paths)))
	}
	return nil
}

// stdinConfirmer asks the force-push question on the terminal.
type stdinConfirmer struct {
	in  io.Reader
	out io.Writer
}

// Confirm implements publish.Confirmer.
func (c stdinConfirmer) Confirm(_ context.Context, prompt string) (bool, error) {
	return promptConfirmation(c.in, c.out, prompt)
}

// promptConfirmation writes prompt and reads a single line, accepting "y"
// or "yes". A closed input counts as "no".
func promptConfirmation(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N] ", prompt)

	// bufio.Scanner handles different line endings across platforms
	// (LF on Unix, CRLF on Windows).
	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
		return answer == "y" || answer == "yes", nil
	}

	if err := scanner.Err(); err != nil {
		return false, err
	}
	return false, nil
}

// printSyncResult outputs the sync result in text or JSON format.
func printSyncResult(outcome *model.WorkflowOutcome, cfg *config.Config) {
	if IsJSONOutput() {
		printSyncResultJSON(outcome, cfg)
	} else {
		printSyncResultText(outcome, cfg)
	}
}

// printSyncResultJSON outputs the workflow outcome as structured JSON.
func printSyncResultJSON(outcome *model.WorkflowOutcome, cfg *config.Config) {
	result := map[string]interface{}{
		"remote":         cfg.Remote,
		"branch":         cfg.Branch,
		"succeeded":      outcome.Succeeded(),
		"outcome":        outcome,
		"remainingPaths": nonNil(outcome.RemainingPaths()),
	}

	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
}

// printSyncResultText outputs a short human-readable summary.
func printSyncResultText(outcome *model.WorkflowOutcome, cfg *config.Config) {
	target := cfg.Remote + "/" + cfg.Branch
	fmt.Println()

	switch {
	case outcome.Succeeded():
		fmt.Printf("%s Synchronized and published %s\n", styleOK.Render("Done."), target)
	case outcome.ManualIntervention:
		fmt.Printf("%s %s was not published; manual intervention needed\n", styleFail.Render("Failed."), target)
	case outcome.StashRetained:
		fmt.Printf("%s Local changes were not restored and remain in the stash\n", styleFail.Render("Failed."))
	case outcome.Published:
		fmt.Printf("%s Published %s, but changes remain\n", styleWarning.Render("Incomplete."), target)
	default:
		fmt.Printf("%s %s was not published\n", styleFail.Render("Failed."), target)
	}

	published := "no"
	if outcome.Published {
		published = "yes"
		if outcome.ForcedPublish {
			published = "yes (force-with-lease)"
		}
	}
	committed := "no"
	if outcome.Committed {
		committed = "yes"
	}

	fmt.Printf("  Policy:     %s\n", outcome.Policy)
	fmt.Printf("  Committed:  %s\n", committed)
	fmt.Printf("  Published:  %s\n", published)
	if outcome.ConflictResolved {
		fmt.Printf("  Conflicts:  resolved, kept local version\n")
	}
	if outcome.StashRetained {
		fmt.Printf("  Stash:      local changes kept in the stash\n")
	}

	paths := outcome.RemainingPaths()
	if len(paths) == 0 {
		fmt.Printf("  Remaining:  none\n")
	} else {
		fmt.Printf("  Remaining:  %s\n", repo.SummarizeStatus(outcome.RemainingChanges))
		for _, p := range paths {
			fmt.Printf("    %s\n", p)
		}
	}
	fmt.Printf("  %s\n", styleDim.Render("run "+outcome.RunID))
}

// nonNil turns a nil slice into an empty one so JSON shows [] not null.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
