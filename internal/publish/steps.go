package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shinji-kodama/gitsync/internal/model"
	"github.com/shinji-kodama/gitsync/internal/repo"
)

// run holds the state of a single workflow execution.
type run struct {
	*Publisher

	mgr     *repo.Manager
	message string
	log     *slog.Logger
	outcome *model.WorkflowOutcome

	// savedStash is the stash commit created by the save step. Empty when
	// there was nothing to save.
	savedStash string
}

// target is the remote-tracking branch reconciled against, e.g. origin/main.
func (r *run) target() string {
	return r.opts.Remote + "/" + r.opts.Branch
}

// configure sets pull.rebase=false. Failure is recorded and ignored.
func (r *run) configure(ctx context.Context) error {
	res, err := r.mgr.Git(ctx, "config", "pull.rebase", "false")
	if err != nil {
		return err
	}
	if !res.Succeeded {
		r.fail(model.StepConfigure, "could not set pull.rebase=false: "+reason(res))
		return nil
	}
	r.ok(model.StepConfigure, "pull.rebase=false")
	return nil
}

// save stashes uncommitted work, untracked files included.
//
// git stash push exits 0 whether or not it saved anything, so the stash
// ref is compared before and after. Only a new entry counts as saved,
// which keeps an older unrelated stash from being popped by restore.
func (r *run) save(ctx context.Context) error {
	before, err := r.mgr.StashRef(ctx)
	if err != nil {
		return err
	}

	res, err := r.mgr.Git(ctx, "stash", "push", "--include-untracked", "-m", "gitsync "+r.outcome.RunID)
	if err != nil {
		return err
	}

	after, err := r.mgr.StashRef(ctx)
	if err != nil {
		return err
	}

	switch {
	case after != "" && after != before:
		r.savedStash = after
		r.ok(model.StepSave, "saved local changes to the stash")
	case !res.Succeeded:
		r.fail(model.StepSave, "could not stash local changes: "+reason(res))
	default:
		r.skip(model.StepSave, "no local changes to save")
	}
	return nil
}

// fetch fetches the remote and observes the remote branch commit. The
// observed value is the lease for a later force push.
func (r *run) fetch(ctx context.Context) error {
	res, err := r.mgr.Git(ctx, "fetch", r.opts.Remote)
	if err != nil {
		return err
	}

	observed, err := r.mgr.ObserveRemoteRef(ctx, r.opts.Remote, r.opts.Branch)
	if err != nil {
		return err
	}
	r.outcome.ObservedRemote = observed

	switch {
	case !res.Succeeded:
		r.fail(model.StepFetch, fmt.Sprintf("could not fetch %s: %s", r.opts.Remote, reason(res)))
	case observed == "":
		r.ok(model.StepFetch, fmt.Sprintf("fetched %s, %s does not exist yet", r.opts.Remote, r.target()))
	default:
		r.ok(model.StepFetch, fmt.Sprintf("fetched %s, %s at %s", r.opts.Remote, r.target(), shortHash(observed)))
	}
	return nil
}

// reconcile applies the configured policy against the remote-tracking
// branch. A remote branch that does not exist yet leaves nothing to do.
func (r *run) reconcile(ctx context.Context) error {
	if r.outcome.ObservedRemote == "" {
		r.skip(model.StepReconcile, r.target()+" does not exist, nothing to reconcile")
		return nil
	}

	switch r.opts.Policy {
	case model.PolicyMerge:
		return r.merge(ctx)
	default:
		return r.hardReset(ctx)
	}
}

// hardReset makes the local branch match the remote-tracking branch.
// Local commits that were never published are discarded; uncommitted work
// is safe in the stash.
func (r *run) hardReset(ctx context.Context) error {
	res, err := r.mgr.Git(ctx, "reset", "--hard", r.target())
	if err != nil {
		return err
	}
	if !res.Succeeded {
		r.fail(model.StepReconcile, fmt.Sprintf("could not reset to %s: %s", r.target(), reason(res)))
		return nil
	}
	r.ok(model.StepReconcile, "reset to "+r.target())
	return nil
}

// merge merges the remote-tracking branch. Conflicts are detected from the
// merge output and resolved in favour of the local version.
func (r *run) merge(ctx context.Context) error {
	res, err := r.mgr.Git(ctx, "merge", "--no-edit", r.target())
	if err != nil {
		return err
	}

	if strings.Contains(res.Combined(), "CONFLICT") {
		r.fail(model.StepReconcile, "merge of "+r.target()+" reported conflicts")
		return r.resolveConflicts(ctx)
	}
	if !res.Succeeded {
		r.fail(model.StepReconcile, fmt.Sprintf("could not merge %s: %s", r.target(), reason(res)))
		return nil
	}
	r.ok(model.StepReconcile, "merged "+r.target())
	return nil
}

// resolveConflicts takes the local side of every unmerged path and
// finishes the merge with exactly one resolution commit. A path that only
// exists on the remote side was deleted locally and is removed.
//
// If the merge cannot be completed it is aborted, returning the working
// tree to the local state so the rest of the run can proceed.
func (r *run) resolveConflicts(ctx context.Context) error {
	paths, err := r.mgr.UnmergedPaths(ctx)
	if err != nil {
		if isStartFailure(err) {
			return err
		}
		return r.abortMerge(ctx, "could not list conflicting paths: "+err.Error())
	}

	for _, path := range paths {
		ok, detail, err := r.takeSide(ctx, "--ours", path)
		if err != nil {
			return err
		}
		if !ok {
			return r.abortMerge(ctx, fmt.Sprintf("could not keep local version of %s: %s", path, detail))
		}
	}

	res, err := r.mgr.Git(ctx, "add", "-A")
	if err != nil {
		return err
	}
	if !res.Succeeded {
		return r.abortMerge(ctx, "could not stage resolution: "+reason(res))
	}

	res, err = r.mgr.Git(ctx, "commit", "-m", MergeResolutionMessage)
	if err != nil {
		return err
	}
	if !res.Succeeded {
		return r.abortMerge(ctx, "could not commit resolution: "+reason(res))
	}

	r.outcome.ConflictResolved = true
	r.ok(model.StepResolve, fmt.Sprintf("kept local version of %d conflicting path(s)", len(paths)))
	return nil
}

// takeSide checks out one side of an unmerged path. When that side has no
// version of the path, the path is removed instead.
func (r *run) takeSide(ctx context.Context, side, path string) (bool, string, error) {
	res, err := r.mgr.Git(ctx, "checkout", side, "--", path)
	if err != nil {
		return false, "", err
	}
	if res.Succeeded {
		return true, "", nil
	}

	res, err = r.mgr.Git(ctx, "rm", "-q", "--", path)
	if err != nil {
		return false, "", err
	}
	return res.Succeeded, reason(res), nil
}

// abortMerge records a failed resolution and aborts the merge.
func (r *run) abortMerge(ctx context.Context, message string) error {
	r.fail(model.StepResolve, message)
	res, err := r.mgr.Git(ctx, "merge", "--abort")
	if err != nil {
		return err
	}
	if !res.Succeeded {
		r.log.Warn("merge abort failed", "detail", reason(res))
	}
	return nil
}

// restore pops the stash entry created by save.
//
// When the pop conflicts with the reconciled history, every conflicting
// path takes the saved version and the entry git keeps after a conflicted
// pop is dropped. Conflict markers are never left for the stage step.
//
// A pop can also stop without conflict stages when a saved untracked file
// is now tracked by the reconciled history. Those files are cleared from
// the working tree and the pop is retried, so the saved versions win here
// too. Work that still cannot be restored stays in the stash and the
// outcome is marked StashRetained.
func (r *run) restore(ctx context.Context) error {
	if r.savedStash == "" {
		r.skip(model.StepRestore, "nothing was saved, nothing to restore")
		return nil
	}

	res, err := r.mgr.Git(ctx, "stash", "pop")
	if err != nil {
		return err
	}
	if res.Succeeded {
		r.ok(model.StepRestore, "restored local changes")
		return nil
	}

	handled, err := r.resolveRestoreConflicts(ctx)
	if err != nil || handled {
		return err
	}
	return r.retryRestore(ctx, res)
}

// resolveRestoreConflicts resolves a conflicted pop in favour of the saved
// work. It reports false when there are no conflict stages to resolve.
func (r *run) resolveRestoreConflicts(ctx context.Context) (bool, error) {
	paths, err := r.mgr.UnmergedPaths(ctx)
	if err != nil {
		if isStartFailure(err) {
			return false, err
		}
		return false, nil
	}
	if len(paths) == 0 {
		return false, nil
	}

	for _, path := range paths {
		ok, detail, err := r.takeSide(ctx, "--theirs", path)
		if err != nil {
			return true, err
		}
		if !ok {
			return true, r.retainStash(fmt.Sprintf("could not restore saved version of %s: %s", path, detail))
		}
	}

	// Untracked files are restored after the tracked merge and may have
	// been skipped where the reconciled history has a file of the same
	// name.
	untracked, err := r.mgr.StashUntrackedPaths(ctx, r.savedStash)
	if err != nil {
		if isStartFailure(err) {
			return true, err
		}
		return true, r.retainStash("could not list saved untracked files: " + err.Error())
	}
	if len(untracked) > 0 {
		args := []string{"checkout", r.savedStash + "^3", "--"}
		for _, p := range untracked {
			args = append(args, ":(top)"+p)
		}
		res, err := r.mgr.Git(ctx, args...)
		if err != nil {
			return true, err
		}
		if !res.Succeeded {
			return true, r.retainStash("could not restore saved untracked files: " + reason(res))
		}
	}

	if err := r.dropSavedStash(ctx); err != nil {
		return true, err
	}
	r.ok(model.StepRestore, fmt.Sprintf("restored local changes, kept saved version of %d conflicting path(s)", len(paths)))
	return true, nil
}

// retryRestore handles a pop that failed without conflict stages. The
// stash entry is still intact, so the working tree is reset to HEAD, the
// saved untracked files are cleared out of the way and the pop is retried.
func (r *run) retryRestore(ctx context.Context, first model.CommandResult) error {
	current, err := r.mgr.StashRef(ctx)
	if err != nil {
		return err
	}
	untracked, err := r.mgr.StashUntrackedPaths(ctx, r.savedStash)
	if err != nil {
		if isStartFailure(err) {
			return err
		}
		return r.retainStash(reason(first))
	}
	if current != r.savedStash || len(untracked) == 0 {
		return r.retainStash(reason(first))
	}

	res, err := r.mgr.Git(ctx, "reset", "-q", "--hard", "HEAD")
	if err != nil {
		return err
	}
	if !res.Succeeded {
		return r.retainStash(reason(first))
	}
	if err := r.mgr.RemoveWorktreeFiles(ctx, untracked); err != nil {
		if isStartFailure(err) {
			return err
		}
		return r.retainStash(err.Error())
	}

	res, err = r.mgr.Git(ctx, "stash", "pop")
	if err != nil {
		return err
	}
	if res.Succeeded {
		r.ok(model.StepRestore, fmt.Sprintf("restored local changes, saved version of %d untracked path(s) kept", len(untracked)))
		return nil
	}

	handled, err := r.resolveRestoreConflicts(ctx)
	if err != nil || handled {
		return err
	}
	return r.retainStash(reason(res))
}

// dropSavedStash drops the entry a conflicted pop leaves behind, but only
// when it is still the one this run created.
func (r *run) dropSavedStash(ctx context.Context) error {
	current, err := r.mgr.StashRef(ctx)
	if err != nil {
		return err
	}
	if current != r.savedStash {
		return nil
	}

	drop, err := r.mgr.Git(ctx, "stash", "drop", "-q", "stash@{0}")
	if err != nil {
		return err
	}
	if !drop.Succeeded {
		r.log.Warn("could not drop restored stash entry", "detail", reason(drop))
	}
	return nil
}

// retainStash records that the saved work could not be restored and is
// still in the stash.
func (r *run) retainStash(detail string) error {
	r.outcome.StashRetained = true
	r.fail(model.StepRestore, "could not restore local changes, they remain in the stash: "+detail)
	return nil
}

// stage stages every modification, addition and deletion.
func (r *run) stage(ctx context.Context) error {
	res, err := r.mgr.Git(ctx, "add", "-A")
	if err != nil {
		return err
	}
	if !res.Succeeded {
		r.fail(model.StepStage, "could not stage changes: "+reason(res))
		return nil
	}
	r.ok(model.StepStage, "staged all changes")
	return nil
}

// commit commits the staged changes. Nothing staged is not a failure.
func (r *run) commit(ctx context.Context) error {
	staged, err := r.mgr.HasStagedChanges(ctx)
	if err != nil {
		if isStartFailure(err) {
			return err
		}
		r.fail(model.StepCommit, err.Error())
		return nil
	}
	if !staged {
		r.skip(model.StepCommit, "nothing to commit")
		return nil
	}

	res, err := r.mgr.Git(ctx, "commit", "-m", r.message)
	if err != nil {
		return err
	}
	if !res.Succeeded {
		r.fail(model.StepCommit, "could not commit: "+reason(res))
		return nil
	}
	r.outcome.Committed = true
	r.ok(model.StepCommit, res.Summary())
	return nil
}

// publish pushes the branch. A rejected push is followed by exactly one
// force-with-lease attempt.
func (r *run) publish(ctx context.Context) error {
	res, err := r.mgr.Git(ctx, "push", r.opts.Remote, r.opts.Branch)
	if err != nil {
		return err
	}
	if res.Succeeded {
		r.outcome.Published = true
		r.ok(model.StepPublish, "pushed to "+r.target())
		return nil
	}

	r.fail(model.StepPublish, "push rejected: "+reason(res))
	return r.forcePublish(ctx)
}

// forcePublish pushes with a lease on the commit observed after fetching.
// If the remote branch moved since then, git refuses the push and the run
// ends needing manual intervention. An empty lease value requires that the
// remote branch still does not exist.
func (r *run) forcePublish(ctx context.Context) error {
	if r.outcome.ConflictResolved && r.opts.Confirmer != nil {
		prompt := fmt.Sprintf("Push to %s was rejected after conflicts were resolved locally. Force push with lease?", r.target())
		yes, err := r.opts.Confirmer.Confirm(ctx, prompt)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			r.log.Warn("confirmation failed", "error", err)
		}
		if err != nil || !yes {
			r.outcome.ManualIntervention = true
			r.record(model.StepResult{
				Step:    model.StepForcePublish,
				Skipped: true,
				Message: "force push declined, manual intervention needed",
			})
			return nil
		}
	}

	lease := fmt.Sprintf("--force-with-lease=%s:%s", r.opts.Branch, r.outcome.ObservedRemote)
	res, err := r.mgr.Git(ctx, "push", lease, r.opts.Remote, r.opts.Branch)
	if err != nil {
		return err
	}
	if !res.Succeeded {
		r.outcome.ManualIntervention = true
		r.fail(model.StepForcePublish, "manual intervention needed: "+reason(res))
		return nil
	}

	r.outcome.Published = true
	r.outcome.ForcedPublish = true
	r.ok(model.StepForcePublish, fmt.Sprintf("force-pushed to %s with lease %s", r.target(), leaseLabel(r.outcome.ObservedRemote)))
	return nil
}

// status records the porcelain status of the working tree.
func (r *run) status(ctx context.Context) error {
	out, err := r.mgr.Status(ctx)
	if err != nil {
		if isStartFailure(err) {
			return err
		}
		r.fail(model.StepStatus, err.Error())
		return nil
	}

	r.outcome.RemainingChanges = out
	if strings.TrimSpace(out) == "" {
		r.ok(model.StepStatus, "working tree clean")
		return nil
	}
	r.ok(model.StepStatus, repo.SummarizeStatus(out)+" remaining")
	return nil
}

func (r *run) ok(step model.StepName, message string) {
	r.record(model.StepResult{Step: step, Succeeded: true, Message: message})
}

func (r *run) skip(step model.StepName, message string) {
	r.record(model.StepResult{Step: step, Succeeded: true, Skipped: true, Message: message})
}

func (r *run) fail(step model.StepName, message string) {
	r.record(model.StepResult{Step: step, Message: message})
}

// record appends a step result to the outcome, narrates it and logs it.
func (r *run) record(result model.StepResult) {
	r.outcome.Steps = append(r.outcome.Steps, result)
	r.opts.Narrator.Narrate(result)

	level := slog.LevelInfo
	if !result.Succeeded && !result.Skipped {
		level = slog.LevelWarn
	}
	if result.Step == model.StepForcePublish && r.outcome.ManualIntervention {
		level = slog.LevelError
	}
	if result.Step == model.StepRestore && r.outcome.StashRetained {
		level = slog.LevelError
	}
	r.log.Log(context.Background(), level, "step finished",
		"step", result.Step,
		"succeeded", result.Succeeded,
		"skipped", result.Skipped,
		"message", result.Message,
	)
}

// isStartFailure reports whether err means git could not be started, as
// opposed to git running and failing. The runner reports start failures
// as CLIErrors.
func isStartFailure(err error) bool {
	var cliErr *model.CLIError
	return errors.As(err, &cliErr)
}

// reason picks the most telling line of a failed command's output: the
// rejected ref line of a push, else the first error or fatal line, else
// the first line.
func reason(res model.CommandResult) string {
	lines := strings.Split(res.Combined(), "\n")
	for _, line := range lines {
		if strings.Contains(line, "[rejected]") || strings.Contains(line, "[remote rejected]") {
			return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "! "))
		}
	}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "error:") || strings.HasPrefix(line, "fatal:") {
			return line
		}
	}
	if summary := res.Summary(); summary != "" {
		return summary
	}
	return fmt.Sprintf("exit status %d", res.ExitCode)
}

// shortHash abbreviates a commit hash for narrative output.
func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}

func leaseLabel(observed string) string {
	if observed == "" {
		return "(branch absent)"
	}
	return shortHash(observed)
}
