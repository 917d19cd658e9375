package publish

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/gitsync/internal/gittest"
	"github.com/shinji-kodama/gitsync/internal/model"
	"github.com/shinji-kodama/gitsync/internal/repo"
)

// setupSync creates a bare remote and a clone of it to synchronize.
func setupSync(t *testing.T) (remote, local string) {
	t.Helper()
	remote = gittest.NewRemote(t)
	local = gittest.Clone(t, remote)
	return remote, local
}

func runSync(t *testing.T, runner repo.Runner, dir string, policy model.Policy, message string) *model.WorkflowOutcome {
	t.Helper()

	p := New(runner, Options{Policy: policy})
	outcome, err := p.Run(context.Background(), dir, message)
	require.NoError(t, err)
	return outcome
}

func execRunner() repo.Runner {
	return repo.NewExecRunner("", nil)
}

// TestRun_UnrelatedRemoteCommit covers the everyday case under both
// policies: an uncommitted local file and an unrelated new remote commit.
func TestRun_UnrelatedRemoteCommit(t *testing.T) {
	for _, policy := range []model.Policy{model.PolicyHardReset, model.PolicyMerge} {
		t.Run(policy.String(), func(t *testing.T) {
			remote, local := setupSync(t)
			remoteCommit := gittest.PushFile(t, remote, "b.txt", "remote\n", "add b.txt")
			gittest.WriteFile(t, local, "a.txt", "local\n")

			outcome := runSync(t, execRunner(), local, policy, "Add a.txt")

			assert.True(t, outcome.Succeeded(), "steps: %+v", outcome.Steps)
			assert.True(t, outcome.Published)
			assert.False(t, outcome.ForcedPublish)
			assert.True(t, outcome.Committed)
			assert.Empty(t, outcome.RemainingChanges)

			assert.Equal(t, "local\n", gittest.ReadFile(t, local, "a.txt"))
			assert.Equal(t, "remote\n", gittest.ReadFile(t, local, "b.txt"))
			gittest.Run(t, local, "merge-base", "--is-ancestor", remoteCommit, "HEAD")

			assert.Equal(t, "Add a.txt", gittest.Output(t, local, "log", "-1", "--format=%s"))
			assert.Equal(t, gittest.Head(t, local, "HEAD"), gittest.Head(t, remote, gittest.Branch))
			assert.Empty(t, gittest.Output(t, local, "stash", "list"))
		})
	}
}

// TestRun_Idempotent verifies that a second run with no new changes
// creates no commit and still reports a clean tree.
func TestRun_Idempotent(t *testing.T) {
	for _, policy := range []model.Policy{model.PolicyHardReset, model.PolicyMerge} {
		t.Run(policy.String(), func(t *testing.T) {
			remote, local := setupSync(t)
			gittest.WriteFile(t, local, "notes/today.md", "- sync\n")

			first := runSync(t, execRunner(), local, policy, "Sync notes")
			require.True(t, first.Succeeded(), "steps: %+v", first.Steps)
			require.True(t, first.Committed)
			headAfterFirst := gittest.Head(t, local, "HEAD")

			second := runSync(t, execRunner(), local, policy, "Sync notes")
			assert.True(t, second.Succeeded(), "steps: %+v", second.Steps)
			assert.False(t, second.Committed)
			assert.Empty(t, second.RemainingChanges)
			assert.Equal(t, headAfterFirst, gittest.Head(t, local, "HEAD"))
			assert.Equal(t, headAfterFirst, gittest.Head(t, remote, gittest.Branch))

			save, _ := second.Step(model.StepSave)
			assert.True(t, save.Skipped)
		})
	}
}

// TestRun_NoOpSafety verifies that save and restore leave a clean tree
// untouched, and that a stash entry older than the run survives.
func TestRun_NoOpSafety(t *testing.T) {
	_, local := setupSync(t)

	gittest.WriteFile(t, local, "README.md", "stashed by hand\n")
	gittest.Run(t, local, "stash", "push", "-m", "manual")
	before := gittest.Output(t, local, "stash", "list")
	headBefore := gittest.Head(t, local, "HEAD")

	outcome := runSync(t, execRunner(), local, model.PolicyHardReset, "noop")

	assert.True(t, outcome.Succeeded(), "steps: %+v", outcome.Steps)
	assert.False(t, outcome.Committed)
	assert.Equal(t, "# Test Repo\n", gittest.ReadFile(t, local, "README.md"))
	assert.Equal(t, headBefore, gittest.Head(t, local, "HEAD"))
	assert.Equal(t, before, gittest.Output(t, local, "stash", "list"), "older stash entry left alone")

	restore, _ := outcome.Step(model.StepRestore)
	assert.True(t, restore.Skipped)
}

// TestRun_MergeConflictKeepsLocal verifies deterministic conflict
// resolution: the local content wins and exactly one resolution commit is
// created and published.
func TestRun_MergeConflictKeepsLocal(t *testing.T) {
	remote, local := setupSync(t)
	remoteCommit := gittest.PushFile(t, remote, "config.txt", "remote value\n", "remote edit")
	gittest.CommitFile(t, local, "config.txt", "local value\n", "local edit")

	outcome := runSync(t, execRunner(), local, model.PolicyMerge, "unused")

	assert.True(t, outcome.ConflictResolved, "steps: %+v", outcome.Steps)
	assert.True(t, outcome.Succeeded(), "steps: %+v", outcome.Steps)
	assert.False(t, outcome.Committed, "nothing left to commit after the resolution")
	assert.Equal(t, "local value\n", gittest.ReadFile(t, local, "config.txt"))

	subjects := gittest.Output(t, local, "log", "--format=%s")
	assert.Equal(t, 1, strings.Count(subjects, MergeResolutionMessage))
	assert.Equal(t, MergeResolutionMessage, gittest.Output(t, local, "log", "-1", "--format=%s"))
	assert.Equal(t, remoteCommit, gittest.Head(t, local, "HEAD^2"))
	assert.Equal(t, gittest.Head(t, local, "HEAD"), gittest.Head(t, remote, gittest.Branch))
	assert.NotContains(t, gittest.ReadFile(t, local, "config.txt"), "<<<<<<<")
}

// TestRun_MergeConflictWithSavedWork combines a committed conflict with
// uncommitted work in another file.
func TestRun_MergeConflictWithSavedWork(t *testing.T) {
	remote, local := setupSync(t)
	gittest.PushFile(t, remote, "shared.txt", "theirs\n", "remote edit")
	gittest.CommitFile(t, local, "shared.txt", "ours\n", "local edit")
	gittest.WriteFile(t, local, "draft.txt", "draft\n")

	outcome := runSync(t, execRunner(), local, model.PolicyMerge, "Add draft")

	assert.True(t, outcome.Succeeded(), "steps: %+v", outcome.Steps)
	assert.True(t, outcome.ConflictResolved)
	assert.True(t, outcome.Committed)
	assert.Equal(t, "ours\n", gittest.ReadFile(t, local, "shared.txt"))
	assert.Equal(t, "draft\n", gittest.ReadFile(t, local, "draft.txt"))
	assert.Equal(t, "Add draft", gittest.Output(t, local, "log", "-1", "--format=%s"))
	assert.Equal(t, MergeResolutionMessage, gittest.Output(t, local, "log", "-1", "--format=%s", "HEAD^"))
}

// TestRun_HardResetRestoreConflict verifies that uncommitted edits win
// over a remote change to the same file after a hard reset, without
// leaving conflict markers or a stash entry behind.
func TestRun_HardResetRestoreConflict(t *testing.T) {
	remote, local := setupSync(t)
	gittest.PushFile(t, remote, "README.md", "# Remote title\n", "retitle")
	gittest.WriteFile(t, local, "README.md", "# Local title\n")

	outcome := runSync(t, execRunner(), local, model.PolicyHardReset, "Retitle locally")

	assert.True(t, outcome.Succeeded(), "steps: %+v", outcome.Steps)
	assert.Equal(t, "# Local title\n", gittest.ReadFile(t, local, "README.md"))
	assert.Empty(t, gittest.Output(t, local, "stash", "list"))
	assert.Equal(t, "Retitle locally", gittest.Output(t, local, "log", "-1", "--format=%s"))
	assert.Equal(t, gittest.Head(t, local, "HEAD"), gittest.Head(t, remote, gittest.Branch))
}

// TestRun_UntrackedFileNowTrackedByRemote covers a saved untracked file
// whose name the remote has since started tracking. The pop stops without
// conflict stages; the saved version must still win and be published,
// with no stash entry left behind.
func TestRun_UntrackedFileNowTrackedByRemote(t *testing.T) {
	for _, policy := range []model.Policy{model.PolicyHardReset, model.PolicyMerge} {
		t.Run(policy.String(), func(t *testing.T) {
			remote, local := setupSync(t)
			gittest.PushFile(t, remote, "b.txt", "remote\n", "add b.txt")
			gittest.WriteFile(t, local, "b.txt", "local\n")
			gittest.WriteFile(t, local, "README.md", "# Edited\n")

			outcome := runSync(t, execRunner(), local, policy, "Keep local b.txt")

			assert.True(t, outcome.Succeeded(), "steps: %+v", outcome.Steps)
			assert.False(t, outcome.StashRetained)
			assert.True(t, outcome.Committed)
			assert.Equal(t, "local\n", gittest.ReadFile(t, local, "b.txt"))
			assert.Equal(t, "# Edited\n", gittest.ReadFile(t, local, "README.md"))
			assert.Empty(t, gittest.Output(t, local, "stash", "list"))
			assert.Equal(t, gittest.Head(t, local, "HEAD"), gittest.Head(t, remote, gittest.Branch))
			assert.Equal(t, "local", gittest.Output(t, remote, "show", gittest.Branch+":b.txt"))
		})
	}
}

// TestRun_HardResetDiscardsUnpublishedCommits documents the data-losing
// side of the hard-reset policy: local commits that were never pushed are
// dropped, uncommitted work is kept.
func TestRun_HardResetDiscardsUnpublishedCommits(t *testing.T) {
	remote, local := setupSync(t)
	remoteCommit := gittest.PushFile(t, remote, "b.txt", "remote\n", "remote work")
	gittest.CommitFile(t, local, "c.txt", "committed locally\n", "local commit")
	gittest.WriteFile(t, local, "a.txt", "uncommitted\n")

	outcome := runSync(t, execRunner(), local, model.PolicyHardReset, "Sync")

	assert.True(t, outcome.Succeeded(), "steps: %+v", outcome.Steps)
	assert.False(t, outcome.ForcedPublish)
	assert.Equal(t, "uncommitted\n", gittest.ReadFile(t, local, "a.txt"))
	assert.NoFileExists(t, filepath.Join(local, "c.txt"))
	assert.Equal(t, remoteCommit, gittest.Head(t, local, "HEAD^"))
}

// advancingRunner pushes a commit from another clone right before the
// first plain push, simulating a concurrent publisher.
type advancingRunner struct {
	repo.Runner
	advance func()
	done    bool
}

func (a *advancingRunner) Run(ctx context.Context, dir string, args ...string) (model.CommandResult, error) {
	if !a.done && len(args) == 3 && args[0] == "push" && args[1] == "origin" {
		a.done = true
		a.advance()
	}
	return a.Runner.Run(ctx, dir, args...)
}

// TestRun_ForcePublishFailsClosed verifies that when the remote moves
// after fetching, the force-with-lease fallback refuses to overwrite it.
func TestRun_ForcePublishFailsClosed(t *testing.T) {
	remote, local := setupSync(t)
	gittest.WriteFile(t, local, "a.txt", "local\n")

	var concurrent string
	runner := &advancingRunner{
		Runner: execRunner(),
		advance: func() {
			concurrent = gittest.PushFile(t, remote, "other.txt", "someone else\n", "concurrent push")
		},
	}

	outcome := runSync(t, runner, local, model.PolicyHardReset, "Add a.txt")

	assert.False(t, outcome.Published)
	assert.False(t, outcome.ForcedPublish)
	assert.True(t, outcome.ManualIntervention)
	assert.False(t, outcome.Succeeded())

	force, ok := outcome.Step(model.StepForcePublish)
	require.True(t, ok)
	assert.False(t, force.Succeeded)
	assert.Contains(t, force.Message, "manual intervention needed")

	assert.Equal(t, concurrent, gittest.Head(t, remote, gittest.Branch), "remote keeps the concurrent commit")
}

// TestRun_PublishesNewBranch verifies publishing to a remote branch that
// does not exist yet.
func TestRun_PublishesNewBranch(t *testing.T) {
	remote, local := setupSync(t)
	gittest.Run(t, local, "checkout", "-b", "feature")
	gittest.WriteFile(t, local, "feature.txt", "new\n")

	p := New(execRunner(), Options{Branch: "feature"})
	outcome, err := p.Run(context.Background(), local, "Start feature")
	require.NoError(t, err)

	assert.True(t, outcome.Succeeded(), "steps: %+v", outcome.Steps)
	assert.Empty(t, outcome.ObservedRemote)
	assert.Equal(t, gittest.Head(t, local, "HEAD"), gittest.Head(t, remote, "feature"))
}

// TestRun_RefusesOtherBranch verifies that a run on a branch other than
// the publish branch changes nothing: the branch keeps its commits, local
// work stays in place and the remote is untouched.
func TestRun_RefusesOtherBranch(t *testing.T) {
	remote, local := setupSync(t)
	remoteHead := gittest.Head(t, remote, gittest.Branch)

	gittest.Run(t, local, "checkout", "-b", "feature")
	featureCommit := gittest.CommitFile(t, local, "feature.txt", "feature\n", "feature commit")
	gittest.WriteFile(t, local, "a.txt", "untracked\n")

	outcome, err := New(execRunner(), Options{}).Run(context.Background(), local, "Sync")
	assert.Nil(t, outcome)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitConfigError, cliErr.Code)

	assert.Equal(t, featureCommit, gittest.Head(t, local, "HEAD"))
	assert.Equal(t, "untracked\n", gittest.ReadFile(t, local, "a.txt"))
	assert.Empty(t, gittest.Output(t, local, "stash", "list"))
	assert.Equal(t, remoteHead, gittest.Head(t, remote, gittest.Branch))
}

func TestRun_RefusesDetachedHead(t *testing.T) {
	remote, local := setupSync(t)
	remoteHead := gittest.Head(t, remote, gittest.Branch)
	gittest.Run(t, local, "checkout", "--detach")

	_, err := New(execRunner(), Options{}).Run(context.Background(), local, "Sync")

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Contains(t, cliErr.Message, "HEAD is detached")
	assert.Equal(t, remoteHead, gittest.Head(t, remote, gittest.Branch))
}
