package publish

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shinji-kodama/gitsync/internal/config"
	"github.com/shinji-kodama/gitsync/internal/model"
	"github.com/shinji-kodama/gitsync/internal/repo"
	"github.com/shinji-kodama/gitsync/internal/telemetry"
)

// MergeResolutionMessage is the message of the commit that resolves merge
// conflicts in favour of the local version.
const MergeResolutionMessage = "Merge remote changes - kept local version"

// Options configures a Publisher. Zero values fall back to the defaults
// of the config package.
type Options struct {
	// Remote is fetched from and pushed to.
	Remote string

	// Branch is reconciled with Remote/Branch and pushed.
	Branch string

	// Policy selects hard-reset or merge reconciliation.
	Policy model.Policy

	// Confirmer is asked before a force push that follows an automatic
	// conflict resolution. Nil means the force push proceeds unasked.
	Confirmer Confirmer

	// Narrator receives the human-readable progress narrative. Nil
	// discards it.
	Narrator Narrator

	// Logger receives one structured record per step. Nil discards them.
	Logger *slog.Logger

	// RefReader overrides how the remote branch commit is observed after
	// fetching. Nil reads it with go-git, falling back to git rev-parse.
	RefReader repo.RefReader
}

// Publisher runs the sync-and-publish workflow. A Publisher holds no
// per-run state and may be reused, but runs against the same repository
// must not overlap.
type Publisher struct {
	runner   repo.Runner
	opts     Options
	newRunID func() string
}

// New creates a Publisher that executes git through runner.
func New(runner repo.Runner, opts Options) *Publisher {
	if opts.Remote == "" {
		opts.Remote = config.DefaultRemote
	}
	if opts.Branch == "" {
		opts.Branch = config.DefaultBranch
	}
	if opts.Policy == "" {
		opts.Policy = model.PolicyHardReset
	}
	if opts.Narrator == nil {
		opts.Narrator = discardNarrator{}
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.Discard()
	}
	return &Publisher{runner: runner, opts: opts, newRunID: uuid.NewString}
}

// FromConfig builds Options from a validated configuration.
func FromConfig(cfg *config.Config) Options {
	return Options{
		Remote: cfg.Remote,
		Branch: cfg.Branch,
		Policy: cfg.Policy,
	}
}

// step pairs a workflow step with the function that executes it.
type step struct {
	name model.StepName
	fn   func(context.Context) error
}

// Run executes the workflow in repositoryPath and commits local work with
// commitMessage.
//
// Git command failures are recorded in the returned outcome and never
// returned as errors. An error is returned for an empty path or message,
// a directory that is not a Git working tree, a checkout that is not on
// the publish branch, a git binary that cannot be started, or a cancelled
// context. In the last two cases the outcome
// recorded so far is returned alongside the error.
func (p *Publisher) Run(ctx context.Context, repositoryPath, commitMessage string) (*model.WorkflowOutcome, error) {
	if strings.TrimSpace(repositoryPath) == "" {
		return nil, model.NewCLIError(model.ExitGeneralError, "repository path must not be empty")
	}
	if strings.TrimSpace(commitMessage) == "" {
		return nil, model.NewCLIError(model.ExitGeneralError, "commit message must not be empty")
	}
	if !p.opts.Policy.IsValid() {
		return nil, model.NewCLIError(model.ExitConfigError,
			fmt.Sprintf("invalid sync policy %q (valid: hard-reset, merge)", p.opts.Policy))
	}

	mgr := repo.NewManager(p.runner, repositoryPath)
	if p.opts.RefReader != nil {
		mgr.WithRefReader(p.opts.RefReader)
	}

	check, err := mgr.Git(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return nil, err
	}
	if !check.Succeeded {
		return nil, model.NewCLIError(model.ExitGitError,
			fmt.Sprintf("%s is not a git repository", repositoryPath))
	}

	if err := p.checkBranch(ctx, mgr); err != nil {
		return nil, err
	}

	runID := p.newRunID()
	ctx, span := telemetry.StartSpan(ctx, "sync", trace.WithAttributes(
		attribute.String("gitsync.run_id", runID),
		attribute.String("gitsync.policy", p.opts.Policy.String()),
		attribute.String("gitsync.remote", p.opts.Remote),
		attribute.String("gitsync.branch", p.opts.Branch),
	))
	defer span.End()

	r := &run{
		Publisher: p,
		mgr:       mgr,
		message:   commitMessage,
		log:       p.opts.Logger.With("run_id", runID),
		outcome:   &model.WorkflowOutcome{RunID: runID, Policy: p.opts.Policy},
	}

	r.log.Info("sync started",
		"dir", repositoryPath,
		"policy", p.opts.Policy,
		"remote", p.opts.Remote,
		"branch", p.opts.Branch,
	)

	steps := []step{
		{model.StepConfigure, r.configure},
		{model.StepSave, r.save},
		{model.StepFetch, r.fetch},
		{model.StepReconcile, r.reconcile},
		{model.StepRestore, r.restore},
		{model.StepStage, r.stage},
		{model.StepCommit, r.commit},
		{model.StepPublish, r.publish},
		{model.StepStatus, r.status},
	}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			telemetry.RecordError(span, err)
			return r.outcome, err
		}
		if err := r.traced(ctx, s); err != nil {
			telemetry.RecordError(span, err)
			r.log.Error("sync aborted", "step", s.name, "error", err)
			return r.outcome, err
		}
	}

	out := r.outcome
	span.SetAttributes(
		attribute.Bool("gitsync.published", out.Published),
		attribute.Bool("gitsync.forced_publish", out.ForcedPublish),
		attribute.Bool("gitsync.manual_intervention", out.ManualIntervention),
	)
	if !out.Succeeded() {
		telemetry.MarkFailed(span, "sync incomplete")
	}

	r.log.Info("sync finished",
		"published", out.Published,
		"forced_publish", out.ForcedPublish,
		"committed", out.Committed,
		"conflict_resolved", out.ConflictResolved,
		"manual_intervention", out.ManualIntervention,
		"remaining", len(out.RemainingPaths()),
	)

	return out, nil
}

// checkBranch refuses to run unless the publish branch is checked out.
// Reconcile and commit act on HEAD while the push names the branch, so
// the two must agree.
func (p *Publisher) checkBranch(ctx context.Context, mgr *repo.Manager) error {
	current, attached, err := mgr.CurrentBranch(ctx)
	if err != nil {
		if isStartFailure(err) {
			return err
		}
		return model.WrapCLIError(model.ExitGitError, "failed to read the checked-out branch", err)
	}
	if !attached {
		return model.NewCLIError(model.ExitConfigError,
			fmt.Sprintf("HEAD is detached; check out %s before syncing", p.opts.Branch))
	}
	if current != p.opts.Branch {
		return model.NewCLIError(model.ExitConfigError,
			fmt.Sprintf("%s is checked out but the publish branch is %s; check out %s or sync with --branch %s",
				current, p.opts.Branch, p.opts.Branch, current))
	}
	return nil
}

// traced runs one step inside its own span. The span is marked failed
// when the step recorded a failure.
func (r *run) traced(ctx context.Context, s step) error {
	ctx, span := telemetry.StartSpan(ctx, "sync."+s.name.String())
	defer span.End()

	err := s.fn(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if res, ok := r.outcome.Step(s.name); ok && !res.Succeeded && !res.Skipped {
		telemetry.MarkFailed(span, res.Message)
	}
	return nil
}
