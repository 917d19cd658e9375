// Package model defines the domain types for the gitsync CLI.
//
// The types in this package describe the outcome of running external git
// commands and of the sync-and-publish workflow as a whole. They are passed
// between the repo, publish and cli packages and are never persisted.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Policy selects how local history is reconciled with the remote branch
// after fetching. Exactly one policy is active per run; the choice is a
// configuration input and never changes at runtime.
type Policy string

const (
	// PolicyHardReset discards local history divergence and makes the
	// local branch match the remote-tracking branch exactly. Uncommitted
	// work survives because it was stashed beforehand.
	PolicyHardReset Policy = "hard-reset"

	// PolicyMerge performs a three-way merge of the remote-tracking branch
	// into local history. Conflicts are resolved by preferring the local
	// version of every conflicting path.
	PolicyMerge Policy = "merge"
)

// String returns the string representation of Policy.
func (p Policy) String() string {
	return string(p)
}

// IsValid checks whether the Policy value is one of the predefined policies.
func (p Policy) IsValid() bool {
	switch p {
	case PolicyHardReset, PolicyMerge:
		return true
	default:
		return false
	}
}

// ParsePolicy converts a string to a Policy. Matching is case-insensitive
// and "reset" is accepted as a shorthand for hard-reset.
func ParsePolicy(s string) (Policy, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if normalized == "reset" {
		normalized = string(PolicyHardReset)
	}
	policy := Policy(normalized)
	if !policy.IsValid() {
		return "", fmt.Errorf("invalid sync policy: %q (valid: hard-reset, merge)", s)
	}
	return policy, nil
}

// CommandResult is the captured outcome of one git invocation.
//
// A non-zero exit status is not an error: it is reported through
// Succeeded=false and ExitCode so that callers can branch on it.
type CommandResult struct {
	// Args are the arguments passed to git, excluding the binary itself.
	Args []string `json:"args"`

	// Succeeded is true when the process exited with status 0.
	Succeeded bool `json:"succeeded"`

	// ExitCode is the process exit status.
	ExitCode int `json:"exitCode"`

	// Stdout is everything the command wrote to standard output.
	Stdout string `json:"stdout,omitempty"`

	// Stderr is everything the command wrote to standard error.
	Stderr string `json:"stderr,omitempty"`

	// Duration is the wall-clock time the command took.
	Duration time.Duration `json:"duration"`
}

// Combined returns stdout followed by stderr. Git prints merge conflict
// notices on either stream depending on the subcommand, so substring
// checks look at both.
func (r CommandResult) Combined() string {
	return r.Stdout + r.Stderr
}

// Summary returns the first non-empty line of stderr, or of stdout when
// stderr is empty. It is used for one-line progress messages.
func (r CommandResult) Summary() string {
	for _, stream := range []string{r.Stderr, r.Stdout} {
		for _, line := range strings.Split(stream, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				return line
			}
		}
	}
	return ""
}

// StepName identifies one step of the sync-and-publish workflow.
type StepName string

// Workflow steps, in execution order.
const (
	StepConfigure    StepName = "configure"
	StepSave         StepName = "save"
	StepFetch        StepName = "fetch"
	StepReconcile    StepName = "reconcile"
	StepResolve      StepName = "resolve"
	StepRestore      StepName = "restore"
	StepStage        StepName = "stage"
	StepCommit       StepName = "commit"
	StepPublish      StepName = "publish"
	StepForcePublish StepName = "force-publish"
	StepStatus       StepName = "status"
)

// String returns the string representation of StepName.
func (s StepName) String() string {
	return string(s)
}

// StepResult records how a single workflow step went.
type StepResult struct {
	// Step is the workflow step this result belongs to.
	Step StepName `json:"step"`

	// Succeeded is false when the underlying command failed.
	Succeeded bool `json:"succeeded"`

	// Skipped is true when the step had nothing to do (empty holding
	// area, nothing staged) or was not needed (force publish after a
	// successful push is never recorded at all).
	Skipped bool `json:"skipped,omitempty"`

	// Message is a short human-readable description of the result.
	Message string `json:"message,omitempty"`
}

// WorkflowOutcome is computed once, at the end of a sync-and-publish run.
type WorkflowOutcome struct {
	// RunID correlates log records, trace spans and the stash entry
	// created by this run.
	RunID string `json:"runId"`

	// Policy is the reconciliation policy that was active.
	Policy Policy `json:"policy"`

	// Published is true when either the standard push or the
	// force-with-lease push succeeded.
	Published bool `json:"published"`

	// ForcedPublish is true when publishing required the
	// force-with-lease fallback.
	ForcedPublish bool `json:"forcedPublish"`

	// RemainingChanges is the porcelain status output after the run.
	// Empty means the working tree is clean.
	RemainingChanges string `json:"remainingChanges"`

	// Committed is true when the run created a commit from local work.
	Committed bool `json:"committed"`

	// ConflictResolved is true when the merge policy hit conflicts and
	// resolved them in favour of the local version.
	ConflictResolved bool `json:"conflictResolved"`

	// ManualIntervention is true when the force-with-lease fallback
	// failed or was declined. No further remediation is attempted.
	ManualIntervention bool `json:"manualIntervention"`

	// StashRetained is true when local changes saved by this run could not
	// be restored. They are still in the stash and were not published.
	StashRetained bool `json:"stashRetained"`

	// ObservedRemote is the remote branch commit observed right after
	// fetching. It is the lease value for the force push; empty when the
	// remote branch did not exist.
	ObservedRemote string `json:"observedRemote,omitempty"`

	// Steps lists every executed step in order.
	Steps []StepResult `json:"steps"`
}

// Succeeded reports whether the run fully succeeded: the branch was
// published and no modifications are pending in the working tree. A run
// that left saved work in the stash, or whose final status query failed,
// is never reported as successful.
func (o *WorkflowOutcome) Succeeded() bool {
	if o.StashRetained {
		return false
	}
	if status, ok := o.Step(StepStatus); ok && !status.Succeeded {
		return false
	}
	return o.Published && strings.TrimSpace(o.RemainingChanges) == ""
}

// RemainingPaths returns the paths listed in RemainingChanges.
//
// Porcelain v1 lines look like "XY path" or "XY orig -> path" for renames;
// the path after the arrow is the one present in the working tree.
func (o *WorkflowOutcome) RemainingPaths() []string {
	var paths []string
	for _, line := range strings.Split(o.RemainingChanges, "\n") {
		if len(strings.TrimSpace(line)) == 0 || len(line) < 4 {
			continue
		}
		path := line[3:]
		if _, after, ok := strings.Cut(path, " -> "); ok {
			path = after
		}
		paths = append(paths, strings.Trim(path, `"`))
	}
	return paths
}

// Step returns the result recorded for the given step, if any. When a step
// was recorded more than once the last record wins.
func (o *WorkflowOutcome) Step(name StepName) (StepResult, bool) {
	for i := len(o.Steps) - 1; i >= 0; i-- {
		if o.Steps[i].Step == name {
			return o.Steps[i], true
		}
	}
	return StepResult{}, false
}

// ExitCode defines standard CLI exit codes. These codes allow scripts and
// CI systems to programmatically determine the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error or a usage error.
	ExitGeneralError ExitCode = 1

	// ExitConfigError indicates the configuration file or flags were invalid.
	ExitConfigError ExitCode = 2

	// ExitGitError indicates the git binary could not be started.
	ExitGitError ExitCode = 5

	// ExitChangesRemain indicates the branch was published but the
	// working tree still has pending modifications.
	ExitChangesRemain ExitCode = 6

	// ExitUserCancelled indicates the user cancelled an interactive prompt.
	ExitUserCancelled ExitCode = 7

	// ExitManualIntervention indicates publishing failed even with the
	// force-with-lease fallback.
	ExitManualIntervention ExitCode = 8
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}

// ExitCodeError carries a raw exit status from a passthrough git command.
// Unlike CLIError it prints nothing: git already wrote its own output.
type ExitCodeError struct {
	Code int
}

// Error satisfies the error interface.
func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("git exited with status %d", e.Code)
}
