// Package model defines the domain types and value objects for the
// gitsync CLI.
//
// This package contains pure data structures with no external dependencies.
// Nothing here is persisted: every CommandResult, StepResult and
// WorkflowOutcome is produced during a single run and discarded afterwards.
// All durable state lives in the Git repository that gitsync operates on.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
