package repo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/shinji-kodama/gitsync/internal/model"
)

// DefaultBinary is the git executable name looked up on PATH.
const DefaultBinary = "git"

// fallbackBinaryPaths are probed when git is not on PATH. Shells started
// by editors and agents often run with a reduced PATH that still has git
// installed in one of these locations.
var fallbackBinaryPaths = []string{
	"/usr/bin/git",
	"/usr/local/bin/git",
	"/opt/homebrew/bin/git",
}

// Runner is the command runner capability consumed by the sync workflow.
//
// Run executes git with args in dir. A non-zero exit status is reported
// through CommandResult.Succeeded and ExitCode, never as an error. The
// error return is reserved for failures to start the process at all
// (binary missing, context cancelled before start).
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (model.CommandResult, error)
}

// ExecRunner runs the real git binary via os/exec.
type ExecRunner struct {
	// Binary is the git executable. Empty means DefaultBinary.
	Binary string

	// Env holds extra environment variables appended to the current
	// process environment.
	Env map[string]string

	// Stdout and Stderr, when set, receive a live copy of the command
	// output in addition to it being captured. The passthrough command
	// uses them to stream git output to the terminal.
	Stdout io.Writer
	Stderr io.Writer

	// Stdin is connected to the command when set.
	Stdin io.Reader

	// Logger receives one debug record per invocation. Nil disables logging.
	Logger *slog.Logger
}

// NewExecRunner creates an ExecRunner for the given binary.
func NewExecRunner(binary string, logger *slog.Logger) *ExecRunner {
	return &ExecRunner{Binary: binary, Logger: logger}
}

// Run executes git with the given arguments in dir.
//
// The directory is passed to git via the -C flag, which causes git to
// change to that directory before doing anything else. This avoids
// changing the process's working directory.
func (r *ExecRunner) Run(ctx context.Context, dir string, args ...string) (model.CommandResult, error) {
	binary := r.Binary
	if binary == "" {
		binary = DefaultBinary
	}

	fullArgs := args
	if dir != "" {
		fullArgs = append([]string{"-C", dir}, args...)
	}

	// #nosec G204: the binary is resolved from configuration, args are
	// either fixed workflow arguments or forwarded verbatim by the user.
	cmd := exec.CommandContext(ctx, binary, fullArgs...)
	if len(r.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range r.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}
	if r.Stdin != nil {
		cmd.Stdin = r.Stdin
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = teeWriter(&stdout, r.Stdout)
	cmd.Stderr = teeWriter(&stderr, r.Stderr)

	start := time.Now()
	runErr := cmd.Run()
	result := model.CommandResult{
		Args:      append([]string(nil), args...),
		Succeeded: runErr == nil,
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  time.Since(start),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			// Binary not found, permission denied, or context cancelled
			// before the process could start.
			return result, model.WrapCLIError(model.ExitGitError,
				fmt.Sprintf("failed to execute %s %s", binary, strings.Join(args, " ")), runErr)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	if r.Logger != nil {
		r.Logger.Debug("git command finished",
			"args", strings.Join(args, " "),
			"dir", dir,
			"exit_code", result.ExitCode,
			"duration", result.Duration,
		)
	}

	return result, nil
}

// teeWriter returns buf alone when extra is nil, otherwise a writer that
// duplicates into both.
func teeWriter(buf *bytes.Buffer, extra io.Writer) io.Writer {
	if extra == nil {
		return buf
	}
	return io.MultiWriter(buf, extra)
}

// ResolveBinary turns a configured git binary into an executable path.
//
// An explicit path (containing a separator) must exist. A bare name is
// looked up on PATH first; if that fails the well-known install
// locations are probed before giving up.
func ResolveBinary(name string) (string, error) {
	if name == "" {
		name = DefaultBinary
	}

	if strings.ContainsRune(name, filepath.Separator) {
		info, err := os.Stat(name)
		if err != nil {
			return "", model.WrapCLIError(model.ExitGitError, fmt.Sprintf("git binary %s not found", name), err)
		}
		if info.IsDir() {
			return "", model.NewCLIError(model.ExitGitError, fmt.Sprintf("git binary %s is a directory", name))
		}
		return name, nil
	}

	path, err := exec.LookPath(name)
	if err == nil {
		return path, nil
	}

	if name == DefaultBinary {
		for _, candidate := range fallbackBinaryPaths {
			if info, statErr := os.Stat(candidate); statErr == nil && !info.IsDir() {
				return candidate, nil
			}
		}
	}

	return "", model.WrapCLIError(model.ExitGitError, fmt.Sprintf("git binary %q not found on PATH", name), err)
}
