package repo

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/gitsync/internal/gittest"
	"github.com/shinji-kodama/gitsync/internal/model"
)

// TestExecRunner_Success verifies that a successful command reports
// Succeeded and captures stdout.
func TestExecRunner_Success(t *testing.T) {
	dir := gittest.InitRepo(t)
	r := NewExecRunner("", nil)

	res, err := r.Run(context.Background(), dir, "rev-parse", "--abbrev-ref", "HEAD")
	require.NoError(t, err)
	assert.True(t, res.Succeeded)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "main\n", res.Stdout)
	assert.Equal(t, []string{"rev-parse", "--abbrev-ref", "HEAD"}, res.Args)
}

// TestExecRunner_NonZeroExit verifies that a failing git command is not
// reported as an error: the workflow decides what a failure means.
func TestExecRunner_NonZeroExit(t *testing.T) {
	dir := gittest.InitRepo(t)
	r := NewExecRunner("", nil)

	res, err := r.Run(context.Background(), dir, "rev-parse", "--verify", "does-not-exist")
	require.NoError(t, err)
	assert.False(t, res.Succeeded)
	assert.NotEqual(t, 0, res.ExitCode)
	assert.NotEmpty(t, res.Stderr)
}

// TestExecRunner_BinaryNotFound verifies that a missing binary is the one
// case that produces an error, carrying the git exit code.
func TestExecRunner_BinaryNotFound(t *testing.T) {
	r := NewExecRunner("nonexistent-git-binary-xyz", nil)

	_, err := r.Run(context.Background(), t.TempDir(), "status")
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitGitError, cliErr.Code)
}

// TestExecRunner_Tee verifies that output is streamed to the extra
// writers and still captured.
func TestExecRunner_Tee(t *testing.T) {
	dir := gittest.InitRepo(t)
	var stdout bytes.Buffer
	r := &ExecRunner{Stdout: &stdout}

	res, err := r.Run(context.Background(), dir, "log", "--format=%s", "-n", "1")
	require.NoError(t, err)
	assert.Equal(t, "initial commit\n", stdout.String())
	assert.Equal(t, stdout.String(), res.Stdout)
}

func TestExecRunner_Env(t *testing.T) {
	dir := gittest.InitRepo(t)
	r := &ExecRunner{Env: map[string]string{"GIT_AUTHOR_NAME": "Env Author"}}

	res, err := r.Run(context.Background(), dir, "var", "GIT_AUTHOR_IDENT")
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "Env Author")
}

func TestResolveBinary(t *testing.T) {
	path, err := ResolveBinary("")
	require.NoError(t, err)
	assert.NotEmpty(t, path)

	_, err = ResolveBinary("nonexistent-git-binary-xyz")
	assert.Error(t, err)

	_, err = ResolveBinary(filepath.Join(t.TempDir(), "missing", "git"))
	assert.Error(t, err)

	dirAsBinary := t.TempDir() + string(os.PathSeparator)
	_, err = ResolveBinary(dirAsBinary)
	assert.Error(t, err)
}
