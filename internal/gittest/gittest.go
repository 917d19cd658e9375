// Package gittest builds throwaway Git repositories for tests.
//
// Every helper fails the test immediately when a git command fails, which
// keeps fixture setup in test functions free of repetitive error checks.
// Repositories live under t.TempDir() and are removed automatically.
package gittest

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Branch is the branch every fixture repository uses.
const Branch = "main"

// Run runs a git command in dir and returns its combined output.
func Run(t testing.TB, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v failed: %s", args, string(output))
	return string(output)
}

// Output runs a git command in dir and returns its trimmed stdout.
func Output(t testing.TB, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	output, err := cmd.Output()
	require.NoError(t, err, "git %v failed", args)
	return strings.TrimSpace(string(output))
}

// configureIdentity sets a repo-local identity so that `git commit` and
// `git stash` work in CI environments without a global Git configuration.
func configureIdentity(t testing.TB, dir string) {
	t.Helper()

	Run(t, dir, "config", "user.email", "test@example.com")
	Run(t, dir, "config", "user.name", "Test User")
	Run(t, dir, "config", "commit.gpgsign", "false")
}

// InitRepo creates a standalone repository on branch main with a single
// commit containing README.md.
func InitRepo(t testing.TB) string {
	t.Helper()

	dir := t.TempDir()
	Run(t, dir, "init")
	// symbolic-ref instead of `init -b` keeps the fixtures working with
	// Git versions older than 2.28.
	Run(t, dir, "symbolic-ref", "HEAD", "refs/heads/"+Branch)
	configureIdentity(t, dir)

	WriteFile(t, dir, "README.md", "# Test Repo\n")
	Run(t, dir, "add", ".")
	Run(t, dir, "commit", "-m", "initial commit")
	return dir
}

// NewRemote creates a bare repository seeded with the commit from
// InitRepo and returns its path.
func NewRemote(t testing.TB) string {
	t.Helper()

	bare := filepath.Join(t.TempDir(), "remote.git")
	require.NoError(t, os.MkdirAll(bare, 0o755))
	Run(t, bare, "init", "--bare")
	Run(t, bare, "symbolic-ref", "HEAD", "refs/heads/"+Branch)

	seed := InitRepo(t)
	Run(t, seed, "remote", "add", "origin", bare)
	Run(t, seed, "push", "origin", Branch)
	return bare
}

// Clone clones remote into a fresh directory and configures an identity.
func Clone(t testing.TB, remote string) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "clone")
	cmd := exec.Command("git", "clone", remote, dir)
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "git clone failed: %s", string(output))

	configureIdentity(t, dir)
	return dir
}

// CommitFile writes a file, commits it and returns the new HEAD hash.
func CommitFile(t testing.TB, dir, name, content, message string) string {
	t.Helper()

	WriteFile(t, dir, name, content)
	Run(t, dir, "add", "--", name)
	Run(t, dir, "commit", "-m", message)
	return Output(t, dir, "rev-parse", "HEAD")
}

// PushFile commits a file in a separate clone of remote and pushes it,
// simulating another developer advancing the remote branch. It returns
// the pushed commit hash.
func PushFile(t testing.TB, remote, name, content, message string) string {
	t.Helper()

	other := Clone(t, remote)
	hash := CommitFile(t, other, name, content, message)
	Run(t, other, "push", "origin", Branch)
	return hash
}

// WriteFile writes content to dir/name, creating parent directories.
func WriteFile(t testing.TB, dir, name, content string) {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// ReadFile returns the content of dir/name.
func ReadFile(t testing.TB, dir, name string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(data)
}

// Head returns the commit hash of rev in dir.
func Head(t testing.TB, dir, rev string) string {
	t.Helper()
	return Output(t, dir, "rev-parse", rev)
}

// CommitCount returns the number of commits reachable from rev.
func CommitCount(t testing.TB, dir, rev string) string {
	t.Helper()
	return Output(t, dir, "rev-list", "--count", rev)
}
