package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/shinji-kodama/gitsync/internal/model"
)

// Manager provides typed Git queries for a single repository on top of a
// Runner. Mutating workflow steps call Git directly; Manager covers the
// places where output has to be interpreted.
type Manager struct {
	runner Runner
	dir    string
	refs   RefReader
}

// NewManager creates a Manager for the repository at dir.
func NewManager(runner Runner, dir string) *Manager {
	return &Manager{runner: runner, dir: dir, refs: goGitRefReader{}}
}

// WithRefReader replaces the reader used by ObserveRemoteRef and returns m.
func (m *Manager) WithRefReader(refs RefReader) *Manager {
	m.refs = refs
	return m
}

// Dir returns the repository working directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Git runs an arbitrary git command in the repository directory.
func (m *Manager) Git(ctx context.Context, args ...string) (model.CommandResult, error) {
	return m.runner.Run(ctx, m.dir, args...)
}

// IsRepository reports whether dir is inside a Git working tree.
func (m *Manager) IsRepository(ctx context.Context) bool {
	res, err := m.Git(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && res.Succeeded && strings.TrimSpace(res.Stdout) == "true"
}

// RevParse resolves rev to a commit hash. The boolean is false when the
// revision does not exist; that is not an error.
func (m *Manager) RevParse(ctx context.Context, rev string) (string, bool, error) {
	res, err := m.Git(ctx, "rev-parse", "-q", "--verify", rev)
	if err != nil {
		return "", false, err
	}
	if !res.Succeeded {
		return "", false, nil
	}
	return strings.TrimSpace(res.Stdout), true, nil
}

// StashRef returns the commit refs/stash points to, or "" when the stash
// is empty. Comparing the value before and after `git stash push` is how
// the workflow detects that nothing was saved.
func (m *Manager) StashRef(ctx context.Context) (string, error) {
	hash, _, err := m.RevParse(ctx, "refs/stash")
	return hash, err
}

// StashUntrackedPaths lists the untracked files saved in stash, relative
// to the repository root. A stash created without untracked files has no
// third parent and yields nil.
func (m *Manager) StashUntrackedPaths(ctx context.Context, stash string) ([]string, error) {
	untracked := stash + "^3"
	if _, ok, err := m.RevParse(ctx, untracked); err != nil || !ok {
		return nil, err
	}

	res, err := m.Git(ctx, "ls-tree", "-r", "-z", "--full-tree", "--name-only", untracked)
	if err != nil {
		return nil, err
	}
	if !res.Succeeded {
		return nil, fmt.Errorf("listing untracked files of %s failed: %s", stash, res.Summary())
	}

	var paths []string
	for _, p := range strings.Split(res.Stdout, "\x00") {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// RemoveWorktreeFiles deletes root-relative paths from the working tree
// without touching the index. Paths that do not exist are ignored.
func (m *Manager) RemoveWorktreeFiles(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	root, err := m.TopLevel(ctx)
	if err != nil {
		return err
	}
	if root == "" {
		return errors.New("working tree root is unknown")
	}

	for _, p := range paths {
		err := os.Remove(filepath.Join(root, filepath.FromSlash(p)))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Status returns `git status --porcelain` output. Empty means clean.
func (m *Manager) Status(ctx context.Context) (string, error) {
	res, err := m.Git(ctx, "status", "--porcelain")
	if err != nil {
		return "", err
	}
	if !res.Succeeded {
		return "", fmt.Errorf("git status failed: %s", res.Summary())
	}
	return res.Stdout, nil
}

// UnmergedPaths lists paths with unresolved conflict stages in the index.
//
// The -z form is used so that paths containing spaces or quotes come back
// verbatim instead of C-quoted.
func (m *Manager) UnmergedPaths(ctx context.Context) ([]string, error) {
	res, err := m.Git(ctx, "diff", "--name-only", "--diff-filter=U", "-z")
	if err != nil {
		return nil, err
	}
	if !res.Succeeded {
		return nil, fmt.Errorf("listing unmerged paths failed: %s", res.Summary())
	}

	var paths []string
	seen := make(map[string]bool)
	for _, p := range strings.Split(res.Stdout, "\x00") {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		paths = append(paths, p)
	}
	return paths, nil
}

// HasStagedChanges reports whether the index differs from HEAD.
//
// `git diff --cached --quiet` exits 0 when nothing is staged and 1 when
// something is. Any other status is an error. In a repository without
// commits every staged file counts as a change, which is also what git
// reports.
func (m *Manager) HasStagedChanges(ctx context.Context) (bool, error) {
	res, err := m.Git(ctx, "diff", "--cached", "--quiet")
	if err != nil {
		return false, err
	}
	switch {
	case res.Succeeded:
		return false, nil
	case res.ExitCode == 1:
		return true, nil
	default:
		return false, fmt.Errorf("git diff --cached failed: %s", res.Summary())
	}
}

// ObserveRemoteRef returns the commit the remote-tracking branch
// remote/branch currently points to, or "" when it does not exist.
//
// go-git is tried first; when it cannot open the repository (for
// example a repository format it does not support) the value is read
// with `git rev-parse` instead.
func (m *Manager) ObserveRemoteRef(ctx context.Context, remote, branch string) (string, error) {
	if m.refs != nil {
		if hash, err := m.refs.RemoteRef(m.dir, remote, branch); err == nil {
			return hash, nil
		}
	}

	hash, _, err := m.RevParse(ctx, "refs/remotes/"+remote+"/"+branch)
	return hash, err
}

// SummarizeStatus condenses porcelain status output into counts, e.g.
// "2 modified, 1 added". It returns "no changes" for clean output.
func SummarizeStatus(porcelain string) string {
	trimmed := strings.TrimRight(porcelain, "\n")
	if strings.TrimSpace(trimmed) == "" {
		return "no changes"
	}

	lines := strings.Split(trimmed, "\n")
	var modified, added, deleted, conflicted int
	for _, line := range lines {
		if len(line) < 2 {
			continue
		}
		status := line[:2]
		switch {
		case strings.Contains(status, "U") || status == "AA" || status == "DD":
			conflicted++
		case strings.Contains(status, "M") || strings.Contains(status, "R"):
			modified++
		case strings.Contains(status, "A") || strings.Contains(status, "?"):
			added++
		case strings.Contains(status, "D"):
			deleted++
		}
	}

	var parts []string
	if modified > 0 {
		parts = append(parts, fmt.Sprintf("%d modified", modified))
	}
	if added > 0 {
		parts = append(parts, fmt.Sprintf("%d added", added))
	}
	if deleted > 0 {
		parts = append(parts, fmt.Sprintf("%d deleted", deleted))
	}
	if conflicted > 0 {
		parts = append(parts, fmt.Sprintf("%d conflicted", conflicted))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%d changes", len(lines))
	}
	return strings.Join(parts, ", ")
}
