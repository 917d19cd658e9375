package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TopLevel returns the absolute path of the working tree containing the
// manager's directory. For a linked worktree this is the worktree root,
// not the main checkout.
func (m *Manager) TopLevel(ctx context.Context) (string, error) {
	res, err := m.Git(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	if !res.Succeeded {
		return "", fmt.Errorf("git rev-parse --show-toplevel failed: %s", res.Summary())
	}
	return strings.TrimSpace(res.Stdout), nil
}

// CurrentBranch returns the short name of the checked-out branch. The
// boolean is false when HEAD is detached.
func (m *Manager) CurrentBranch(ctx context.Context) (string, bool, error) {
	res, err := m.Git(ctx, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		return "", false, err
	}
	if !res.Succeeded {
		// symbolic-ref exits 1 for a detached HEAD.
		if res.ExitCode == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("git symbolic-ref HEAD failed: %s", res.Summary())
	}
	return strings.TrimSpace(res.Stdout), true, nil
}

// IsLinkedWorktree reports whether root is a linked worktree created with
// `git worktree add`. Such a checkout has a .git FILE pointing at the main
// repository, where a main checkout has a .git directory.
func IsLinkedWorktree(root string) bool {
	gitPath := filepath.Join(root, ".git")

	// Lstat: .git must be a regular file, not a symlink to a directory.
	info, err := os.Lstat(gitPath)
	if err != nil || info.IsDir() {
		return false
	}

	content, err := os.ReadFile(gitPath)
	if err != nil {
		return false
	}
	return strings.HasPrefix(string(content), "gitdir:")
}
