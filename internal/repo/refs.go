package repo

import (
	"errors"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ErrRefNotFound is returned by a RefReader when the reference does not exist.
var ErrRefNotFound = errors.New("reference not found")

// RefReader reads reference values without invoking the git binary.
type RefReader interface {
	// RemoteRef returns the hash of refs/remotes/<remote>/<branch> in the
	// repository containing dir.
	RemoteRef(dir, remote, branch string) (string, error)
}

// goGitRefReader implements RefReader with go-git.
type goGitRefReader struct{}

// RemoteRef opens the repository with go-git and resolves the
// remote-tracking reference. Linked worktrees keep their refs in the
// common directory, so EnableDotGitCommonDir is set.
func (goGitRefReader) RemoteRef(dir, remote, branch string) (string, error) {
	r, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		return "", err
	}

	ref, err := r.Reference(plumbing.NewRemoteReferenceName(remote, branch), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", ErrRefNotFound
		}
		return "", err
	}
	return ref.Hash().String(), nil
}
