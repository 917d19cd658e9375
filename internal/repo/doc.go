// Package repo provides the Git integration layer for gitsync.
//
// Mutating Git operations are performed via os/exec calls to the git binary
// rather than through a Git library. Stash, three-way merge with conflict
// stages and force-with-lease pushes all need full Git CLI behavior, and
// running the real binary means the user sees the exact same semantics in
// their terminal.
//
// Read-only reference lookups (the remote-tracking ref observed as the
// lease value before a force push) go through go-git, which reads loose
// and packed refs without spawning a process. The CLI is used as a
// fallback whenever go-git cannot open the repository.
//
// The package exposes two layers:
//   - Runner / ExecRunner: the command runner capability. It executes git
//     with a given argument list and working directory and never reports a
//     non-zero exit as an error.
//   - Manager: typed queries built on a Runner (stash ref, porcelain
//     status, unmerged paths, staged check, remote ref observation).
package repo
