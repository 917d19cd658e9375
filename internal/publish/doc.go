// Package publish implements the sync-and-publish workflow.
//
// A Publisher brings a working copy in line with one remote branch and
// publishes local work to it. A run executes these steps in order:
//
//  1. configure  set pull.rebase=false
//  2. save       stash uncommitted work, including untracked files
//  3. fetch      fetch the remote and record the remote branch commit
//     reconcile  hard-reset to, or merge, the remote-tracking branch
//  4. restore    pop the stash saved in step 2, if anything was saved
//  5. stage      git add -A
//  6. commit     commit the supplied message when something is staged
//  7. publish    git push
//  8. force      one push --force-with-lease, only when step 7 failed
//  9. status     git status --porcelain
//
// Failures of individual git commands do not abort the run. Each step
// records a model.StepResult and the workflow moves on, so that a run can
// recover from divergence that was already resolved or was transient. The
// only terminal failure is the force-with-lease push: when it fails (or is
// declined) the outcome is marked as needing manual intervention.
//
// Run returns an error only when the input is unusable (empty path or
// message, not a repository), when git cannot be started at all, or when
// the context is cancelled.
package publish
