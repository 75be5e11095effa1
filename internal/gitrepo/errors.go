package gitrepo

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for precondition and consistency failures. Callers match
// them with errors.Is; the wrapping sites add the offending identifiers.
var (
	// ErrNotABranch is returned by Open when HEAD is detached and no sync
	// is in progress.
	ErrNotABranch = errors.New("detached HEAD")

	// ErrNoUpstream is returned when the current branch has no
	// remote-tracking counterpart to serve as the base commit.
	ErrNoUpstream = errors.New("current branch has no remote-tracking branch")

	// ErrAlreadyPushed is returned when a revision resolves to a commit
	// that is not a strict descendant of the base commit.
	ErrAlreadyPushed = errors.New("commit is already pushed to the remote")

	// ErrRemoteBranchMissing is returned when a tracked commit's remote
	// branch no longer exists and no remote commit is pinned.
	ErrRemoteBranchMissing = errors.New("remote branch no longer exists")

	// ErrEmptyMerge is returned when a merge produces an empty tree
	// without conflicts. This indicates a logic error upstream, not a
	// user-fixable state.
	ErrEmptyMerge = errors.New("merge produced an empty tree")

	// ErrNoSyncInProgress is returned by resume operations when no sync
	// state file exists.
	ErrNoSyncInProgress = errors.New("no sync in progress")

	// ErrSyncInProgress is returned when an operation requires a clean
	// slate but a sync state file exists.
	ErrSyncInProgress = errors.New("a sync is already in progress, resolve the conflicts and run 'ubr sync --continue'")

	// ErrBranchExists is returned when a derived remote branch name
	// collides with an existing remote branch.
	ErrBranchExists = errors.New("remote branch already exists")
)

// MergeConflictError is the one expected, recoverable failure: a three-way
// merge between a local commit and its remote tip hit content conflicts.
// The working tree has been left in git's native conflicted state and the
// sync state file has been written.
type MergeConflictError struct {
	Local  string
	Remote string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf(
		"Unable to merge local commit (%s) with commit from remote (%s)\nOnce all the conflicts has been resolved, run 'ubr sync --continue'",
		e.Local, e.Remote)
}

// CherryPickConflictError reports a conflicting cherry-pick during publish.
// Unlike merge conflicts it is fatal: no resumable state is persisted.
type CherryPickConflictError struct {
	Commit string
	Onto   string
	Paths  []string
}

func (e *CherryPickConflictError) Error() string {
	return fmt.Sprintf("commit %s cannot be cherry-picked on %s, conflicts in: %s",
		e.Commit, e.Onto, strings.Join(e.Paths, ", "))
}
