package engine

// CreateResult holds the outcome of publishing one commit.
type CreateResult struct {
	// Branch is the remote branch the commit publishes to.
	Branch string
	// RemoteCommit is the identifier pushed to the branch. Empty when
	// nothing was pushed.
	RemoteCommit string
	// UpToDate reports that the remote already matched and nothing moved.
	UpToDate bool
	// NewBranch reports that the branch did not exist before this run.
	NewBranch bool
}

// SyncResult holds the outcome of a reconciliation run.
type SyncResult struct {
	// Changed reports whether the branch was relocated.
	Changed bool
	// Rewritten counts the stack commits that received new identifiers.
	Rewritten int
	// Head is the branch tip after the run.
	Head string
}

// PullResult holds the outcome of a pull: the reconciliation half plus
// every branch the republish half pushed to.
type PullResult struct {
	Sync      *SyncResult
	Published []CreateResult
}

// PendingEntry describes one stack commit in a pending report, oldest
// first.
type PendingEntry struct {
	ID      string
	Subject string
	Tracked bool

	// Tracked entries only.
	Branch        string
	Pinned        bool
	BranchMissing bool
	InSync        bool

	// Diff is the unified diff against the entry's remote tip (tracked)
	// or its parent (untracked). Only filled when requested.
	Diff string
}

// UntrackResult holds the outcome of removing a commit's remote linkage.
type UntrackResult struct {
	// WasTracked is false when the commit carried no linkage to begin
	// with; nothing was changed then.
	WasTracked bool
	// Branch is the remote branch the commit was linked to.
	Branch string
}
