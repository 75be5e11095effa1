package engine

import (
	"context"

	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/unibranch/ubr/internal/gitrepo"
)

// CherryPickEngine publishes one commit without regard to its position
// in the stack: the branch always sits directly on the base commit, even
// when the commit below it is tracked. Useful for shipping an urgent fix
// out of the middle of a stack.
type CherryPickEngine struct {
	Repo         *gitrepo.Repo
	BranchPrefix string
}

// CherryPickOptions configures a standalone publish.
type CherryPickOptions struct {
	// Rev selects the commit to publish. Empty means HEAD.
	Rev string
}

// CherryPick publishes the selected commit onto the base commit, or onto
// its own remote branch tip when the commit is already tracked.
func (e *CherryPickEngine) CherryPick(ctx context.Context, opts CherryPickOptions) (*CreateResult, error) {
	if e.Repo.SyncState() != nil {
		return nil, gitrepo.ErrSyncInProgress
	}
	rev := opts.Rev
	if rev == "" {
		rev = "HEAD"
	}
	target, err := e.Repo.FindUnpushedCommit(rev)
	if err != nil {
		return nil, err
	}
	base, err := e.Repo.BaseCommit()
	if err != nil {
		return nil, err
	}

	create := &CreateEngine{Repo: e.Repo, BranchPrefix: e.BranchPrefix}

	var name string
	var onto *object.Commit
	var fixup bool
	switch t := target.(type) {
	case gitrepo.TrackedCommit:
		name, onto, err = create.trackedTarget(ctx, t, base)
		fixup = err == nil && onto.Hash != base.Hash
	case gitrepo.UntrackedCommit:
		name, err = create.newBranchName(t.Commit(), false)
		onto = base
	}
	if err != nil {
		return nil, err
	}

	return create.publish(ctx, target.Commit(), name, onto, fixup, false)
}
