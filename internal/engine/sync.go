package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/unibranch/ubr/internal/gitrepo"
)

// SyncEngine folds remote-side changes back into the local stack. Each
// tracked commit is merged with the tip of its remote branch and the
// commits above it are rebuilt on top, so review fixups land in the
// local history without losing the commit-to-branch linkage.
type SyncEngine struct {
	Repo *gitrepo.Repo
}

// SyncOptions configures a reconciliation run.
type SyncOptions struct {
	// Continue resumes a run that a merge conflict interrupted.
	Continue bool
}

// Sync reconciles every tracked commit in the stack with its remote
// branch, oldest first. Untracked commits are carried along unchanged
// apart from re-parenting. On a merge conflict the run stops with the
// conflict staged in the worktree and a *gitrepo.MergeConflictError;
// Sync with Continue picks up from there once the conflicts are
// resolved.
func (e *SyncEngine) Sync(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	if opts.Continue {
		return e.resume(ctx)
	}
	return e.fresh(ctx)
}

func (e *SyncEngine) fresh(ctx context.Context) (*SyncResult, error) {
	if e.Repo.SyncState() != nil {
		return nil, gitrepo.ErrSyncInProgress
	}
	if err := e.Repo.RequireCleanWorktree(ctx); err != nil {
		return nil, err
	}
	if err := e.Repo.Remote().Fetch(ctx); err != nil {
		return nil, err
	}

	base, err := e.Repo.BaseCommit()
	if err != nil {
		return nil, err
	}
	stack, err := e.Repo.UnpushedCommits()
	if err != nil {
		return nil, err
	}

	return e.finishWalk(ctx, base, stack, &SyncResult{})
}

func (e *SyncEngine) resume(ctx context.Context) (*SyncResult, error) {
	state := e.Repo.SyncState()
	if state == nil {
		return nil, gitrepo.ErrNoSyncInProgress
	}
	if e.Repo.DryRun() {
		return nil, errors.New("a dry run cannot resume a conflicted sync")
	}

	merged, err := e.Repo.FinishMerge(ctx)
	if err != nil {
		return nil, err
	}
	local, err := e.Repo.CommitByID(state.MainCommitID)
	if err != nil {
		return nil, err
	}
	meta, found, err := e.Repo.Metadata(local.Hash)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("commit %s lost its tracking metadata mid-sync", local.Hash)
	}
	prev, err := e.Repo.CommitByID(state.MainCommitParentID)
	if err != nil {
		return nil, err
	}

	reconciled, rewritten, err := e.reparent(ctx, local, merged.TreeHash, prev, &meta)
	if err != nil {
		return nil, err
	}

	// The interrupted commit and everything below it stay hidden from
	// the walk while the recorded state is in memory, so this picks up
	// exactly where the conflict stopped.
	stack, err := e.Repo.UnpushedCommits()
	if err != nil {
		return nil, err
	}

	// A resolution that reproduces the local content exactly absorbs the
	// merge commit into the original; nothing counts as rewritten then.
	seed := &SyncResult{}
	if rewritten {
		seed.Changed = true
		seed.Rewritten = 1
	}
	res, err := e.finishWalk(ctx, reconciled, stack, seed)
	if err != nil {
		return nil, err
	}
	if !res.Changed {
		// The materialized merge left HEAD detached; come back to the
		// branch even though no commit moved.
		tip, err := e.Repo.BranchTip()
		if err != nil {
			return nil, err
		}
		if err := e.Repo.UpdateCurrentBranch(ctx, tip); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// finishWalk reconciles the remaining stack elements onto prev and
// relocates the branch once if anything changed.
func (e *SyncEngine) finishWalk(ctx context.Context, prev *object.Commit, stack []gitrepo.StackCommit, res *SyncResult) (*SyncResult, error) {
	for _, element := range stack {
		next, rewritten, err := e.reconcileOne(ctx, prev, element)
		if err != nil {
			return nil, err
		}
		if rewritten {
			res.Changed = true
			res.Rewritten++
		}
		prev = next
	}

	if res.Changed {
		if err := e.Repo.UpdateCurrentBranch(ctx, prev); err != nil {
			return nil, err
		}
		res.Head = prev.Hash.String()
		return res, nil
	}

	tip, err := e.Repo.BranchTip()
	if err != nil {
		return nil, err
	}
	res.Head = tip.Hash.String()
	return res, nil
}

// reconcileOne produces the reconciled form of one stack element sitting
// on prev. Untracked commits and tracked commits whose remote branch
// adds nothing new keep their content; everything else merges with the
// remote tip first.
func (e *SyncEngine) reconcileOne(ctx context.Context, prev *object.Commit, element gitrepo.StackCommit) (*object.Commit, bool, error) {
	local := element.Commit()

	tracked, ok := element.(gitrepo.TrackedCommit)
	if !ok {
		return e.reparent(ctx, local, local.TreeHash, prev, nil)
	}

	// A vanished branch without a pin is a consistency failure here;
	// recreating branches is create's job, not sync's.
	remoteTip, err := tracked.RemoteTip(ctx)
	if err != nil {
		return nil, false, err
	}

	mergedTree, conflicts, err := e.Repo.MergeTree(ctx, local, remoteTip)
	if err != nil {
		return nil, false, err
	}
	if len(conflicts) > 0 {
		return nil, false, e.haltOnConflict(ctx, prev, local, remoteTip, conflicts)
	}

	if mergedTree == local.TreeHash {
		// The remote added nothing the commit does not already carry.
		return e.reparent(ctx, local, local.TreeHash, prev, &tracked.Meta)
	}

	merged, err := e.Repo.CommitMergeTree(ctx, local, remoteTip, mergedTree)
	if err != nil {
		return nil, false, err
	}
	return e.reparent(ctx, local, merged.TreeHash, prev, &tracked.Meta)
}

// reparent rebuilds commit so that it sits on prev and carries content.
// The rebuilt tree is prev's tree transformed the same way content
// transforms the commit's own parent tree. Metadata, when given, moves
// to the new identifier. Returns the commit the next element stacks on
// and whether a new commit was written.
func (e *SyncEngine) reparent(ctx context.Context, commit *object.Commit, content plumbing.Hash, prev *object.Commit, meta *gitrepo.CommitMetadata) (*object.Commit, bool, error) {
	parent, err := commit.Parent(0)
	if err != nil {
		return nil, false, fmt.Errorf("parent of %s: %w", commit.Hash, err)
	}

	if content == commit.TreeHash && prev.Hash == parent.Hash {
		return commit, false, nil
	}

	tree := content
	if prev.TreeHash != parent.TreeHash {
		tree, err = e.Repo.ApplyDiffToTree(ctx, parent.TreeHash, content, prev.TreeHash)
		if err != nil {
			return nil, false, fmt.Errorf("replaying %s onto %s: %w", commit.Hash, prev.Hash, err)
		}
	}

	rebuilt, err := e.Repo.CommitTree(ctx, tree, []plumbing.Hash{prev.Hash}, commit.Message, commit)
	if err != nil {
		return nil, false, err
	}
	if meta != nil && !e.Repo.DryRun() {
		if err := e.Repo.SaveMetadata(ctx, rebuilt, *meta); err != nil {
			return nil, false, err
		}
	}
	return rebuilt, true, nil
}

// haltOnConflict leaves the conflicted merge in the worktree for the
// user to resolve, or just reports it on a dry run. prev is recorded so
// the resume knows what to re-parent the resolved commit onto; commits
// already reconciled below the conflict stay reconciled.
func (e *SyncEngine) haltOnConflict(ctx context.Context, prev, local, remoteTip *object.Commit, conflicts []string) error {
	if e.Repo.DryRun() {
		return fmt.Errorf("merging %s with %s would conflict in: %s",
			local.Hash, remoteTip.Hash, strings.Join(conflicts, ", "))
	}

	if err := e.Repo.BeginConflictResolution(ctx, local, remoteTip, prev.Hash); err != nil {
		return err
	}
	return &gitrepo.MergeConflictError{Local: local.Hash.String(), Remote: remoteTip.Hash.String()}
}
