package gitrepo

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/object"
)

// StackCommit is a local commit in the unpushed stack viewed through its
// tracking state. The set of implementations is closed: UntrackedCommit
// and TrackedCommit. Consumers type-switch on it; only TrackedCommit
// participates in reconciliation.
type StackCommit interface {
	Commit() *object.Commit
}

// UntrackedCommit is a stack commit that has never been published.
type UntrackedCommit struct {
	commit *object.Commit
}

func (u UntrackedCommit) Commit() *object.Commit { return u.commit }

// TrackedCommit is a stack commit with recorded remote linkage.
type TrackedCommit struct {
	commit *object.Commit
	repo   *Repo

	Meta CommitMetadata
}

func (t TrackedCommit) Commit() *object.Commit { return t.commit }

// RemoteTip resolves the remote state this commit reconciles against: the
// pinned remote commit when one is recorded, otherwise the current tip of
// the recorded remote branch. Fails with ErrRemoteBranchMissing when the
// branch is gone and nothing is pinned.
func (t TrackedCommit) RemoteTip(ctx context.Context) (*object.Commit, error) {
	if t.Meta.RemoteCommit != "" {
		c, err := t.repo.CommitByID(t.Meta.RemoteCommit)
		if err != nil {
			return nil, fmt.Errorf("pinned remote commit for %s: %w", t.commit.Hash, err)
		}
		return c, nil
	}

	tip, found, err := t.repo.FindHeadOfRemoteBranch(t.Meta.RemoteBranchName)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s/%s: %w", t.repo.remote, t.Meta.RemoteBranchName, ErrRemoteBranchMissing)
	}
	return tip, nil
}

// resolveStackCommit classifies a commit by probing the metadata store.
func (r *Repo) resolveStackCommit(c *object.Commit) (StackCommit, error) {
	meta, found, err := r.Metadata(c.Hash)
	if err != nil {
		return nil, err
	}
	if !found {
		return UntrackedCommit{commit: c}, nil
	}
	return TrackedCommit{commit: c, repo: r, Meta: meta}, nil
}
