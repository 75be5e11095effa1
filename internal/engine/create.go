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

// CreateEngine publishes stack commits to per-commit remote branches.
type CreateEngine struct {
	Repo *gitrepo.Repo
	// BranchPrefix is prepended to branch names derived from commit
	// subjects.
	BranchPrefix string
}

// CreateOptions configures a publish operation.
type CreateOptions struct {
	// Rev selects the commit to publish. Empty means HEAD.
	Rev string
	// Force pushes over a diverged remote branch and claims an already
	// existing branch name instead of failing.
	Force bool
}

// Create publishes the selected commit. A first publish derives the
// branch name from the commit subject and records the linkage in a note;
// later publishes reuse the recorded branch. The pushed commit is the
// target cherry-picked onto the branch tip, or onto the base commit when
// the commit is new, so the branch never carries the rest of the stack.
func (e *CreateEngine) Create(ctx context.Context, opts CreateOptions) (*CreateResult, error) {
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

	var name string
	var onto *object.Commit
	var fixup bool
	switch t := target.(type) {
	case gitrepo.TrackedCommit:
		name, onto, err = e.trackedTarget(ctx, t, base)
		if err != nil {
			return nil, err
		}
		// Growing an existing branch gets a Fixup! commit so autosquash
		// tooling can fold it; recreating a vanished branch does not.
		fixup = onto.Hash != base.Hash
	case gitrepo.UntrackedCommit:
		name, err = e.newBranchName(t.Commit(), opts.Force)
		if err != nil {
			return nil, err
		}
		// A first publish keeps the commit's own message even when it
		// sits on a tracked predecessor's branch tip.
		onto, err = e.stackPredecessorTip(ctx, t, base)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unexpected stack commit %T", target)
	}

	return e.publish(ctx, target.Commit(), name, onto, fixup, opts.Force)
}

// trackedTarget resolves the recorded branch and the commit to pick onto
// for an already tracked commit. A vanished branch falls back to the
// base commit so the branch is recreated.
func (e *CreateEngine) trackedTarget(ctx context.Context, t gitrepo.TrackedCommit, base *object.Commit) (string, *object.Commit, error) {
	onto, err := t.RemoteTip(ctx)
	if errors.Is(err, gitrepo.ErrRemoteBranchMissing) {
		return t.Meta.RemoteBranchName, base, nil
	}
	if err != nil {
		return "", nil, err
	}
	return t.Meta.RemoteBranchName, onto, nil
}

// newBranchName derives a branch name from the commit subject and checks
// it against the remote branches already known.
func (e *CreateEngine) newBranchName(commit *object.Commit, force bool) (string, error) {
	name := e.BranchPrefix + branchNameFor(subject(commit))
	if name == e.BranchPrefix {
		return "", fmt.Errorf("cannot derive a branch name from commit %s", commit.Hash)
	}
	_, exists, err := e.Repo.FindHeadOfRemoteBranch(name)
	if err != nil {
		return "", err
	}
	if exists && !force {
		return "", fmt.Errorf("%s/%s: %w", e.Repo.RemoteName(), name, gitrepo.ErrBranchExists)
	}
	return name, nil
}

// stackPredecessorTip decides what a first publish sits on: the remote
// tip of the commit directly below it in the stack when that one is
// tracked and still published, otherwise the base commit.
func (e *CreateEngine) stackPredecessorTip(ctx context.Context, target gitrepo.UntrackedCommit, base *object.Commit) (*object.Commit, error) {
	stack, err := e.Repo.UnpushedCommits()
	if err != nil {
		return nil, err
	}
	for i, element := range stack {
		if element.Commit().Hash != target.Commit().Hash || i == 0 {
			continue
		}
		pred, ok := stack[i-1].(gitrepo.TrackedCommit)
		if !ok {
			break
		}
		tip, err := pred.RemoteTip(ctx)
		if errors.Is(err, gitrepo.ErrRemoteBranchMissing) {
			break
		}
		if err != nil {
			return nil, err
		}
		return tip, nil
	}
	return base, nil
}

// publish cherry-picks commit onto onto and pushes the result to the
// named branch. Nothing is pushed when the branch content would not
// change. With fixup set the pushed commit is tagged "Fixup!" instead of
// carrying the original message.
func (e *CreateEngine) publish(ctx context.Context, commit *object.Commit, name string, onto *object.Commit, fixup, force bool) (*CreateResult, error) {
	candidate, conflicts, err := e.Repo.CherryPickTree(ctx, commit, onto)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, &gitrepo.CherryPickConflictError{
			Commit: commit.Hash.String(),
			Onto:   onto.Hash.String(),
			Paths:  conflicts,
		}
	}

	existing, exists, err := e.Repo.FindHeadOfRemoteBranch(name)
	if err != nil {
		return nil, err
	}
	if candidate == onto.TreeHash || (exists && candidate == existing.TreeHash) {
		return &CreateResult{Branch: name, UpToDate: true}, nil
	}

	message := commit.Message
	if fixup {
		message = fmt.Sprintf("Fixup! %s", onto.Hash)
	}
	remoteCommit, err := e.Repo.CommitTree(ctx, candidate, []plumbing.Hash{onto.Hash}, message, commit)
	if err != nil {
		return nil, err
	}
	if err := e.Repo.Remote().Push(ctx, remoteCommit, name, force); err != nil {
		return nil, err
	}
	if !e.Repo.DryRun() {
		meta := gitrepo.CommitMetadata{RemoteBranchName: name}
		if err := e.Repo.SaveMetadata(ctx, commit, meta); err != nil {
			return nil, err
		}
	}
	return &CreateResult{
		Branch:       name,
		RemoteCommit: remoteCommit.Hash.String(),
		NewBranch:    !exists,
	}, nil
}

// branchNameFor derives a branch name from a commit subject. "Add HTTP
// retry logic" becomes "add-http-retry-logic".
func branchNameFor(subject string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(subject) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		default:
			pendingDash = true
		}
	}
	name := b.String()
	const maxLen = 60
	if len(name) > maxLen {
		name = strings.TrimRight(name[:maxLen], "-")
	}
	return name
}

func subject(c *object.Commit) string {
	s := c.Message
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
