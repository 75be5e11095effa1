// Package gitrepo is the repository handle underneath the publish and
// reconciliation engines. go-git serves every read (refs, revision walking,
// commit and tree objects, notes); mutations shell out to the git
// executable, which owns merge, cherry-pick, notes writing and the
// worktree.
package gitrepo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/unibranch/ubr/internal/syncstate"
)

// Mode selects how operations with observable side effects behave. The
// three modes are behaviorally identical apart from output and remote or
// branch mutation.
type Mode int

const (
	// ModeDefault runs remote commands with inherited output.
	ModeDefault Mode = iota
	// ModeSilent captures remote command output and surfaces it only on
	// error. Used by tests.
	ModeSilent
	// ModeDryRun reports intended ref movements without mutating the
	// remote or the local branch.
	ModeDryRun
)

// Options configures Open.
type Options struct {
	// Mode selects the remote command behavior. Default is ModeDefault.
	Mode Mode
	// Remote is the name of the remote the base commit and all published
	// branches live on. Default is origin.
	Remote string
}

// Repo is an open repository. One handle is opened per command invocation
// and passed to every engine; it is the sole writer of metadata notes,
// branch refs and the persisted sync state.
type Repo struct {
	gogit *gogit.Repository
	run   *runner

	root   string // worktree root
	gitDir string
	branch string
	remote string
	mode   Mode

	// state is non-nil while a conflicted reconciliation awaits resume.
	state       *syncstate.State
	hasIdentity bool
}

// WorktreeRoot resolves the root of the worktree containing dir without
// opening the repository. The CLI uses it to locate the configuration file
// before it knows which remote to open the repository with.
func WorktreeRoot(ctx context.Context, dir string) (string, error) {
	root, err := (&runner{dir: dir}).gitLine(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("resolving worktree root: %w", err)
	}
	return root, nil
}

// Open resolves the repository containing dir (which may be any
// subdirectory of the worktree) and loads persisted sync state if present.
//
// When no sync is in progress the current branch is taken from HEAD and a
// detached HEAD fails with ErrNotABranch. Mid-sync, HEAD is expected to be
// detached at the conflicted commit and the branch name comes from the
// sync state instead.
//
// Open also configures notes.rewriteRef so git migrates metadata notes
// across user-driven rewrites, and keeps the .ubr state directory out of
// change tracking via the repository's info/exclude file.
func Open(ctx context.Context, dir string, opts Options) (*Repo, error) {
	gg, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repository at %s: %w", dir, err)
	}

	probe := &runner{dir: dir}
	root, err := probe.gitLine(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("resolving worktree root: %w", err)
	}

	r := &Repo{
		gogit:  gg,
		run:    &runner{dir: root},
		root:   root,
		remote: opts.Remote,
		mode:   opts.Mode,
	}
	if r.remote == "" {
		r.remote = "origin"
	}

	r.gitDir, err = r.run.gitLine(ctx, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return nil, fmt.Errorf("resolving git dir: %w", err)
	}

	_, _, code, err := r.run.gitCode(ctx, nil, nil, "config", "user.email")
	if err != nil {
		return nil, err
	}
	r.hasIdentity = code == 0

	st, err := syncstate.Load(syncstate.Path(root))
	switch {
	case err == nil:
		r.state = st
		r.branch = st.MainBranchName
	case os.IsNotExist(err):
		head, err := gg.Head()
		if err != nil {
			return nil, fmt.Errorf("resolving HEAD: %w", err)
		}
		if !head.Name().IsBranch() {
			return nil, ErrNotABranch
		}
		r.branch = head.Name().Short()
	default:
		// A present but unreadable state file is external interference;
		// refuse to guess.
		return nil, err
	}

	if _, err := r.run.git(ctx, "config", "notes.rewriteRef", "refs/notes/*"); err != nil {
		return nil, fmt.Errorf("configuring note rewriting: %w", err)
	}
	if err := r.excludeStateDir(); err != nil {
		return nil, err
	}

	return r, nil
}

// Root returns the worktree root directory.
func (r *Repo) Root() string { return r.root }

// CurrentBranch returns the branch the stack lives on. Mid-sync this is
// the branch recorded in the sync state, not whatever HEAD points at.
func (r *Repo) CurrentBranch() string { return r.branch }

// RemoteName returns the name of the remote published branches live on.
func (r *Repo) RemoteName() string { return r.remote }

// DryRun reports whether the handle was opened in ModeDryRun.
func (r *Repo) DryRun() bool { return r.mode == ModeDryRun }

// SyncState returns the in-progress reconciliation record, or nil.
func (r *Repo) SyncState() *syncstate.State { return r.state }

// Remote returns the push/fetch collaborator for this repository.
func (r *Repo) Remote() *RemoteCommand {
	return &RemoteCommand{run: r.run, remote: r.remote, mode: r.mode}
}

// Head returns the commit HEAD currently resolves to, detached or not.
func (r *Repo) Head() (*object.Commit, error) {
	ref, err := r.gogit.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	return r.gogit.CommitObject(ref.Hash())
}

// BranchTip returns the commit at the tip of the current branch. This is
// distinct from Head mid-sync, when HEAD is detached at the conflicted
// commit while the branch still points at the unreconciled stack.
func (r *Repo) BranchTip() (*object.Commit, error) {
	ref, err := r.gogit.Reference(plumbing.NewBranchReferenceName(r.branch), true)
	if err != nil {
		return nil, fmt.Errorf("resolving branch %s: %w", r.branch, err)
	}
	return r.gogit.CommitObject(ref.Hash())
}

// BaseCommit resolves the remote-tracking counterpart of the current
// branch: the lower bound of the stack and the default cherry-pick target.
func (r *Repo) BaseCommit() (*object.Commit, error) {
	ref, err := r.gogit.Reference(plumbing.NewRemoteReferenceName(r.remote, r.branch), true)
	if err == plumbing.ErrReferenceNotFound {
		return nil, fmt.Errorf("%s/%s: %w", r.remote, r.branch, ErrNoUpstream)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving %s/%s: %w", r.remote, r.branch, err)
	}
	return r.gogit.CommitObject(ref.Hash())
}

// FindHeadOfRemoteBranch returns the tip of a remote branch, with found
// reporting whether the branch exists.
func (r *Repo) FindHeadOfRemoteBranch(name string) (*object.Commit, bool, error) {
	ref, err := r.gogit.Reference(plumbing.NewRemoteReferenceName(r.remote, name), true)
	if err == plumbing.ErrReferenceNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("resolving %s/%s: %w", r.remote, name, err)
	}
	c, err := r.gogit.CommitObject(ref.Hash())
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// CommitByID resolves a full hex commit id to its object.
func (r *Repo) CommitByID(id string) (*object.Commit, error) {
	if !plumbing.IsHash(id) {
		return nil, fmt.Errorf("bad commit id %q", id)
	}
	return r.gogit.CommitObject(plumbing.NewHash(id))
}

// FindUnpushedCommit resolves a revision expression to a stack commit.
// Revisions at or below the base commit fail with ErrAlreadyPushed:
// history the remote already has must not be republished or rewritten.
func (r *Repo) FindUnpushedCommit(rev string) (StackCommit, error) {
	h, err := r.gogit.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("bad revision %q: %w", rev, err)
	}
	c, err := r.gogit.CommitObject(*h)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", rev, err)
	}

	base, err := r.BaseCommit()
	if err != nil {
		return nil, err
	}
	if c.Hash == base.Hash {
		return nil, fmt.Errorf("commit %s: %w", c.Hash, ErrAlreadyPushed)
	}
	descendant, err := base.IsAncestor(c)
	if err != nil {
		return nil, fmt.Errorf("checking ancestry of %s: %w", c.Hash, err)
	}
	if !descendant {
		return nil, fmt.Errorf("commit %s: %w", c.Hash, ErrAlreadyPushed)
	}

	return r.resolveStackCommit(c)
}

// UnpushedCommits produces the stack: every commit strictly after the base
// commit up to the current branch tip, oldest first, each classified as
// Tracked or Untracked. Mid-sync the walk stops at the conflicted commit
// recorded in the sync state, yielding only the not-yet-reconciled tail.
//
// When the remote has advanced past the branch point, the stack starts at
// the fork point instead: the commits after it are still ours, and
// reconciliation re-parents them onto the new base.
func (r *Repo) UnpushedCommits() ([]StackCommit, error) {
	tip, err := r.BranchTip()
	if err != nil {
		return nil, err
	}

	var stopCommit *object.Commit
	if r.state != nil {
		stopCommit, err = r.CommitByID(r.state.MainCommitID)
	} else {
		stopCommit, err = r.BaseCommit()
	}
	if err != nil {
		return nil, err
	}

	stop := stopCommit.Hash
	if stop != tip.Hash {
		bases, err := stopCommit.MergeBase(tip)
		if err != nil {
			return nil, fmt.Errorf("finding fork point of %s: %w", r.branch, err)
		}
		if len(bases) == 0 {
			return nil, fmt.Errorf("branch %s shares no history with %s", r.branch, stop)
		}
		stop = bases[0].Hash
	}

	var chain []*object.Commit
	for c := tip; c.Hash != stop; {
		chain = append(chain, c)
		if c.NumParents() == 0 {
			return nil, fmt.Errorf("branch %s does not descend from %s", r.branch, stop)
		}
		parent, err := c.Parent(0)
		if err != nil {
			return nil, fmt.Errorf("walking history of %s: %w", r.branch, err)
		}
		c = parent
	}

	stack := make([]StackCommit, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		sc, err := r.resolveStackCommit(chain[i])
		if err != nil {
			return nil, err
		}
		stack = append(stack, sc)
	}
	return stack, nil
}

// UpdateCurrentBranch relocates the current branch to newHead and updates
// the working tree to match. git refuses to move the ref HEAD resolves to,
// so the sequence is detach, move, reattach. In dry-run mode the intended
// movement is printed and nothing changes.
func (r *Repo) UpdateCurrentBranch(ctx context.Context, newHead *object.Commit) error {
	if r.mode == ModeDryRun {
		fmt.Printf("Setting %s to point to %s\n", r.branch, newHead.Hash)
		return nil
	}

	if _, err := r.run.git(ctx, "checkout", "--detach", newHead.Hash.String()); err != nil {
		return fmt.Errorf("detaching HEAD before moving %s: %w", r.branch, err)
	}
	if _, err := r.run.git(ctx, "branch", "-f", r.branch, newHead.Hash.String()); err != nil {
		return fmt.Errorf("moving branch %s: %w", r.branch, err)
	}
	if _, err := r.run.git(ctx, "symbolic-ref", "HEAD", "refs/heads/"+r.branch); err != nil {
		return fmt.Errorf("reattaching HEAD to %s: %w", r.branch, err)
	}
	return nil
}

// RequireCleanWorktree fails when staged or unstaged changes are present.
// Reconciliation needs the worktree: conflicts are materialized in it and
// the final branch update checks it out.
func (r *Repo) RequireCleanWorktree(ctx context.Context) error {
	_, _, code, err := r.run.gitCode(ctx, nil, nil, "diff-index", "--cached", "--quiet", "HEAD", "--")
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("staged changes present, commit or stash them first")
	}

	_, _, code, err = r.run.gitCode(ctx, nil, nil, "diff-files", "--quiet", "--")
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("unstaged changes present, commit or stash them first")
	}
	return nil
}

// excludeStateDir keeps .ubr out of status and diff output by listing it
// in the repository-local exclude file. Existing entries are preserved.
func (r *Repo) excludeStateDir() error {
	exclude := filepath.Join(r.gitDir, "info", "exclude")

	data, err := os.ReadFile(exclude)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading %s: %w", exclude, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == ".ubr" {
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(exclude), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(exclude), err)
	}
	out := string(data)
	if out != "" && !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	out += ".ubr\n"
	if err := os.WriteFile(exclude, []byte(out), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", exclude, err)
	}
	return nil
}
