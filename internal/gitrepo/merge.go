package gitrepo

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/unibranch/ubr/internal/syncstate"
)

// emptyTreeID is the hash of the tree with no entries.
const emptyTreeID = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// MergeTree three-way merges two commits in memory, against the merge base
// git finds, without touching the index or worktree. It returns the merged
// tree and the conflicted paths; a clean merge has none.
func (r *Repo) MergeTree(ctx context.Context, ours, theirs *object.Commit) (plumbing.Hash, []string, error) {
	return r.mergeTree(ctx, plumbing.ZeroHash, ours, theirs)
}

// CherryPickTree replays a commit's changeset onto another commit: a
// three-way merge of onto and commit with commit's first parent as the
// base. Like MergeTree it is in-memory only.
func (r *Repo) CherryPickTree(ctx context.Context, commit, onto *object.Commit) (plumbing.Hash, []string, error) {
	if commit.NumParents() == 0 {
		return plumbing.ZeroHash, nil, fmt.Errorf("cannot cherry-pick root commit %s", commit.Hash)
	}
	parent, err := commit.Parent(0)
	if err != nil {
		return plumbing.ZeroHash, nil, fmt.Errorf("resolving parent of %s: %w", commit.Hash, err)
	}
	return r.mergeTree(ctx, parent.Hash, onto, commit)
}

func (r *Repo) mergeTree(ctx context.Context, base plumbing.Hash, ours, theirs *object.Commit) (plumbing.Hash, []string, error) {
	args := []string{"merge-tree", "--write-tree", "--no-messages"}
	if !base.IsZero() {
		args = append(args, "--merge-base="+base.String())
	}
	args = append(args, ours.Hash.String(), theirs.Hash.String())

	out, errOut, code, err := r.run.gitCode(ctx, nil, nil, args...)
	if err != nil {
		return plumbing.ZeroHash, nil, err
	}
	if code != 0 && code != 1 {
		return plumbing.ZeroHash, nil, fmt.Errorf("git merge-tree %s %s: %s",
			ours.Hash, theirs.Hash, strings.TrimSpace(errOut))
	}

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	tree := plumbing.NewHash(lines[0])
	if code == 0 {
		return tree, nil, nil
	}
	return tree, stagePaths(lines[1:]), nil
}

// stagePaths extracts the unique file names from "<mode> <oid> <stage>\t<path>"
// lines, as printed by merge-tree and ls-files --unmerged.
func stagePaths(lines []string) []string {
	var paths []string
	seen := make(map[string]bool)
	for _, line := range lines {
		tab := strings.IndexByte(line, '\t')
		if tab < 0 {
			continue
		}
		path := line[tab+1:]
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		paths = append(paths, path)
	}
	return paths
}

// CommitMergeTree commits a merged tree with the local and remote commits
// as its parents. A merge that resolved to the empty tree fails with
// ErrEmptyMerge; that is a degenerate result no caller can use.
func (r *Repo) CommitMergeTree(ctx context.Context, local, remote *object.Commit, tree plumbing.Hash) (*object.Commit, error) {
	if tree.String() == emptyTreeID {
		return nil, fmt.Errorf("merging %s with %s: %w", local.Hash, remote.Hash, ErrEmptyMerge)
	}
	env := r.identityEnv(local)
	return r.commitTree(ctx, tree, []plumbing.Hash{local.Hash, remote.Hash}, "Merge", env)
}

// CommitTree commits a tree with the given parents, copying authorship
// from origin. The committer is the local identity, or origin's committer
// when none is configured.
func (r *Repo) CommitTree(ctx context.Context, tree plumbing.Hash, parents []plumbing.Hash, message string, origin *object.Commit) (*object.Commit, error) {
	env := append(r.identityEnv(origin),
		"GIT_AUTHOR_NAME="+origin.Author.Name,
		"GIT_AUTHOR_EMAIL="+origin.Author.Email,
		fmt.Sprintf("GIT_AUTHOR_DATE=%d %s", origin.Author.When.Unix(), origin.Author.When.Format("-0700")),
	)
	return r.commitTree(ctx, tree, parents, message, env)
}

func (r *Repo) commitTree(ctx context.Context, tree plumbing.Hash, parents []plumbing.Hash, message string, env []string) (*object.Commit, error) {
	args := []string{"commit-tree", tree.String()}
	for _, p := range parents {
		args = append(args, "-p", p.String())
	}
	out, err := r.run.gitInput(ctx, []byte(message), env, args...)
	if err != nil {
		return nil, fmt.Errorf("committing tree %s: %w", tree, err)
	}
	return r.gogit.CommitObject(plumbing.NewHash(firstLine(out)))
}

// ApplyDiffToTree re-parents content: the diff from oldTree to newTree is
// applied onto onto, and the resulting tree is returned. An empty diff
// returns onto unchanged. This is a patch application, not a merge; a diff
// that does not apply is an error carrying the rejected paths.
func (r *Repo) ApplyDiffToTree(ctx context.Context, oldTree, newTree, onto plumbing.Hash) (plumbing.Hash, error) {
	if oldTree == newTree {
		return onto, nil
	}
	patch, err := r.run.git(ctx, "diff-tree", "-r", "-p", "--binary", "--full-index",
		oldTree.String(), newTree.String())
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("diffing %s..%s: %w", oldTree, newTree, err)
	}
	if strings.TrimSpace(patch) == "" {
		return onto, nil
	}

	tmp, err := os.CreateTemp(r.gitDir, "ubr-index-*")
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("creating temp index: %w", err)
	}
	indexFile := tmp.Name()
	tmp.Close()
	// read-tree wants to create the index itself.
	os.Remove(indexFile)
	defer os.Remove(indexFile)
	env := []string{"GIT_INDEX_FILE=" + indexFile}

	if _, err := r.run.gitEnv(ctx, env, "read-tree", onto.String()); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("seeding index from %s: %w", onto, err)
	}
	if _, err := r.run.gitInput(ctx, []byte(patch), env, "apply", "--cached", "--whitespace=nowarn"); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("applying diff onto %s: %w", onto, err)
	}
	out, err := r.run.gitEnv(ctx, env, "write-tree")
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("writing re-parented tree: %w", err)
	}
	return plumbing.NewHash(firstLine(out)), nil
}

// BeginConflictResolution materializes a conflicted merge for the user to
// resolve: HEAD is detached at the local commit, the merge is started so
// the index and worktree carry git's native conflict state, and the sync
// state file is written. The caller reports the MergeConflictError.
func (r *Repo) BeginConflictResolution(ctx context.Context, local, remote *object.Commit, parent plumbing.Hash) error {
	if _, err := r.run.git(ctx, "checkout", "--detach", local.Hash.String()); err != nil {
		return fmt.Errorf("detaching HEAD at %s: %w", local.Hash, err)
	}

	_, errOut, code, err := r.run.gitCode(ctx, nil, nil, "merge", "--no-commit", remote.Hash.String())
	if err != nil {
		return err
	}
	switch code {
	case 1:
		// Conflicted, as predicted by merge-tree.
	case 0:
		// The refs moved between the in-memory merge and this one.
		_, _ = r.run.git(ctx, "merge", "--abort")
		_, _ = r.run.git(ctx, "checkout", r.branch)
		return fmt.Errorf("merge of %s with %s succeeded after conflicts were predicted, external change suspected", local.Hash, remote.Hash)
	default:
		return fmt.Errorf("merging %s: %s", remote.Hash, strings.TrimSpace(errOut))
	}

	state := &syncstate.State{
		MainCommitID:       local.Hash.String(),
		RemoteCommitID:     remote.Hash.String(),
		MainCommitParentID: parent.String(),
		MainBranchName:     r.branch,
	}
	if err := syncstate.Save(syncstate.Path(r.root), state); err != nil {
		return err
	}
	r.state = state
	return nil
}

// FinishMerge completes the conflicted merge a previous run left behind:
// the user has resolved and staged everything, and the resolved index is
// committed with the local and remote commits as parents. The sync state
// file is deleted only after the merge commit exists; the in-memory state
// is kept so the stack walk still knows where the halt happened.
func (r *Repo) FinishMerge(ctx context.Context) (*object.Commit, error) {
	if r.state == nil {
		return nil, ErrNoSyncInProgress
	}

	out, err := r.run.git(ctx, "ls-files", "--unmerged")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out) != "" {
		paths := stagePaths(strings.Split(strings.TrimRight(out, "\n"), "\n"))
		return nil, fmt.Errorf("unresolved conflicts remain in: %s", strings.Join(paths, ", "))
	}

	mergeHead, _, code, err := r.run.gitCode(ctx, nil, nil, "rev-parse", "-q", "--verify", "MERGE_HEAD")
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, fmt.Errorf("MERGE_HEAD is gone, the conflicted merge appears to have been aborted; remove %s to start over", syncstate.FileName)
	}
	if firstLine(mergeHead) != r.state.RemoteCommitID {
		return nil, fmt.Errorf("MERGE_HEAD %s does not match the recorded remote commit %s", firstLine(mergeHead), r.state.RemoteCommitID)
	}

	local, err := r.CommitByID(r.state.MainCommitID)
	if err != nil {
		return nil, err
	}
	if _, err := r.run.gitEnv(ctx, r.identityEnv(local), "commit", "--no-verify", "-m", "Merge"); err != nil {
		return nil, fmt.Errorf("committing resolved merge: %w", err)
	}

	merge, err := r.Head()
	if err != nil {
		return nil, err
	}
	if err := syncstate.Remove(syncstate.Path(r.root)); err != nil {
		return nil, err
	}
	return merge, nil
}
