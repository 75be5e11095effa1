package gitrepo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/unibranch/ubr/internal/gittest"
	"github.com/unibranch/ubr/internal/syncstate"
)

// seed builds an origin with one pushed commit and returns it with a
// clone to run the repository handle against.
func seed(t *testing.T) (*gittest.Remote, *gittest.Repo) {
	t.Helper()
	origin := gittest.NewRemote(t)
	local := origin.Clone()
	local.WriteFile("file.txt", "one\ntwo\nthree\nfour\nfive").
		CommitAll("Initial commit").
		Push()
	return origin, local
}

func open(t *testing.T, r *gittest.Repo) *Repo {
	t.Helper()
	repo, err := Open(context.Background(), r.Dir, Options{Mode: ModeSilent})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return repo
}

func TestOpenFromSubdirectory(t *testing.T) {
	_, local := seed(t)
	sub := filepath.Join(local.Dir, "pkg", "deep")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	repo, err := Open(context.Background(), sub, Options{Mode: ModeSilent})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	want, err := filepath.EvalSymlinks(local.Dir)
	if err != nil {
		t.Fatal(err)
	}
	got, err := filepath.EvalSymlinks(repo.Root())
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("Root() = %s, want %s", got, want)
	}
	if repo.CurrentBranch() != "master" {
		t.Errorf("CurrentBranch() = %q", repo.CurrentBranch())
	}
	if repo.RemoteName() != "origin" {
		t.Errorf("RemoteName() = %q", repo.RemoteName())
	}
}

func TestOpenDetachedHead(t *testing.T) {
	_, local := seed(t)
	local.Git("checkout", "--detach")

	_, err := Open(context.Background(), local.Dir, Options{Mode: ModeSilent})
	if !errors.Is(err, ErrNotABranch) {
		t.Fatalf("expected ErrNotABranch, got %v", err)
	}
}

func TestOpenMidSyncUsesStateBranch(t *testing.T) {
	_, local := seed(t)
	local.WriteFile("notes.md", "alpha").CommitAll("Stack commit")

	head := local.Head()
	base := local.RevParse("origin/master")
	st := &syncstate.State{
		MainCommitID:       head,
		RemoteCommitID:     base,
		MainCommitParentID: base,
		MainBranchName:     "master",
	}
	if err := syncstate.Save(syncstate.Path(local.Dir), st); err != nil {
		t.Fatal(err)
	}
	// Mid-sync HEAD is detached at the conflicted commit; the branch must
	// come from the state.
	local.Git("checkout", "--detach")

	repo := open(t, local)
	if repo.CurrentBranch() != "master" {
		t.Errorf("CurrentBranch() = %q, want master", repo.CurrentBranch())
	}
	if got := repo.SyncState(); got == nil || got.MainCommitID != head {
		t.Errorf("SyncState() = %+v", got)
	}
}

func TestOpenRejectsCorruptState(t *testing.T) {
	_, local := seed(t)
	path := syncstate.Path(local.Dir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Open(context.Background(), local.Dir, Options{Mode: ModeSilent})
	if err == nil || !strings.Contains(err.Error(), "parsing sync state") {
		t.Fatalf("expected a state parse error, got %v", err)
	}
}

func TestOpenConfiguresNoteRewriting(t *testing.T) {
	_, local := seed(t)
	open(t, local)

	got := strings.TrimSpace(local.Git("config", "notes.rewriteRef"))
	if got != "refs/notes/*" {
		t.Errorf("notes.rewriteRef = %q", got)
	}
}

func TestOpenExcludesStateDir(t *testing.T) {
	_, local := seed(t)
	open(t, local)

	exclude := filepath.Join(local.Dir, ".git", "info", "exclude")
	data, err := os.ReadFile(exclude)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(string(data), ".ubr") != 1 {
		t.Errorf("exclude file:\n%s", data)
	}

	// Opening again must not duplicate the entry.
	open(t, local)
	data, err = os.ReadFile(exclude)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(string(data), ".ubr") != 1 {
		t.Errorf("exclude entry duplicated:\n%s", data)
	}

	// State files stay invisible to status.
	local.WriteFile(".ubr/scratch", "x")
	if out := local.Git("status", "--porcelain"); strings.Contains(out, ".ubr") {
		t.Errorf("status lists the state dir:\n%s", out)
	}
}

func TestBaseCommit(t *testing.T) {
	_, local := seed(t)
	local.WriteFile("notes.md", "alpha").CommitAll("Stack commit")
	repo := open(t, local)

	base, err := repo.BaseCommit()
	if err != nil {
		t.Fatalf("BaseCommit: %v", err)
	}
	if got := base.Hash.String(); got != local.RevParse("origin/master") {
		t.Errorf("base = %s, want origin/master", got)
	}
}

func TestBaseCommitNoUpstream(t *testing.T) {
	_, local := seed(t)
	local.Git("checkout", "-b", "topic")
	repo := open(t, local)

	_, err := repo.BaseCommit()
	if !errors.Is(err, ErrNoUpstream) {
		t.Fatalf("expected ErrNoUpstream, got %v", err)
	}
}

func TestHeadAndBranchTipDiverge(t *testing.T) {
	_, local := seed(t)
	local.WriteFile("notes.md", "alpha").CommitAll("Stack commit")
	repo := open(t, local)

	tipID := local.Head()
	baseID := local.RevParse("HEAD^")
	local.Git("checkout", "--detach", "HEAD^")

	head, err := repo.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	tip, err := repo.BranchTip()
	if err != nil {
		t.Fatalf("BranchTip: %v", err)
	}
	if head.Hash.String() != baseID {
		t.Errorf("Head() = %s, want the detached commit %s", head.Hash, baseID)
	}
	if tip.Hash.String() != tipID {
		t.Errorf("BranchTip() = %s, want the branch tip %s", tip.Hash, tipID)
	}
}

func TestUnpushedCommits(t *testing.T) {
	_, local := seed(t)
	local.WriteFile("notes.md", "alpha").CommitAll("First change")
	local.WriteFile("docs.txt", "hello").CommitAll("Second change")
	repo := open(t, local)

	stack, err := repo.UnpushedCommits()
	if err != nil {
		t.Fatalf("UnpushedCommits: %v", err)
	}
	if len(stack) != 2 {
		t.Fatalf("got %d commits, want 2", len(stack))
	}
	// Oldest first, both untracked.
	if got := stack[0].Commit().Hash.String(); got != local.RevParse("HEAD^") {
		t.Errorf("stack[0] = %s, want HEAD^", got)
	}
	if got := stack[1].Commit().Hash.String(); got != local.Head() {
		t.Errorf("stack[1] = %s, want HEAD", got)
	}
	for i, element := range stack {
		if _, ok := element.(UntrackedCommit); !ok {
			t.Errorf("stack[%d] is %T, want UntrackedCommit", i, element)
		}
	}

	// Recording metadata flips the classification.
	ctx := context.Background()
	first, err := repo.CommitByID(local.RevParse("HEAD^"))
	if err != nil {
		t.Fatal(err)
	}
	meta := CommitMetadata{RemoteBranchName: "first-change"}
	if err := repo.SaveMetadata(ctx, first, meta); err != nil {
		t.Fatal(err)
	}

	stack, err = repo.UnpushedCommits()
	if err != nil {
		t.Fatalf("UnpushedCommits: %v", err)
	}
	tracked, ok := stack[0].(TrackedCommit)
	if !ok || tracked.Meta.RemoteBranchName != "first-change" {
		t.Errorf("stack[0] = %#v, want tracked first-change", stack[0])
	}
	if _, ok := stack[1].(UntrackedCommit); !ok {
		t.Errorf("stack[1] is %T, want UntrackedCommit", stack[1])
	}
}

func TestUnpushedCommitsEmpty(t *testing.T) {
	_, local := seed(t)
	repo := open(t, local)

	stack, err := repo.UnpushedCommits()
	if err != nil {
		t.Fatalf("UnpushedCommits: %v", err)
	}
	if len(stack) != 0 {
		t.Errorf("got %d commits, want none", len(stack))
	}
}

func TestUnpushedCommitsAfterBaseAdvance(t *testing.T) {
	origin, local := seed(t)
	local.WriteFile("notes.md", "alpha").CommitAll("First change")
	firstID := local.Head()

	// Someone else lands work on master; our stack hasn't been rebased.
	other := origin.Clone()
	other.WriteFile("upstream.txt", "up").CommitAll("Upstream work").Push()
	local.Fetch()

	repo := open(t, local)
	stack, err := repo.UnpushedCommits()
	if err != nil {
		t.Fatalf("UnpushedCommits: %v", err)
	}
	if len(stack) != 1 || stack[0].Commit().Hash.String() != firstID {
		t.Errorf("stack = %v, want just the local commit %s", stack, firstID)
	}
}

func TestUnpushedCommitsMidSyncStopsAtConflict(t *testing.T) {
	_, local := seed(t)
	local.WriteFile("notes.md", "alpha").CommitAll("First change")
	firstID := local.Head()
	local.WriteFile("docs.txt", "hello").CommitAll("Second change")
	local.WriteFile("extra.txt", "more").CommitAll("Third change")

	base := local.RevParse("origin/master")
	st := &syncstate.State{
		MainCommitID:       firstID,
		RemoteCommitID:     base,
		MainCommitParentID: base,
		MainBranchName:     "master",
	}
	if err := syncstate.Save(syncstate.Path(local.Dir), st); err != nil {
		t.Fatal(err)
	}

	repo := open(t, local)
	stack, err := repo.UnpushedCommits()
	if err != nil {
		t.Fatalf("UnpushedCommits: %v", err)
	}
	if len(stack) != 2 {
		t.Fatalf("got %d commits, want the tail above the conflict", len(stack))
	}
	if got := stack[0].Commit().Hash.String(); got != local.RevParse("HEAD^") {
		t.Errorf("stack[0] = %s, want HEAD^", got)
	}
	if got := stack[1].Commit().Hash.String(); got != local.Head() {
		t.Errorf("stack[1] = %s, want HEAD", got)
	}
}

func TestFindUnpushedCommit(t *testing.T) {
	_, local := seed(t)
	local.WriteFile("notes.md", "alpha").CommitAll("First change")
	local.WriteFile("docs.txt", "hello").CommitAll("Second change")
	repo := open(t, local)

	sc, err := repo.FindUnpushedCommit("HEAD~1")
	if err != nil {
		t.Fatalf("FindUnpushedCommit: %v", err)
	}
	if got := sc.Commit().Hash.String(); got != local.RevParse("HEAD~1") {
		t.Errorf("resolved %s, want HEAD~1", got)
	}

	if _, err := repo.FindUnpushedCommit("HEAD~2"); !errors.Is(err, ErrAlreadyPushed) {
		t.Errorf("HEAD~2: expected ErrAlreadyPushed, got %v", err)
	}
	if _, err := repo.FindUnpushedCommit("origin/master"); !errors.Is(err, ErrAlreadyPushed) {
		t.Errorf("origin/master: expected ErrAlreadyPushed, got %v", err)
	}
	if _, err := repo.FindUnpushedCommit("no-such-rev"); err == nil || !strings.Contains(err.Error(), "bad revision") {
		t.Errorf("bad rev: got %v", err)
	}
}

func TestUpdateCurrentBranch(t *testing.T) {
	_, local := seed(t)
	local.WriteFile("notes.md", "alpha").CommitAll("Stack commit")
	repo := open(t, local)
	ctx := context.Background()

	// Rebuild the branch tip as a revert to the base tree.
	head, err := repo.Head()
	if err != nil {
		t.Fatal(err)
	}
	base, err := repo.BaseCommit()
	if err != nil {
		t.Fatal(err)
	}
	rebuilt, err := repo.CommitTree(ctx, base.TreeHash, []plumbing.Hash{base.Hash}, "Rebuilt commit", head)
	if err != nil {
		t.Fatal(err)
	}

	if err := repo.UpdateCurrentBranch(ctx, rebuilt); err != nil {
		t.Fatalf("UpdateCurrentBranch: %v", err)
	}

	if got := local.RevParse("master"); got != rebuilt.Hash.String() {
		t.Errorf("master = %s, want %s", got, rebuilt.Hash)
	}
	if got := strings.TrimSpace(local.Git("rev-parse", "--symbolic-full-name", "HEAD")); got != "refs/heads/master" {
		t.Errorf("HEAD ref = %q, want refs/heads/master", got)
	}
	// The worktree followed: the rebuilt tree has no notes.md.
	if _, err := os.Stat(filepath.Join(local.Dir, "notes.md")); !os.IsNotExist(err) {
		t.Error("worktree was not updated to the new tree")
	}
	if out := strings.TrimSpace(local.Git("status", "--porcelain")); out != "" {
		t.Errorf("worktree dirty after branch update:\n%s", out)
	}
}

func TestRequireCleanWorktree(t *testing.T) {
	_, local := seed(t)
	repo := open(t, local)
	ctx := context.Background()

	if err := repo.RequireCleanWorktree(ctx); err != nil {
		t.Fatalf("clean worktree: %v", err)
	}

	local.WriteFile("file.txt", "dirty")
	err := repo.RequireCleanWorktree(ctx)
	if err == nil || !strings.Contains(err.Error(), "unstaged") {
		t.Errorf("unstaged edit: got %v", err)
	}

	local.Git("add", "file.txt")
	err = repo.RequireCleanWorktree(ctx)
	if err == nil || !strings.Contains(err.Error(), "staged") {
		t.Errorf("staged edit: got %v", err)
	}
}

func TestFindHeadOfRemoteBranch(t *testing.T) {
	_, local := seed(t)
	local.Git("push", "origin", "master:refs/heads/feature-x")
	repo := open(t, local)

	c, found, err := repo.FindHeadOfRemoteBranch("feature-x")
	if err != nil || !found {
		t.Fatalf("feature-x: found=%v err=%v", found, err)
	}
	if got := c.Hash.String(); got != local.RevParse("origin/feature-x") {
		t.Errorf("tip = %s", got)
	}

	_, found, err = repo.FindHeadOfRemoteBranch("missing")
	if err != nil || found {
		t.Errorf("missing branch: found=%v err=%v", found, err)
	}
}

func TestCommitByID(t *testing.T) {
	_, local := seed(t)
	repo := open(t, local)

	c, err := repo.CommitByID(local.Head())
	if err != nil || c.Hash.String() != local.Head() {
		t.Errorf("CommitByID(HEAD): %v", err)
	}
	if _, err := repo.CommitByID("not-a-hash"); err == nil || !strings.Contains(err.Error(), "bad commit id") {
		t.Errorf("malformed id: got %v", err)
	}
	if _, err := repo.CommitByID(strings.Repeat("0123456789", 4)); err == nil {
		t.Error("unknown id: expected an error")
	}
}

func TestWorktreeRoot(t *testing.T) {
	_, local := seed(t)
	sub := filepath.Join(local.Dir, "pkg")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	root, err := WorktreeRoot(context.Background(), sub)
	if err != nil {
		t.Fatalf("WorktreeRoot: %v", err)
	}
	want, err := filepath.EvalSymlinks(local.Dir)
	if err != nil {
		t.Fatal(err)
	}
	got, err := filepath.EvalSymlinks(root)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("WorktreeRoot = %s, want %s", got, want)
	}
}

