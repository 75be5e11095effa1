package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/unibranch/ubr/internal/gitrepo"
	"github.com/unibranch/ubr/internal/gittest"
	"github.com/unibranch/ubr/internal/syncstate"
)

// Seed files with well-separated lines, so edits to different regions
// merge cleanly while edits to the same line conflict.
const (
	seedFile  = "one\ntwo\nthree\nfour\nfive"
	seedNotes = "alpha\nbeta\ngamma\ndelta\nepsilon"
)

// seededPair builds an origin with one pushed commit and returns it with
// a clone. Every test stacks its commits on this clone's master.
func seededPair(t *testing.T) (*gittest.Remote, *gittest.Repo) {
	t.Helper()
	origin := gittest.NewRemote(t)
	local := origin.Clone()
	local.WriteFile("file.txt", seedFile).
		WriteFile("notes.md", seedNotes).
		CommitAll("Initial commit").
		Push()
	return origin, local
}

// openRepo opens a silent-mode handle on a test clone.
func openRepo(t *testing.T, r *gittest.Repo) *gitrepo.Repo {
	t.Helper()
	repo, err := gitrepo.Open(context.Background(), r.Dir, gitrepo.Options{Mode: gitrepo.ModeSilent})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return repo
}

func createHead(t *testing.T, repo *gitrepo.Repo) *CreateResult {
	t.Helper()
	eng := &CreateEngine{Repo: repo}
	res, err := eng.Create(context.Background(), CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return res
}

func syncStack(t *testing.T, repo *gitrepo.Repo) *SyncResult {
	t.Helper()
	eng := &SyncEngine{Repo: repo}
	res, err := eng.Sync(context.Background(), SyncOptions{})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	return res
}

func TestEnginesRefuseToRunMidSync(t *testing.T) {
	_, local := seededPair(t)
	local.WriteFile("file.txt", "ONE\ntwo\nthree\nfour\nfive").CommitAll("Change first line")

	// Fabricate a halted reconciliation; the guards only probe for the
	// state's presence.
	head := local.RevParse("HEAD")
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
	repo := openRepo(t, local)

	ctx := context.Background()
	ops := map[string]func() error{
		"create": func() error {
			_, err := (&CreateEngine{Repo: repo}).Create(ctx, CreateOptions{})
			return err
		},
		"sync": func() error {
			_, err := (&SyncEngine{Repo: repo}).Sync(ctx, SyncOptions{})
			return err
		},
		"pull": func() error {
			_, err := (&PullEngine{Repo: repo}).Pull(ctx, PullOptions{})
			return err
		},
		"cherry-pick": func() error {
			_, err := (&CherryPickEngine{Repo: repo}).CherryPick(ctx, CherryPickOptions{})
			return err
		},
		"untrack": func() error {
			_, err := (&UntrackEngine{Repo: repo}).Untrack(ctx, UntrackOptions{})
			return err
		},
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, gitrepo.ErrSyncInProgress) {
			t.Errorf("%s: expected ErrSyncInProgress, got %v", name, err)
		}
	}
}

func TestSyncRefusesDirtyWorktree(t *testing.T) {
	_, local := seededPair(t)
	local.WriteFile("file.txt", "ONE\ntwo\nthree\nfour\nfive").CommitAll("Change first line")
	repo := openRepo(t, local)
	createHead(t, repo)

	local.WriteFile("file.txt", "uncommitted edit")
	_, err := (&SyncEngine{Repo: repo}).Sync(context.Background(), SyncOptions{})
	if err == nil || !strings.Contains(err.Error(), "unstaged") {
		t.Fatalf("expected unstaged-changes error, got %v", err)
	}
}

func TestSyncContinueWithoutState(t *testing.T) {
	_, local := seededPair(t)
	repo := openRepo(t, local)

	_, err := (&SyncEngine{Repo: repo}).Sync(context.Background(), SyncOptions{Continue: true})
	if !errors.Is(err, gitrepo.ErrNoSyncInProgress) {
		t.Fatalf("expected ErrNoSyncInProgress, got %v", err)
	}
}
