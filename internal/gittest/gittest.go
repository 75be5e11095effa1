// Package gittest builds throwaway origin and clone repositories for
// exercising the publish and reconciliation engines against a real git
// installation. Helpers fail the calling test on error and return the
// repository, so setup code chains without error handling.
package gittest

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// Remote is a bare repository standing in for the hosting service.
type Remote struct {
	t   *testing.T
	Dir string
}

// NewRemote creates a bare origin repository with master as its initial
// branch. The test is skipped when git is not installed.
func NewRemote(t *testing.T) *Remote {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	run(t, dir, "git", "init", "--bare", "--initial-branch=master", ".")
	return &Remote{t: t, Dir: dir}
}

// Clone produces a worktree clone of the origin with a test identity
// configured.
func (r *Remote) Clone() *Repo {
	r.t.Helper()
	dir := r.t.TempDir()
	run(r.t, dir, "git", "clone", r.Dir, ".")
	run(r.t, dir, "git", "config", "user.name", "gopher")
	run(r.t, dir, "git", "config", "user.email", "gopher@example.com")
	return &Repo{t: r.t, Dir: dir}
}

// Repo is a clone of the test origin.
type Repo struct {
	t   *testing.T
	Dir string
}

// WriteFile writes content plus a trailing newline, replacing the file.
func (r *Repo) WriteFile(name, content string) *Repo {
	r.t.Helper()
	path := filepath.Join(r.Dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		r.t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content+"\n"), 0644); err != nil {
		r.t.Fatal(err)
	}
	return r
}

// AppendFile appends content plus a trailing newline to an existing file.
func (r *Repo) AppendFile(name, content string) *Repo {
	r.t.Helper()
	f, err := os.OpenFile(filepath.Join(r.Dir, name), os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		r.t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(content + "\n"); err != nil {
		r.t.Fatal(err)
	}
	return r
}

// FileContent reads a worktree file.
func (r *Repo) FileContent(name string) string {
	r.t.Helper()
	data, err := os.ReadFile(filepath.Join(r.Dir, name))
	if err != nil {
		r.t.Fatal(err)
	}
	return string(data)
}

// CommitAll stages everything and commits it.
func (r *Repo) CommitAll(msg string) *Repo {
	r.t.Helper()
	r.Git("add", ".")
	r.Git("commit", "-m", msg)
	return r
}

// CommitAllAmend stages everything and folds it into the HEAD commit.
func (r *Repo) CommitAllAmend() *Repo {
	r.t.Helper()
	r.Git("add", ".")
	r.Git("commit", "--amend", "--no-edit")
	return r
}

// Push pushes the current branch.
func (r *Repo) Push() *Repo {
	r.t.Helper()
	r.Git("push")
	return r
}

// Fetch updates the remote-tracking refs.
func (r *Repo) Fetch() *Repo {
	r.t.Helper()
	r.Git("fetch", "origin")
	return r
}

// Checkout switches branches. A bare remote branch name creates the
// matching local branch, like git itself does.
func (r *Repo) Checkout(branch string) *Repo {
	r.t.Helper()
	r.Git("checkout", branch)
	return r
}

// Head returns the commit id HEAD resolves to.
func (r *Repo) Head() string {
	r.t.Helper()
	return r.RevParse("HEAD")
}

// RevParse resolves a revision to a commit id.
func (r *Repo) RevParse(rev string) string {
	r.t.Helper()
	return strings.TrimSpace(r.Git("rev-parse", rev))
}

// Subject returns a commit's subject line.
func (r *Repo) Subject(rev string) string {
	r.t.Helper()
	return strings.TrimSpace(r.Git("log", "-1", "--format=%s", rev))
}

// ShowFile returns a file's content at a revision.
func (r *Repo) ShowFile(rev, name string) string {
	r.t.Helper()
	return r.Git("show", rev+":"+name)
}

// LsRemoteHeads asks the origin which branches matching name exist.
func (r *Repo) LsRemoteHeads(name string) string {
	r.t.Helper()
	return r.Git("ls-remote", "--heads", "origin", name)
}

// Git runs a git command in the repository and returns its combined
// output. The escape hatch for everything without a dedicated helper.
func (r *Repo) Git(args ...string) string {
	r.t.Helper()
	return run(r.t, r.Dir, append([]string{"git"}, args...)...)
}

func run(t *testing.T, dir string, cmdline ...string) string {
	t.Helper()
	cmd := exec.Command(cmdline[0], cmdline[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=gopher",
		"GIT_AUTHOR_EMAIL=gopher@example.com",
		"GIT_COMMITTER_NAME=gopher",
		"GIT_COMMITTER_EMAIL=gopher@example.com",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("in %s, ran %s: %v\n%s", filepath.Base(dir), cmdline, err, out)
	}
	return string(out)
}
