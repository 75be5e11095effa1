package gitrepo

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"gopkg.in/yaml.v3"
)

// notesRef is the ref the metadata notes live under. Open configures
// notes.rewriteRef so git migrates these notes when the user amends or
// rebases an annotated commit.
const notesRef = "refs/notes/commits"

// CommitMetadata links a local commit to the remote branch it is published
// as. It is stored as a git note keyed by the commit's current identifier;
// the note body is a small YAML mapping:
//
//	remote-branch: <name>
//	remote-commit: <id>
//
// RemoteCommit is only present when the metadata is pinned to a specific
// remote state (a deleted or renamed remote branch). When absent, the
// remote branch's current tip is authoritative.
type CommitMetadata struct {
	RemoteBranchName string `yaml:"remote-branch"`
	RemoteCommit     string `yaml:"remote-commit,omitempty"`
}

func (m CommitMetadata) String() string {
	s := "remote-branch: " + m.RemoteBranchName
	if m.RemoteCommit != "" {
		s += "\nremote-commit: " + m.RemoteCommit
	}
	return s
}

// Metadata reads the note attached to a commit. The second return value is
// false when the commit carries no note, or a note this tool does not
// recognize (a note without a remote-branch line is somebody else's).
func (r *Repo) Metadata(commit plumbing.Hash) (CommitMetadata, bool, error) {
	body, found, err := r.noteBody(commit)
	if err != nil || !found {
		return CommitMetadata{}, false, err
	}

	var meta CommitMetadata
	if err := yaml.Unmarshal([]byte(body), &meta); err != nil {
		// Not ours. Unparseable notes are ignored, not fatal.
		return CommitMetadata{}, false, nil
	}
	if meta.RemoteBranchName == "" {
		return CommitMetadata{}, false, nil
	}
	return meta, true, nil
}

// SaveMetadata attaches metadata to a commit, overwriting any existing
// note for that identifier.
func (r *Repo) SaveMetadata(ctx context.Context, commit *object.Commit, meta CommitMetadata) error {
	_, err := r.run.gitEnv(ctx, r.identityEnv(commit),
		"notes", "add", "-f", "-m", meta.String(), commit.Hash.String())
	if err != nil {
		return fmt.Errorf("saving metadata for %s: %w", commit.Hash, err)
	}
	return nil
}

// RemoveMetadata deletes the note attached to a commit. Removing a note
// that does not exist is not an error.
func (r *Repo) RemoveMetadata(ctx context.Context, commit *object.Commit) error {
	_, err := r.run.gitEnv(ctx, r.identityEnv(commit),
		"notes", "remove", "--ignore-missing", commit.Hash.String())
	if err != nil {
		return fmt.Errorf("removing metadata for %s: %w", commit.Hash, err)
	}
	return nil
}

// noteBody looks the commit up in the notes tree. Notes trees store blobs
// under the full hex id, optionally sharded into one or two levels of
// two-character fanout directories.
func (r *Repo) noteBody(commit plumbing.Hash) (string, bool, error) {
	ref, err := r.gogit.Reference(plumbing.ReferenceName(notesRef), true)
	if err == plumbing.ErrReferenceNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolving %s: %w", notesRef, err)
	}

	notesCommit, err := r.gogit.CommitObject(ref.Hash())
	if err != nil {
		return "", false, fmt.Errorf("reading notes commit: %w", err)
	}
	tree, err := notesCommit.Tree()
	if err != nil {
		return "", false, fmt.Errorf("reading notes tree: %w", err)
	}

	hex := commit.String()
	for _, path := range []string{
		hex,
		hex[:2] + "/" + hex[2:],
		hex[:2] + "/" + hex[2:4] + "/" + hex[4:],
	} {
		f, err := tree.File(path)
		if err == object.ErrFileNotFound {
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("reading note %s: %w", path, err)
		}
		body, err := f.Contents()
		if err != nil {
			return "", false, fmt.Errorf("reading note %s: %w", path, err)
		}
		return body, true, nil
	}
	return "", false, nil
}

// identityEnv returns identity overrides for repositories without a
// configured user, copying the identity from the commit being operated
// on. With a configured identity git signs as usual and no overrides are
// needed. Callers append more specific GIT_AUTHOR_* values on top; later
// entries win.
func (r *Repo) identityEnv(fallback *object.Commit) []string {
	if r.hasIdentity {
		return nil
	}
	sig := fallback.Committer
	return []string{
		"GIT_COMMITTER_NAME=" + sig.Name,
		"GIT_COMMITTER_EMAIL=" + sig.Email,
		"GIT_AUTHOR_NAME=" + sig.Name,
		"GIT_AUTHOR_EMAIL=" + sig.Email,
	}
}
