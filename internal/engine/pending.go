package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/unibranch/ubr/internal/gitrepo"
)

// PendingEngine reports the stack without mutating anything.
type PendingEngine struct {
	Repo *gitrepo.Repo
}

// PendingOptions configures a pending report.
type PendingOptions struct {
	// Diff includes a unified diff with every entry.
	Diff bool
}

// Pending lists the stack oldest first. For tracked commits it also
// probes whether publishing now would change the remote branch.
func (e *PendingEngine) Pending(ctx context.Context, opts PendingOptions) ([]PendingEntry, error) {
	stack, err := e.Repo.UnpushedCommits()
	if err != nil {
		return nil, err
	}

	entries := make([]PendingEntry, 0, len(stack))
	for _, element := range stack {
		commit := element.Commit()
		entry := PendingEntry{
			ID:      commit.Hash.String(),
			Subject: subject(commit),
		}

		// Diffs for untracked commits and for tracked commits whose
		// branch vanished show the commit's own changeset.
		diffFrom, err := commit.Parent(0)
		if err != nil {
			return nil, fmt.Errorf("parent of %s: %w", commit.Hash, err)
		}

		if tracked, ok := element.(gitrepo.TrackedCommit); ok {
			entry.Tracked = true
			entry.Branch = tracked.Meta.RemoteBranchName
			entry.Pinned = tracked.Meta.RemoteCommit != ""

			tip, err := tracked.RemoteTip(ctx)
			switch {
			case errors.Is(err, gitrepo.ErrRemoteBranchMissing):
				entry.BranchMissing = true
			case err != nil:
				return nil, err
			default:
				candidate, conflicts, err := e.Repo.CherryPickTree(ctx, commit, tip)
				if err != nil {
					return nil, err
				}
				entry.InSync = len(conflicts) == 0 && candidate == tip.TreeHash
				diffFrom = tip
			}
		}

		if opts.Diff {
			entry.Diff, err = renderTreeDiff(diffFrom, commit)
			if err != nil {
				return nil, err
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// renderTreeDiff renders the file-by-file unified diff between two
// commits' trees.
func renderTreeDiff(from, to *object.Commit) (string, error) {
	fromTree, err := from.Tree()
	if err != nil {
		return "", err
	}
	toTree, err := to.Tree()
	if err != nil {
		return "", err
	}
	changes, err := object.DiffTree(fromTree, toTree)
	if err != nil {
		return "", fmt.Errorf("diffing %s..%s: %w", from.Hash, to.Hash, err)
	}

	var sb strings.Builder
	for _, change := range changes {
		path := change.To.Name
		if path == "" {
			path = change.From.Name
		}
		oldText, err := blobText(fromTree, change.From.Name)
		if err != nil {
			return "", err
		}
		newText, err := blobText(toTree, change.To.Name)
		if err != nil {
			return "", err
		}
		if isBinary(oldText) || isBinary(newText) {
			fmt.Fprintf(&sb, "Binary files a/%s and b/%s differ\n", path, path)
			continue
		}

		text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        diffLines(oldText),
			B:        diffLines(newText),
			FromFile: "a/" + path,
			ToFile:   "b/" + path,
			Context:  3,
		})
		if err != nil {
			return "", fmt.Errorf("diffing %s: %w", path, err)
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

// blobText loads a file's content from a tree. An empty name stands for
// the missing side of a creation or deletion.
func blobText(tree *object.Tree, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	file, err := tree.File(name)
	if err != nil {
		return "", fmt.Errorf("loading %s: %w", name, err)
	}
	return file.Contents()
}

// diffLines splits content for difflib. An empty side must stay empty or
// created and deleted files grow a phantom blank line.
func diffLines(s string) []string {
	if s == "" {
		return nil
	}
	return difflib.SplitLines(s)
}

func isBinary(s string) bool {
	return strings.ContainsRune(s, '\x00')
}
