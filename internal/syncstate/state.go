// Package syncstate persists the record of an interrupted reconciliation.
//
// The file lives at .ubr/SYNC_MERGE_HEAD under the repository root. Its
// presence is the sole signal that a sync was halted by a merge conflict;
// at most one may exist at a time.
package syncstate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the state file path relative to the repository root.
const FileName = ".ubr/SYNC_MERGE_HEAD"

// ErrStateExists is returned by Save when a state file is already present.
// Two outstanding conflicts would mean a corrupted run.
var ErrStateExists = errors.New("sync state file already exists")

// State records the stack position a reconciliation halted at.
//
// MainCommitID is the local commit whose merge conflicted, RemoteCommitID
// the remote tip it was being merged with, and MainCommitParentID the
// already-reconciled predecessor the resumed merge commit must be
// re-parented onto (the base commit when the conflicted commit is first in
// the stack).
type State struct {
	MainCommitID       string `yaml:"main_commit_id"`
	RemoteCommitID     string `yaml:"remote_commit_id"`
	MainCommitParentID string `yaml:"main_commit_parent_id"`
	MainBranchName     string `yaml:"main_branch_name"`
}

// Path returns the state file location for a repository root.
func Path(root string) string {
	return filepath.Join(root, filepath.FromSlash(FileName))
}

// Load reads and validates a sync state file. A missing file is reported
// via os.IsNotExist on the returned error.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parsing sync state %s: %w", path, err)
	}

	if errs := Validate(&st); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	return &st, nil
}

// Save writes a sync state file atomically using a temp file and rename.
// It fails with ErrStateExists if a state file is already present.
func Save(path string, st *State) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s: %w", path, ErrStateExists)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshaling sync state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing temp sync state %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming temp sync state to %s: %w", path, err)
	}

	return nil
}

// Remove deletes the state file. Called only after the resumed merge commit
// is durably created.
func Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("cleanup sync state: %w", err)
	}
	return nil
}

// ValidationError holds multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sync state validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Validate checks a State for semantic correctness.
// Returns a list of validation error messages (empty if valid).
func Validate(st *State) []string {
	var errs []string

	check := func(field, value string) {
		if value == "" {
			errs = append(errs, fmt.Sprintf("'%s' is required", field))
			return
		}
		if !isHexID(value) {
			errs = append(errs, fmt.Sprintf("'%s' is not a commit id: %q", field, value))
		}
	}

	check("main_commit_id", st.MainCommitID)
	check("remote_commit_id", st.RemoteCommitID)
	check("main_commit_parent_id", st.MainCommitParentID)

	if st.MainBranchName == "" {
		errs = append(errs, "'main_branch_name' is required")
	}

	return errs
}

func isHexID(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
