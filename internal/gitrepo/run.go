package gitrepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// runner executes git against a fixed working directory. go-git covers the
// read side of the repository; everything that writes (config, notes,
// merge-tree, commit-tree, checkout, merge, push, fetch) goes through here.
type runner struct {
	dir string
}

// git runs a git command and returns its stdout. stderr is folded into the
// returned error on failure.
func (r *runner) git(ctx context.Context, args ...string) (string, error) {
	return r.gitInput(ctx, nil, nil, args...)
}

// gitEnv runs a git command with extra environment variables appended to
// the inherited environment.
func (r *runner) gitEnv(ctx context.Context, extraEnv []string, args ...string) (string, error) {
	return r.gitInput(ctx, nil, extraEnv, args...)
}

// gitInput runs a git command feeding stdin from the given bytes.
func (r *runner) gitInput(ctx context.Context, stdin []byte, extraEnv []string, args ...string) (string, error) {
	out, errOut, code, err := r.gitCode(ctx, stdin, extraEnv, args...)
	if err != nil {
		return "", err
	}
	if code != 0 {
		msg := strings.TrimSpace(errOut)
		if msg == "" {
			msg = strings.TrimSpace(out)
		}
		if msg == "" {
			return "", fmt.Errorf("git %s: exit status %d", args[0], code)
		}
		return "", fmt.Errorf("git %s: %s", args[0], msg)
	}
	return out, nil
}

// gitCode runs a git command and reports its exit code instead of treating
// a non-zero exit as an error. merge-tree and merge use exit status 1 to
// signal conflicts, not failure.
func (r *runner) gitCode(ctx context.Context, stdin []byte, extraEnv []string, args ...string) (stdout, stderr string, code int, err error) {
	cmdArgs := append([]string{"-C", r.dir}, args...)
	cmd := exec.CommandContext(ctx, "git", cmdArgs...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_EDITOR=:")
	cmd.Env = append(cmd.Env, extraEnv...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	slog.Debug("git", "args", args, "err", runErr)
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return outBuf.String(), errBuf.String(), exitErr.ExitCode(), nil
		}
		return "", "", -1, fmt.Errorf("git %s: %w", args[0], runErr)
	}
	return outBuf.String(), errBuf.String(), 0, nil
}

// gitStreaming runs a git command with stdout and stderr inherited from the
// process, so the user sees git's own progress output. Used for network
// commands in the default mode.
func (r *runner) gitStreaming(ctx context.Context, args ...string) error {
	cmdArgs := append([]string{"-C", r.dir}, args...)
	cmd := exec.CommandContext(ctx, "git", cmdArgs...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	slog.Debug("git", "args", args, "err", err)
	if err != nil {
		return fmt.Errorf("git %s: %w", args[0], err)
	}
	return nil
}

// gitLine runs a git command and returns its first output line, trimmed.
func (r *runner) gitLine(ctx context.Context, args ...string) (string, error) {
	out, err := r.git(ctx, args...)
	if err != nil {
		return "", err
	}
	return firstLine(out), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
