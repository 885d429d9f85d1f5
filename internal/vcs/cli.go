package vcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single git invocation when no timeout is configured.
const DefaultTimeout = 2 * time.Minute

// Identity used for merge commits created while reconciling a branch.
const (
	committerName  = "fipsync"
	committerEmail = "fipsync@localhost"
)

// CLI runs the git binary.
type CLI struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewCLI returns a CLI adapter. A non-positive timeout falls back to DefaultTimeout.
func NewCLI(timeout time.Duration, logger *slog.Logger) *CLI {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CLI{binary: "git", timeout: timeout, logger: logger}
}

func (c *CLI) Clone(ctx context.Context, url, dir string) error {
	_, err := c.run(ctx, "", "clone", "clone", "--quiet", url, dir)
	return err
}

func (c *CLI) AddRemote(ctx context.Context, dir, name, url string) error {
	out, err := c.run(ctx, dir, "remote add", "remote", "add", name, url)
	if err != nil && strings.Contains(out, "already exists") {
		return fmt.Errorf("%w: %s", ErrRemoteExists, name)
	}
	return err
}

func (c *CLI) Fetch(ctx context.Context, dir, remote string) error {
	_, err := c.run(ctx, dir, "fetch", "fetch", "--quiet", remote)
	return err
}

func (c *CLI) CreateBranchFromRemote(ctx context.Context, dir, branch, remoteRef string) error {
	_, err := c.run(ctx, dir, "switch", "switch", "--quiet", "-c", branch, remoteRef)
	return err
}

func (c *CLI) Merge(ctx context.Context, dir, ref, message string) error {
	out, err := c.run(ctx, dir, "merge",
		"-c", "user.name="+committerName,
		"-c", "user.email="+committerEmail,
		"merge", "--no-edit", ref, "-m", message,
	)
	if err == nil {
		return nil
	}
	if isConflictOutput(out) {
		return fmt.Errorf("%w: %s", ErrMergeConflict, ref)
	}
	return err
}

func (c *CLI) ResetMerge(ctx context.Context, dir string) error {
	_, err := c.run(ctx, dir, "reset --merge", "reset", "--merge")
	return err
}

func (c *CLI) QuitMerge(ctx context.Context, dir string) error {
	_, err := c.run(ctx, dir, "merge --quit", "merge", "--quit")
	return err
}

// run executes git under the adapter timeout and returns combined output.
func (c *CLI) run(ctx context.Context, dir, op string, args ...string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(callCtx, c.binary, args...)
	cmd.Dir = dir
	// never block on credential prompts for missing forks
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")

	c.logger.Debug("git command", "op", op, "args", args, "dir", dir)

	output, err := cmd.CombinedOutput()
	if err == nil {
		return string(output), nil
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return string(output), &CommandError{Op: op, Args: args, Output: string(output), Err: ErrTimeout}
	}
	return string(output), &CommandError{Op: op, Args: args, Output: string(output), Err: err}
}

func isConflictOutput(out string) bool {
	return strings.Contains(out, "CONFLICT") ||
		strings.Contains(out, "Automatic merge failed")
}
