// Package vcs is the version-control port used by repository snapshots.
//
// Two adapters implement Git: CLI shells out to the git binary with a per-call
// timeout, Native drives go-git in process. Both report merge conflicts as
// ErrMergeConflict so callers can tell a tolerable conflict from a real failure.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMergeConflict is returned by Merge when the merge stopped on conflicts.
	ErrMergeConflict = errors.New("merge conflict")
	// ErrTimeout is returned when a single git operation exceeded its deadline.
	ErrTimeout = errors.New("git operation timed out")
	// ErrRemoteExists is returned by AddRemote when the remote name is taken.
	ErrRemoteExists = errors.New("remote already exists")
)

// Git is the set of operations a snapshot needs. Every call operates on the
// working copy at dir and blocks until the operation finishes.
type Git interface {
	Clone(ctx context.Context, url, dir string) error
	AddRemote(ctx context.Context, dir, name, url string) error
	Fetch(ctx context.Context, dir, remote string) error
	// CreateBranchFromRemote creates branch at remoteRef ("<remote>/<ref>") and checks it out.
	CreateBranchFromRemote(ctx context.Context, dir, branch, remoteRef string) error
	// Merge merges ref into the checked-out branch.
	Merge(ctx context.Context, dir, ref, message string) error
	// ResetMerge abandons an in-progress merge and restores the pre-merge tree.
	ResetMerge(ctx context.Context, dir string) error
	// QuitMerge forgets any merge state without touching the tree.
	QuitMerge(ctx context.Context, dir string) error
}

// CommandError describes a failed git operation.
type CommandError struct {
	Op     string
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("git %s: %v", e.Op, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// SplitRemoteRef splits "<remote>/<ref>" at the first slash.
func SplitRemoteRef(remoteRef string) (remote, ref string, err error) {
	remote, ref, ok := strings.Cut(remoteRef, "/")
	if !ok || remote == "" || ref == "" {
		return "", "", fmt.Errorf("invalid remote ref %q", remoteRef)
	}
	return remote, ref, nil
}
