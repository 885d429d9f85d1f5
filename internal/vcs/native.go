package vcs

import (
	"context"
	"errors"
	"fmt"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
)

// Native implements Git with go-git. It needs no git binary but only merges
// when the result is a fast-forward; diverged histories report ErrMergeConflict,
// which snapshots treat like any other conflict and keep the branch tip.
type Native struct {
	timeout time.Duration
}

func NewNative(timeout time.Duration) *Native {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Native{timeout: timeout}
}

func (n *Native) Clone(ctx context.Context, url, dir string) error {
	callCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if _, err := git.PlainCloneContext(callCtx, dir, false, &git.CloneOptions{URL: url}); err != nil {
		return n.wrap(callCtx, "clone", err)
	}
	return nil
}

func (n *Native) AddRemote(_ context.Context, dir, name, url string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return &CommandError{Op: "remote add", Err: fmt.Errorf("open repo: %w", err)}
	}
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{Name: name, URLs: []string{url}})
	if errors.Is(err, git.ErrRemoteExists) {
		return fmt.Errorf("%w: %s", ErrRemoteExists, name)
	}
	if err != nil {
		return &CommandError{Op: "remote add", Err: err}
	}
	return nil
}

func (n *Native) Fetch(ctx context.Context, dir, remote string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return &CommandError{Op: "fetch", Err: fmt.Errorf("open repo: %w", err)}
	}

	callCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	err = repo.FetchContext(callCtx, &git.FetchOptions{RemoteName: remote})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return n.wrap(callCtx, "fetch", err)
	}
	return nil
}

func (n *Native) CreateBranchFromRemote(_ context.Context, dir, branch, remoteRef string) error {
	remote, ref, err := SplitRemoteRef(remoteRef)
	if err != nil {
		return &CommandError{Op: "switch", Err: err}
	}
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return &CommandError{Op: "switch", Err: fmt.Errorf("open repo: %w", err)}
	}
	source, err := repo.Reference(plumbing.NewRemoteReferenceName(remote, ref), true)
	if err != nil {
		return &CommandError{Op: "switch", Err: fmt.Errorf("resolve %s: %w", remoteRef, err)}
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return &CommandError{Op: "switch", Err: fmt.Errorf("open worktree: %w", err)}
	}
	if err := worktree.Checkout(&git.CheckoutOptions{
		Hash:   source.Hash(),
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: true,
	}); err != nil {
		return &CommandError{Op: "switch", Err: fmt.Errorf("checkout %s: %w", branch, err)}
	}
	return nil
}

func (n *Native) Merge(_ context.Context, dir, ref, _ string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return &CommandError{Op: "merge", Err: fmt.Errorf("open repo: %w", err)}
	}
	head, err := repo.Head()
	if err != nil {
		return &CommandError{Op: "merge", Err: fmt.Errorf("resolve HEAD: %w", err)}
	}
	target, err := repo.Reference(plumbing.NewBranchReferenceName(ref), true)
	if err != nil {
		return &CommandError{Op: "merge", Err: fmt.Errorf("resolve %s: %w", ref, err)}
	}
	if head.Hash() == target.Hash() {
		return nil
	}

	headCommit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return &CommandError{Op: "merge", Err: fmt.Errorf("load HEAD commit: %w", err)}
	}
	targetCommit, err := repo.CommitObject(target.Hash())
	if err != nil {
		return &CommandError{Op: "merge", Err: fmt.Errorf("load %s commit: %w", ref, err)}
	}

	upToDate, err := targetCommit.IsAncestor(headCommit)
	if err != nil {
		return &CommandError{Op: "merge", Err: fmt.Errorf("ancestry check: %w", err)}
	}
	if upToDate {
		return nil
	}
	fastForward, err := headCommit.IsAncestor(targetCommit)
	if err != nil {
		return &CommandError{Op: "merge", Err: fmt.Errorf("ancestry check: %w", err)}
	}
	if !fastForward {
		return fmt.Errorf("%w: %s has diverged", ErrMergeConflict, ref)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return &CommandError{Op: "merge", Err: fmt.Errorf("open worktree: %w", err)}
	}
	if err := worktree.Reset(&git.ResetOptions{Commit: target.Hash(), Mode: git.HardReset}); err != nil {
		return &CommandError{Op: "merge", Err: fmt.Errorf("fast-forward to %s: %w", ref, err)}
	}
	return nil
}

func (n *Native) ResetMerge(_ context.Context, dir string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return &CommandError{Op: "reset --merge", Err: fmt.Errorf("open repo: %w", err)}
	}
	head, err := repo.Head()
	if err != nil {
		return &CommandError{Op: "reset --merge", Err: fmt.Errorf("resolve HEAD: %w", err)}
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return &CommandError{Op: "reset --merge", Err: fmt.Errorf("open worktree: %w", err)}
	}
	if err := worktree.Reset(&git.ResetOptions{Commit: head.Hash(), Mode: git.HardReset}); err != nil {
		return &CommandError{Op: "reset --merge", Err: err}
	}
	return nil
}

// QuitMerge is a no-op: Native never leaves merge state behind.
func (n *Native) QuitMerge(context.Context, string) error {
	return nil
}

func (n *Native) wrap(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &CommandError{Op: op, Err: ErrTimeout}
	}
	return &CommandError{Op: op, Err: err}
}
