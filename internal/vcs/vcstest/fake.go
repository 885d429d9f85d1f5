// Package vcstest provides an in-memory vcs.Git that writes fixture trees
// instead of running git.
package vcstest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"fipsync/internal/vcs"
)

// Tree maps slash-separated repository paths to file contents.
type Tree map[string]string

// Branch is what a fetched pull request remote serves.
type Branch struct {
	Files Tree
	// Conflict makes merging the baseline into this branch stop on conflicts.
	Conflict bool
	// MergedFiles, when set, replaces the tree after a successful merge.
	MergedFiles Tree
}

// FakeGit serves Baseline on Clone and Remotes[name] when a branch is created
// from "<name>/<ref>". Errors can be injected per operation.
type FakeGit struct {
	Baseline Tree
	Remotes  map[string]Branch

	CloneErr    error
	FetchErr    map[string]error
	ResetErr    error
	MergeErr    error
	SwitchErr   map[string]error
	ExistingRef map[string]bool

	mu      sync.Mutex
	current string
	Calls   []string
}

func (f *FakeGit) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, fmt.Sprintf(format, args...))
}

func (f *FakeGit) Clone(_ context.Context, url, dir string) error {
	f.record("clone %s", url)
	if f.CloneErr != nil {
		return &vcs.CommandError{Op: "clone", Err: f.CloneErr}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return writeTree(dir, f.Baseline)
}

func (f *FakeGit) AddRemote(_ context.Context, _, name, url string) error {
	f.record("remote add %s %s", name, url)
	if f.ExistingRef[name] {
		return fmt.Errorf("%w: %s", vcs.ErrRemoteExists, name)
	}
	return nil
}

func (f *FakeGit) Fetch(_ context.Context, _, remote string) error {
	f.record("fetch %s", remote)
	if err := f.FetchErr[remote]; err != nil {
		return &vcs.CommandError{Op: "fetch", Err: err}
	}
	return nil
}

func (f *FakeGit) CreateBranchFromRemote(_ context.Context, dir, branch, remoteRef string) error {
	f.record("switch -c %s %s", branch, remoteRef)
	remote, _, err := vcs.SplitRemoteRef(remoteRef)
	if err != nil {
		return &vcs.CommandError{Op: "switch", Err: err}
	}
	if err := f.SwitchErr[remote]; err != nil {
		return &vcs.CommandError{Op: "switch", Err: err}
	}
	served, ok := f.Remotes[remote]
	if !ok {
		return &vcs.CommandError{Op: "switch", Err: fmt.Errorf("invalid reference: %s", remoteRef)}
	}
	if err := replaceTree(dir, served.Files); err != nil {
		return err
	}
	f.mu.Lock()
	f.current = remote
	f.mu.Unlock()
	return nil
}

func (f *FakeGit) Merge(_ context.Context, dir, ref, _ string) error {
	f.record("merge %s", ref)
	if f.MergeErr != nil {
		return &vcs.CommandError{Op: "merge", Err: f.MergeErr}
	}
	f.mu.Lock()
	served := f.Remotes[f.current]
	f.mu.Unlock()
	if served.Conflict {
		return fmt.Errorf("%w: %s", vcs.ErrMergeConflict, ref)
	}
	if served.MergedFiles != nil {
		return replaceTree(dir, served.MergedFiles)
	}
	return nil
}

func (f *FakeGit) ResetMerge(context.Context, string) error {
	f.record("reset --merge")
	if f.ResetErr != nil {
		return &vcs.CommandError{Op: "reset --merge", Err: f.ResetErr}
	}
	return nil
}

func (f *FakeGit) QuitMerge(context.Context, string) error {
	f.record("merge --quit")
	return nil
}

// replaceTree removes everything but .git from dir and writes tree.
func replaceTree(dir string, tree Tree) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Name() == ".git" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return writeTree(dir, tree)
}

func writeTree(dir string, tree Tree) error {
	for name, content := range tree {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}
