package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"fipsync/internal/vcs"

	"github.com/google/uuid"
)

// TrackedDirs are the repository directories that hold proposal documents,
// in the order they are listed.
var TrackedDirs = []string{"/FIPS", "/FRCs"}

// DefaultCloneURL is the clone URL template; {owner} and {repo} are substituted.
const DefaultCloneURL = "https://github.com/{owner}/{repo}"

const mergeMessage = "nothing"

var (
	// ErrMaterialization wraps failures to add, fetch, or check out a request branch.
	ErrMaterialization = errors.New("materialize request branch")
	// ErrUnmergeable wraps merge failures that are not plain conflicts, and
	// conflicts whose merge state could not be reset.
	ErrUnmergeable = errors.New("unmergeable branch")
)

// PathSet is a set of repository paths such as "/FIPS/fip-0001.md".
type PathSet map[string]struct{}

func (p PathSet) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// Source identifies the branch a change request proposes.
type Source struct {
	Number int
	Owner  string
	Repo   string
	Ref    string
}

type Options struct {
	Owner    string
	Name     string
	Baseline string
	CloneURL string
	WorkRoot string
}

// Snapshot is one working copy of the tracked repository, shared by every
// request of a run. It is not safe for concurrent use.
type Snapshot struct {
	git      vcs.Git
	logger   *slog.Logger
	root     string
	dir      string
	baseline string
	cloneURL string
}

// Prepare clones the tracked repository into a fresh directory under WorkRoot.
func Prepare(ctx context.Context, git vcs.Git, opts Options, logger *slog.Logger) (*Snapshot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Baseline == "" {
		opts.Baseline = "master"
	}
	if opts.CloneURL == "" {
		opts.CloneURL = DefaultCloneURL
	}
	if opts.WorkRoot == "" {
		opts.WorkRoot = os.TempDir()
	}

	root := filepath.Join(opts.WorkRoot, uuid.NewString())
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	s := &Snapshot{
		git:      git,
		logger:   logger,
		root:     root,
		dir:      filepath.Join(root, opts.Name),
		baseline: opts.Baseline,
		cloneURL: opts.CloneURL,
	}

	url := s.RepoURL(opts.Owner, opts.Name)
	logger.Info("cloning repository", "url", url, "dir", s.dir)
	if err := git.Clone(ctx, url, s.dir); err != nil {
		_ = os.RemoveAll(root)
		return nil, fmt.Errorf("clone %s: %w", url, err)
	}
	return s, nil
}

// Dir is the working copy path.
func (s *Snapshot) Dir() string {
	return s.dir
}

// Baseline is the branch new documents are compared against.
func (s *Snapshot) Baseline() string {
	return s.baseline
}

func (s *Snapshot) RepoURL(owner, repo string) string {
	return strings.NewReplacer("{owner}", owner, "{repo}", repo).Replace(s.cloneURL)
}

// KnownDocumentPaths lists the tracked documents of the freshly cloned baseline.
// It must be called before any request branch is materialized.
func (s *Snapshot) KnownDocumentPaths() (PathSet, error) {
	names, err := s.listDocuments()
	if err != nil {
		return nil, err
	}
	set := make(PathSet, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set, nil
}

// Materialize checks out the request's source branch and returns the local branch name.
func (s *Snapshot) Materialize(ctx context.Context, src Source) (string, error) {
	remote := fmt.Sprintf("pull-%d", src.Number)
	branch := remote + "-branch"

	if err := s.git.AddRemote(ctx, s.dir, remote, s.RepoURL(src.Owner, src.Repo)); err != nil {
		if !errors.Is(err, vcs.ErrRemoteExists) {
			return "", fmt.Errorf("%w: add remote %s: %w", ErrMaterialization, remote, err)
		}
		s.logger.Debug("reusing remote", "remote", remote)
	}
	if err := s.git.Fetch(ctx, s.dir, remote); err != nil {
		return "", fmt.Errorf("%w: fetch %s: %w", ErrMaterialization, remote, err)
	}
	if err := s.git.CreateBranchFromRemote(ctx, s.dir, branch, remote+"/"+src.Ref); err != nil {
		return "", fmt.Errorf("%w: checkout %s: %w", ErrMaterialization, branch, err)
	}
	return branch, nil
}

// Reconcile merges the baseline into the checked-out branch. A conflicted merge
// is abandoned and the branch keeps its pre-merge tree; merged reports which
// of the two happened.
func (s *Snapshot) Reconcile(ctx context.Context, branch string) (merged bool, err error) {
	defer func() {
		if quitErr := s.git.QuitMerge(ctx, s.dir); quitErr != nil {
			s.logger.Warn("could not clear merge state", "branch", branch, "error", quitErr)
		}
	}()

	err = s.git.Merge(ctx, s.dir, s.baseline, mergeMessage)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, vcs.ErrMergeConflict) {
		return false, fmt.Errorf("%w: merge %s into %s: %w", ErrUnmergeable, s.baseline, branch, err)
	}

	s.logger.Info("merge conflict, using unmerged branch tip", "branch", branch, "baseline", s.baseline)
	if err := s.git.ResetMerge(ctx, s.dir); err != nil {
		return false, fmt.Errorf("%w: reset conflicted merge on %s: %w", ErrUnmergeable, branch, err)
	}
	return false, nil
}

// NewDocumentPaths lists tracked documents in the working tree that are not in
// baseline, in listing order.
func (s *Snapshot) NewDocumentPaths(baseline PathSet) ([]string, error) {
	names, err := s.listDocuments()
	if err != nil {
		return nil, err
	}
	added := make([]string, 0)
	for _, name := range names {
		if !baseline.Has(name) {
			added = append(added, name)
		}
	}
	return added, nil
}

func (s *Snapshot) ReadDocument(name string) (string, error) {
	content, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(name)))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(content), nil
}

// Close removes the working directory.
func (s *Snapshot) Close() error {
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("remove work dir: %w", err)
	}
	return nil
}

// listDocuments walks TrackedDirs in order; a missing directory contributes nothing.
func (s *Snapshot) listDocuments() ([]string, error) {
	names := make([]string, 0)
	for _, dir := range TrackedDirs {
		entries, err := os.ReadDir(filepath.Join(s.dir, filepath.FromSlash(dir)))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", dir, err)
		}
		dirNames := make([]string, 0, len(entries))
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			dirNames = append(dirNames, path.Join(dir, entry.Name()))
		}
		sort.Strings(dirNames)
		names = append(names, dirNames...)
	}
	return names, nil
}
