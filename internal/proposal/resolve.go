package proposal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fipsync/internal/gitrepo"
)

// Kind classifies why a request produced no document.
type Kind string

const (
	KindNoNewDocument       Kind = "no_new_document"
	KindMultipleDocuments   Kind = "multiple_documents"
	KindUnmergeableConflict Kind = "unmergeable_conflict"
	KindMaterialization     Kind = "materialization"
	KindReadFailed          Kind = "read_failed"
)

// ResolutionError is returned by Resolve for every per-request failure.
type ResolutionError struct {
	Kind   Kind
	Number int
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resolve request %d: %s", e.Number, e.Kind)
	}
	return fmt.Sprintf("resolve request %d: %s: %v", e.Number, e.Kind, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a ResolutionError of the given kind.
func IsKind(err error, kind Kind) bool {
	var resErr *ResolutionError
	return errors.As(err, &resErr) && resErr.Kind == kind
}

// Snapshot is the working copy a Resolver reads from.
type Snapshot interface {
	Materialize(ctx context.Context, src gitrepo.Source) (string, error)
	Reconcile(ctx context.Context, branch string) (bool, error)
	NewDocumentPaths(baseline gitrepo.PathSet) ([]string, error)
	ReadDocument(name string) (string, error)
}

// Resolution is a resolved document and how its branch was reconciled.
type Resolution struct {
	Document Document
	// Merged is false when the baseline conflicted and the branch tip was used.
	Merged bool
	// Candidates is every new document found; only the first is resolved.
	Candidates []string
}

type Resolver struct {
	logger *slog.Logger
}

func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger}
}

// Resolve materializes the request branch, reconciles it with the baseline,
// and parses the one document it adds. More than one new document is only
// a warning; the first in listing order wins.
func (r *Resolver) Resolve(ctx context.Context, snap Snapshot, src gitrepo.Source, baseline gitrepo.PathSet) (Resolution, error) {
	branch, err := snap.Materialize(ctx, src)
	if err != nil {
		return Resolution{}, &ResolutionError{Kind: KindMaterialization, Number: src.Number, Err: err}
	}

	merged, err := snap.Reconcile(ctx, branch)
	if err != nil {
		return Resolution{}, &ResolutionError{Kind: KindUnmergeableConflict, Number: src.Number, Err: err}
	}

	added, err := snap.NewDocumentPaths(baseline)
	if err != nil {
		return Resolution{}, &ResolutionError{Kind: KindReadFailed, Number: src.Number, Err: err}
	}
	if len(added) == 0 {
		return Resolution{}, &ResolutionError{Kind: KindNoNewDocument, Number: src.Number}
	}
	if len(added) > 1 {
		r.logger.Warn("request adds more than one document, using the first",
			"request", src.Number, "owner", src.Owner, "repo", src.Repo,
			"documents", added, "kind", KindMultipleDocuments)
	}

	name := added[0]
	content, err := snap.ReadDocument(name)
	if err != nil {
		return Resolution{}, &ResolutionError{Kind: KindReadFailed, Number: src.Number, Err: err}
	}

	return Resolution{
		Document:   ParseDocument(name, content),
		Merged:     merged,
		Candidates: added,
	}, nil
}
