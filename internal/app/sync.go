package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"fipsync/internal/archive"
	"fipsync/internal/config"
	"fipsync/internal/events"
	"fipsync/internal/github"
	"fipsync/internal/gitrepo"
	"fipsync/internal/proposal"
	"fipsync/internal/store"
	"fipsync/internal/util"

	"golang.org/x/sync/errgroup"
)

// Summary is the result of one sync run.
type Summary struct {
	ExistingDocuments int `json:"existingDocuments" yaml:"existingDocuments"`
	OpenRequests      int `json:"openRequests" yaml:"openRequests"`
	RecordsUpdated    int `json:"recordsUpdated" yaml:"recordsUpdated"`
	RecordsCreated    int `json:"recordsCreated" yaml:"recordsCreated"`
	Skipped           int `json:"skipped" yaml:"skipped"`
	Unchanged         int `json:"unchanged" yaml:"unchanged"`
	Requests          int `json:"totalRequests" yaml:"totalRequests"`
}

// outcome is what happened to one request; it doubles as the metrics label.
type outcome string

const (
	outcomeCreated   outcome = "created"
	outcomeUpdated   outcome = "updated"
	outcomeUnchanged outcome = "unchanged"
	outcomeSkipped   outcome = "skipped"
	outcomeIgnored   outcome = "ignored"
)

func (s *Summary) add(o outcome) {
	switch o {
	case outcomeCreated:
		s.RecordsCreated++
	case outcomeUpdated:
		s.RecordsUpdated++
	case outcomeUnchanged:
		s.Unchanged++
	case outcomeSkipped:
		s.Skipped++
	}
}

// Sync reconciles every pull request of repo with the record store. Setup
// failures abort the run; failures for a single request are logged and the
// request is skipped.
func (s *Service) Sync(ctx context.Context, repo config.RepoRef) (summary Summary, err error) {
	if repo.Owner == "" || repo.Name == "" {
		return Summary{}, &config.ConfigError{Field: "repo", Message: "repository owner and name are required"}
	}

	started := s.now()
	runID := util.NewID("run")
	logger := s.logger.With("repo", repo.String(), "run_id", runID)

	release, err := s.runs.AcquireRunLock(ctx, repo.String(), s.cfg.RunLockTTL)
	if err != nil {
		return Summary{}, fmt.Errorf("sync %s: %w", repo, err)
	}
	defer func() {
		if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
			logger.Warn("could not release run lock", "error", relErr)
		}
	}()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		s.metrics.ObserveRun(repo.String(), result, s.now().Sub(started))
	}()

	requests, err := s.requests.ListChangeRequests(ctx, repo.Owner, repo.Name)
	if err != nil {
		return Summary{}, fmt.Errorf("list pull requests for %s: %w", repo, err)
	}

	snap, err := gitrepo.Prepare(ctx, s.git, gitrepo.Options{
		Owner:    repo.Owner,
		Name:     repo.Name,
		Baseline: s.cfg.BaselineBranch,
		CloneURL: s.cfg.CloneURLTemplate,
		WorkRoot: s.cfg.WorkRoot,
	}, logger)
	if err != nil {
		return Summary{}, fmt.Errorf("prepare snapshot of %s: %w", repo, err)
	}
	defer func() {
		if closeErr := snap.Close(); closeErr != nil {
			logger.Warn("could not remove working copy", "dir", snap.Dir(), "error", closeErr)
		}
	}()

	known, err := snap.KnownDocumentPaths()
	if err != nil {
		return Summary{}, fmt.Errorf("list baseline documents of %s: %w", repo, err)
	}

	summary.ExistingDocuments = len(known)
	summary.Requests = len(requests)
	s.metrics.SetExistingDocuments(repo.String(), len(known))
	logger.Info("sync started", "existing_documents", len(known), "requests", len(requests))

	run := &syncRun{
		service: s,
		repo:    repo,
		runID:   runID,
		snap:    snap,
		known:   known,
		logger:  logger,
	}
	for _, req := range requests {
		if err := ctx.Err(); err != nil {
			return Summary{}, fmt.Errorf("sync %s interrupted: %w", repo, err)
		}
		if req.IsOpen() {
			summary.OpenRequests++
		}
		o := run.reconcile(ctx, req)
		summary.add(o)
		s.metrics.CountRequest(repo.String(), string(o))
	}

	logger.Info("sync finished",
		"open_requests", summary.OpenRequests,
		"created", summary.RecordsCreated,
		"updated", summary.RecordsUpdated,
		"unchanged", summary.Unchanged,
		"skipped", summary.Skipped,
		"duration_ms", s.now().Sub(started).Milliseconds(),
	)
	s.recordSummary(repo, summary)
	return summary, nil
}

// SyncAll runs every configured repository, at most ParallelRepos at a time.
// A failing repository does not stop the others; their errors are joined.
func (s *Service) SyncAll(ctx context.Context) (map[string]Summary, error) {
	repos := s.cfg.Repos()
	limit := s.cfg.ParallelRepos
	if limit < 1 {
		limit = 1
	}

	var (
		mu        sync.Mutex
		summaries = make(map[string]Summary, len(repos))
		errs      []error
	)
	var g errgroup.Group
	g.SetLimit(limit)
	for _, repo := range repos {
		g.Go(func() error {
			summary, err := s.Sync(ctx, repo)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			summaries[repo.String()] = summary
			return nil
		})
	}
	_ = g.Wait()
	return summaries, errors.Join(errs...)
}

// syncRun holds the per-run state shared by every request.
type syncRun struct {
	service *Service
	repo    config.RepoRef
	runID   string
	snap    *gitrepo.Snapshot
	known   gitrepo.PathSet
	logger  *slog.Logger
}

func (r *syncRun) reconcile(ctx context.Context, req github.ChangeRequest) outcome {
	logger := r.logger.With("pr", req.Number, "state", req.State)

	existing, err := r.service.store.FindByPRNumber(ctx, r.repo.String(), req.Number)
	if err != nil {
		logger.Warn("could not look up conversation, skipping", "error", err)
		return outcomeSkipped
	}

	switch {
	case existing == nil && !req.IsOpen():
		return outcomeIgnored
	case existing == nil:
		return r.create(ctx, req, logger)
	case !existing.SyncEnabled:
		logger.Info("github sync is disabled for conversation, skipping", "zid", existing.ZID)
		return outcomeIgnored
	case req.IsOpen():
		return r.update(ctx, req, existing, logger)
	default:
		return r.close(ctx, req, existing, logger)
	}
}

func (r *syncRun) create(ctx context.Context, req github.ChangeRequest, logger *slog.Logger) outcome {
	doc, ok := r.resolve(ctx, req, logger)
	if !ok {
		return outcomeSkipped
	}
	pr, err := r.prFields(ctx, req)
	if err != nil {
		logger.Warn("could not map submitter, skipping", "submitter", req.Submitter, "error", err)
		return outcomeSkipped
	}
	fip := fipFields(doc)

	zid, inserted, err := r.service.store.InsertConversation(ctx, pr, fip)
	if err != nil {
		logger.Warn("could not insert conversation, skipping", "error", err)
		return outcomeSkipped
	}
	if !inserted {
		logger.Info("conversation was recorded concurrently", "zid", zid)
		return outcomeUnchanged
	}
	logger.Info("conversation created", "zid", zid, "fip", doc.Number, "path", doc.Path)

	conv := store.Conversation{ZID: zid, SyncEnabled: true, PRFields: pr, FIPFields: fip}
	r.afterWrite(ctx, events.Created, conv, &doc, logger)
	r.welcome(ctx, req.Number, zid, fip.FIPDiscussionsTo, logger)
	return outcomeCreated
}

func (r *syncRun) update(ctx context.Context, req github.ChangeRequest, existing *store.Conversation, logger *slog.Logger) outcome {
	doc, ok := r.resolve(ctx, req, logger)
	if !ok {
		return outcomeSkipped
	}
	pr, err := r.prFields(ctx, req)
	if err != nil {
		logger.Warn("could not map submitter, skipping", "submitter", req.Submitter, "error", err)
		return outcomeSkipped
	}
	fip := fipFields(doc)
	if pr == existing.PRFields && fip == existing.FIPFields {
		if !existing.Welcomed {
			r.welcome(ctx, req.Number, existing.ZID, fip.FIPDiscussionsTo, logger)
		}
		return outcomeUnchanged
	}

	if err := r.service.store.UpdateConversationPRAndFIP(ctx, pr, fip); err != nil {
		return r.writeFailed(err, logger)
	}
	logger.Info("conversation updated", "zid", existing.ZID, "fip", doc.Number)

	conv := *existing
	conv.PRFields = pr
	conv.FIPFields = fip
	r.afterWrite(ctx, events.Updated, conv, &doc, logger)
	if !existing.Welcomed {
		r.welcome(ctx, req.Number, existing.ZID, fip.FIPDiscussionsTo, logger)
	}
	return outcomeUpdated
}

// welcome posts the welcome message and records it on the conversation. On
// failure the flag stays unset and a later run of the open request retries.
func (r *syncRun) welcome(ctx context.Context, number int, zid int64, discussionsTo string, logger *slog.Logger) {
	if r.service.notifier == nil {
		return
	}
	if err := r.service.notifier.Welcome(ctx, r.repo, number, zid, discussionsTo); err != nil {
		logger.Warn("could not post welcome message", "error", err)
		return
	}
	if err := r.service.store.MarkWelcomed(ctx, r.repo.String(), number); err != nil {
		logger.Warn("could not record welcome message", "zid", zid, "error", err)
	}
}

// close records the closed state only; the document is frozen once closed.
func (r *syncRun) close(ctx context.Context, req github.ChangeRequest, existing *store.Conversation, logger *slog.Logger) outcome {
	pr, err := r.prFields(ctx, req)
	if err != nil {
		logger.Warn("could not map submitter, skipping", "submitter", req.Submitter, "error", err)
		return outcomeSkipped
	}
	if pr == existing.PRFields {
		return outcomeUnchanged
	}

	if err := r.service.store.UpdateConversationPR(ctx, pr); err != nil {
		return r.writeFailed(err, logger)
	}
	logger.Info("conversation closed", "zid", existing.ZID, "merged", pr.Merged)

	conv := *existing
	conv.PRFields = pr
	r.afterWrite(ctx, events.Closed, conv, nil, logger)
	return outcomeUpdated
}

func (r *syncRun) writeFailed(err error, logger *slog.Logger) outcome {
	if errors.Is(err, store.ErrNotUpdated) {
		logger.Info("conversation was opted out during the run, skipping")
		return outcomeIgnored
	}
	logger.Warn("could not update conversation, skipping", "error", err)
	return outcomeSkipped
}

func (r *syncRun) resolve(ctx context.Context, req github.ChangeRequest, logger *slog.Logger) (proposal.Document, bool) {
	res, err := r.service.resolver.Resolve(ctx, r.snap, gitrepo.Source{
		Number: req.Number,
		Owner:  req.HeadOwner,
		Repo:   req.HeadRepo,
		Ref:    req.HeadRef,
	}, r.known)
	if err != nil {
		logger.Warn("could not get proposal document, skipping", "error", err)
		return proposal.Document{}, false
	}
	return res.Document, true
}

func (r *syncRun) prFields(ctx context.Context, req github.ChangeRequest) (store.PRFields, error) {
	user, err := r.service.store.GetOrCreateUserByGitHubUsername(ctx, req.Submitter)
	if err != nil {
		return store.PRFields{}, err
	}
	return store.PRFields{
		TrackedRepo: r.repo.String(),
		PRNumber:    req.Number,
		OwnerUID:    user.UID,
		IsActive:    req.State == github.StateOpen,
		IsArchived:  req.State == github.StateClosed,
		RepoName:    req.HeadRepo,
		RepoOwner:   req.HeadOwner,
		BranchName:  req.HeadRef,
		PRTitle:     req.Title,
		Submitter:   req.Submitter,
		Merged:      req.Merged,
	}, nil
}

func fipFields(doc proposal.Document) store.FIPFields {
	return store.FIPFields{
		Description:      doc.Body,
		FIPNumber:        doc.Number,
		FIPTitle:         doc.Header.Title,
		FIPAuthor:        doc.Header.Author,
		FIPDiscussionsTo: doc.Header.DiscussionsTo,
		FIPStatus:        doc.Header.Status,
		FIPType:          doc.Header.Type,
		FIPCategory:      doc.Header.Category,
		FIPCreated:       doc.Header.Created,
	}
}

// afterWrite runs the optional side effects of a store write. Their failures
// are logged only.
func (r *syncRun) afterWrite(ctx context.Context, typ events.Type, conv store.Conversation, doc *proposal.Document, logger *slog.Logger) {
	s := r.service
	if s.search != nil {
		s.search.IndexConversation(conv)
	}
	if s.archive != nil && doc != nil {
		key, err := s.archive.Store(ctx, archive.Entry{
			Repo:      r.repo.String(),
			PRNumber:  conv.PRNumber,
			FIPNumber: doc.Number,
			Path:      doc.Path,
			Content:   doc.Raw,
		})
		if err != nil {
			logger.Warn("could not archive document", "path", doc.Path, "error", err)
		} else {
			logger.Debug("document archived", "key", key)
		}
	}
	if s.events != nil {
		title := conv.FIPTitle
		if title == "" {
			title = conv.PRTitle
		}
		event := events.ConversationEvent{
			Type:      typ,
			RunID:     r.runID,
			Repo:      r.repo.String(),
			ZID:       conv.ZID,
			PRNumber:  conv.PRNumber,
			FIPNumber: conv.FIPNumber,
			Title:     title,
			IsActive:  conv.IsActive,
			Merged:    conv.Merged,
			At:        s.now().UTC(),
		}
		if err := s.events.Publish(event); err != nil {
			logger.Warn("could not publish event", "subject", event.Subject(), "error", err)
		}
	}
}
