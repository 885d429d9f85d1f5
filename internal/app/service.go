package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fipsync/internal/archive"
	"fipsync/internal/config"
	"fipsync/internal/events"
	"fipsync/internal/github"
	"fipsync/internal/metrics"
	"fipsync/internal/proposal"
	"fipsync/internal/runstate"
	"fipsync/internal/search"
	"fipsync/internal/store"
	"fipsync/internal/vcs"
)

// RecordStore persists conversations keyed by tracked repository and pull request number.
type RecordStore interface {
	FindByPRNumber(ctx context.Context, repo string, number int) (*store.Conversation, error)
	InsertConversation(ctx context.Context, pr store.PRFields, fip store.FIPFields) (int64, bool, error)
	UpdateConversationPR(ctx context.Context, pr store.PRFields) error
	UpdateConversationPRAndFIP(ctx context.Context, pr store.PRFields, fip store.FIPFields) error
	GetOrCreateUserByGitHubUsername(ctx context.Context, username string) (store.User, error)
	MarkWelcomed(ctx context.Context, repo string, number int) error
	Ping(ctx context.Context) error
}

// RequestClient lists pull requests and posts notifications.
type RequestClient interface {
	ListChangeRequests(ctx context.Context, owner, name string) ([]github.ChangeRequest, error)
	PostComment(ctx context.Context, target github.Target, body string) error
	AddDiscussionComment(ctx context.Context, owner, name string, number int, body string) error
}

type RunState interface {
	AcquireRunLock(ctx context.Context, repo string, ttl time.Duration) (runstate.Release, error)
	MarkNotified(ctx context.Context, repo string, number int) (bool, error)
	ClearNotified(ctx context.Context, repo string, number int) error
}

type Indexer interface {
	IndexConversation(conv store.Conversation)
	Search(q search.Query) search.Response
}

type Archiver interface {
	Store(ctx context.Context, entry archive.Entry) (string, error)
}

type Publisher interface {
	Publish(event events.ConversationEvent) error
}

// Deps are the collaborators of a Service. Store, Requests and Git are
// required; the rest are optional and skipped when nil.
type Deps struct {
	Store    RecordStore
	Requests RequestClient
	Git      vcs.Git
	Runs     RunState
	Search   Indexer
	Archive  Archiver
	Events   Publisher
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

type Service struct {
	cfg      config.Config
	store    RecordStore
	requests RequestClient
	git      vcs.Git
	runs     RunState
	search   Indexer
	archive  Archiver
	events   Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	resolver *proposal.Resolver
	notifier *Notifier
	now      func() time.Time

	syncMu sync.Mutex
	last   map[string]Summary
}

func New(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runs := deps.Runs
	if runs == nil {
		runs = runstate.NewMemory()
	}
	s := &Service{
		cfg:      cfg,
		store:    deps.Store,
		requests: deps.Requests,
		git:      deps.Git,
		runs:     runs,
		search:   deps.Search,
		archive:  deps.Archive,
		events:   deps.Events,
		metrics:  deps.Metrics,
		logger:   logger,
		resolver: proposal.NewResolver(logger),
		now:      time.Now,
		last:     make(map[string]Summary),
	}
	if cfg.NotifyEnabled {
		s.notifier = NewNotifier(deps.Requests, runs, cfg.ServerURL, logger)
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// DefaultRepo is the primary tracked repository.
func (s *Service) DefaultRepo() config.RepoRef {
	return config.RepoRef{Owner: s.cfg.RepoOwner, Name: s.cfg.RepoName}
}

// LastSummary returns the summary of the latest successful run for repo.
func (s *Service) LastSummary(repo config.RepoRef) (Summary, bool) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	summary, ok := s.last[repo.String()]
	return summary, ok
}

func (s *Service) recordSummary(repo config.RepoRef, summary Summary) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	s.last[repo.String()] = summary
}

// SearchConversations queries the conversation index. Without search the
// response is empty.
func (s *Service) SearchConversations(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}
