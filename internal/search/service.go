package search

import (
	"log/slog"
	"sync"

	"fipsync/internal/store"
)

type backend interface {
	Healthy() bool
	IndexConversations(records []ConversationRecord) error
	Search(q Query) ([]Result, int, error)
}

// Service is the facade the sync uses. Indexing never blocks or fails the
// caller; without a healthy backend it does nothing.
type Service struct {
	backend backend
	logger  *slog.Logger
	pending sync.WaitGroup
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{logger: logger}
	if meili != nil {
		s.backend = meili
	}
	return s
}

func (s *Service) available() bool {
	return s.backend != nil && s.backend.Healthy()
}

// IndexConversation indexes a conversation in the background. Flush waits
// for every call made so far.
func (s *Service) IndexConversation(conv store.Conversation) {
	if !s.available() {
		return
	}
	record := RecordFromConversation(conv)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.backend.IndexConversations([]ConversationRecord{record}); err != nil {
			s.logger.Warn("index conversation", "zid", record.ZID, "error", err)
		}
	}()
}

// Flush blocks until background indexing has finished. Call it before the
// backend is closed.
func (s *Service) Flush() {
	s.pending.Wait()
}

// ReindexAll pushes every conversation to the index synchronously.
func (s *Service) ReindexAll(conversations []store.Conversation) (int, error) {
	if !s.available() {
		return 0, nil
	}
	records := make([]ConversationRecord, 0, len(conversations))
	for _, conv := range conversations {
		records = append(records, RecordFromConversation(conv))
	}
	if err := s.backend.IndexConversations(records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Search returns an empty response when no backend is available.
func (s *Service) Search(q Query) Response {
	if !s.available() {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.backend.Search(q)
	if err != nil {
		s.logger.Warn("search failed", "error", err)
		return Response{Results: []Result{}, Query: q.Text}
	}
	if results == nil {
		results = []Result{}
	}
	return Response{Results: results, Total: total, Query: q.Text}
}
