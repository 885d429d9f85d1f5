package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxConversations = "fipsync_conversations"

const healthInterval = 10 * time.Second

// Meili indexes and searches conversations in Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	logger  *slog.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the index.
// An unreachable server is not an error; the client reports unhealthy and
// retries in the background.
func NewMeili(url, apiKey string, logger *slog.Logger) *Meili {
	if logger == nil {
		logger = slog.Default()
	}
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		logger: logger,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		logger.Warn("meilisearch unavailable", "url", url, "error", err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxConversations,
		PrimaryKey: "id",
	}); err != nil {
		m.logger.Debug("create index (may already exist)", "index", idxConversations, "error", err)
	}

	index := m.client.Index(idxConversations)
	filterable := []interface{}{"repo", "fipStatus", "fipType", "isActive"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("update filterable attributes", "index", idxConversations, "error", err)
	}
	searchable := []string{"fipTitle", "prTitle", "fipAuthor", "description"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", "index", idxConversations, "error", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// IndexConversations adds or replaces conversations in the index.
func (m *Meili) IndexConversations(records []ConversationRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxConversations).AddDocuments(records, nil)
	return err
}

// Search queries the conversation index.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, errors.New("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}
	sr := &meili.SearchRequest{
		IndexUID:              idxConversations,
		Query:                 q.Text,
		Limit:                 limit,
		Offset:                int64(q.Offset),
		AttributesToHighlight: []string{"fipTitle", "description"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if filters := buildFilters(q); len(filters) > 0 {
		sr.Filter = filters
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{sr},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	var results []Result
	total := 0
	for _, res := range resp.Results {
		total += int(res.EstimatedTotalHits)
		for _, hit := range res.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

func buildFilters(q Query) []string {
	var filters []string
	if q.Repo != "" {
		filters = append(filters, fmt.Sprintf("repo = %q", q.Repo))
	}
	if q.Status != "" {
		filters = append(filters, fmt.Sprintf("fipStatus = %q", q.Status))
	}
	if q.ActiveOnly {
		filters = append(filters, "isActive = true")
	}
	return filters
}

func hitToResult(hit meili.Hit) Result {
	r := Result{
		Repo:   decodeString(hit, "repo"),
		Status: decodeString(hit, "fipStatus"),
	}
	decodeInto(hit, "zid", &r.ZID)
	decodeInto(hit, "prNumber", &r.PRNumber)
	decodeInto(hit, "fipNumber", &r.FIPNumber)
	decodeInto(hit, "isActive", &r.IsActive)
	r.Title = firstNonBlank(decodeFormattedString(hit, "fipTitle"), decodeString(hit, "fipTitle"), decodeString(hit, "prTitle"))
	r.Snippet = firstNonBlank(decodeFormattedString(hit, "description"), decodeString(hit, "description"))
	return r
}

func decodeInto(hit meili.Hit, key string, dst any) {
	raw, ok := hit[key]
	if !ok {
		return
	}
	_ = json.Unmarshal(raw, dst)
}

func decodeString(hit meili.Hit, key string) string {
	var s string
	decodeInto(hit, key, &s)
	return s
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	s, _ := formatted[key].(string)
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
