package search

import (
	"strconv"

	"fipsync/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ZID       int64  `json:"zid"`
	Repo      string `json:"repo"`
	PRNumber  int    `json:"prNumber"`
	FIPNumber int    `json:"fipNumber"`
	Title     string `json:"title"`
	Snippet   string `json:"snippet"`
	Status    string `json:"status"`
	IsActive  bool   `json:"isActive"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Repo   string
	Status string
	// ActiveOnly limits results to conversations whose request is open.
	ActiveOnly bool
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// ConversationRecord is the data we index for a conversation.
type ConversationRecord struct {
	ID          string `json:"id"`
	ZID         int64  `json:"zid"`
	Repo        string `json:"repo"`
	PRNumber    int    `json:"prNumber"`
	PRTitle     string `json:"prTitle"`
	Submitter   string `json:"submitter"`
	IsActive    bool   `json:"isActive"`
	IsArchived  bool   `json:"isArchived"`
	FIPNumber   int    `json:"fipNumber"`
	FIPTitle    string `json:"fipTitle"`
	FIPAuthor   string `json:"fipAuthor"`
	FIPStatus   string `json:"fipStatus"`
	FIPType     string `json:"fipType"`
	FIPCategory string `json:"fipCategory"`
	Description string `json:"description"`
}

func RecordFromConversation(c store.Conversation) ConversationRecord {
	return ConversationRecord{
		ID:          strconv.FormatInt(c.ZID, 10),
		ZID:         c.ZID,
		Repo:        c.TrackedRepo,
		PRNumber:    c.PRNumber,
		PRTitle:     c.PRTitle,
		Submitter:   c.Submitter,
		IsActive:    c.IsActive,
		IsArchived:  c.IsArchived,
		FIPNumber:   c.FIPNumber,
		FIPTitle:    c.FIPTitle,
		FIPAuthor:   c.FIPAuthor,
		FIPStatus:   c.FIPStatus,
		FIPType:     c.FIPType,
		FIPCategory: c.FIPCategory,
		Description: c.Description,
	}
}
