package store

import "time"

type User struct {
	UID            int64
	GitHubUsername string
	CreatedAt      time.Time
}

// PRFields are the pull request columns of a conversation.
type PRFields struct {
	// TrackedRepo is "owner/name" of the repository the request was opened against.
	TrackedRepo string
	PRNumber    int
	OwnerUID    int64
	IsActive    bool
	IsArchived  bool
	RepoName    string
	RepoOwner   string
	BranchName  string
	PRTitle     string
	Submitter   string
	Merged      bool
}

// FIPFields are the proposal document columns of a conversation.
type FIPFields struct {
	Description      string
	FIPNumber        int
	FIPTitle         string
	FIPAuthor        string
	FIPDiscussionsTo string
	FIPStatus        string
	FIPType          string
	FIPCategory      string
	FIPCreated       string
}

type Conversation struct {
	ZID         int64
	SyncEnabled bool
	// Welcomed is set once the welcome comment has been posted.
	Welcomed bool
	PRFields
	FIPFields
	CreatedAt time.Time
	UpdatedAt time.Time
}
