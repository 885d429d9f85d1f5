package app

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"fipsync/internal/config"
	"fipsync/internal/github"
)

type commentPoster interface {
	PostComment(ctx context.Context, target github.Target, body string) error
	AddDiscussionComment(ctx context.Context, owner, name string, number int, body string) error
}

type notifiedLedger interface {
	MarkNotified(ctx context.Context, repo string, number int) (bool, error)
	ClearNotified(ctx context.Context, repo string, number int) error
}

// Notifier welcomes a newly recorded pull request with a link to its
// conversation, once per request.
type Notifier struct {
	client    commentPoster
	ledger    notifiedLedger
	serverURL string
	logger    *slog.Logger
}

func NewNotifier(client commentPoster, ledger notifiedLedger, serverURL string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		client:    client,
		ledger:    ledger,
		serverURL: strings.TrimRight(serverURL, "/"),
		logger:    logger,
	}
}

func (n *Notifier) WelcomeMessage(zid int64) string {
	url := fmt.Sprintf("%s/dashboard/c/%d", n.serverURL, zid)
	return "Thank you for contributing a proposal! A discussion " +
		"on Metropolis has been automatically opened [here](" + url + ") where users can give feedback."
}

// Welcome posts the welcome message on the pull request and, when
// discussionsTo links a discussion of the same repository, on that discussion.
// A failed pull request comment is cleared from the ledger so a later call
// can post it again; a failed discussion comment is only logged.
func (n *Notifier) Welcome(ctx context.Context, repo config.RepoRef, number int, zid int64, discussionsTo string) error {
	first, err := n.ledger.MarkNotified(ctx, repo.String(), number)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	if !first {
		n.logger.Debug("welcome message already posted", "repo", repo.String(), "pr", number)
		return nil
	}

	message := n.WelcomeMessage(zid)
	target := github.Target{Owner: repo.Owner, Name: repo.Name, Number: number}
	if err := n.client.PostComment(ctx, target, message); err != nil {
		if clearErr := n.ledger.ClearNotified(context.WithoutCancel(ctx), repo.String(), number); clearErr != nil {
			n.logger.Warn("could not clear notification ledger", "repo", repo.String(), "pr", number, "error", clearErr)
		}
		return fmt.Errorf("post welcome comment on %s#%d: %w", repo, number, err)
	}

	discussion, ok := DiscussionNumber(repo, discussionsTo)
	if !ok {
		return nil
	}
	if err := n.client.AddDiscussionComment(ctx, repo.Owner, repo.Name, discussion, message); err != nil {
		n.logger.Warn("could not post welcome message to discussion",
			"repo", repo.String(), "pr", number, "discussion", discussion, "error", err)
	}
	return nil
}

// DiscussionNumber extracts the discussion number from a discussions-to value
// pointing at https://github.com/<owner>/<name>/discussions/<n>.
func DiscussionNumber(repo config.RepoRef, discussionsTo string) (int, bool) {
	if discussionsTo == "" {
		return 0, false
	}
	pattern := regexp.MustCompile(`https://github\.com/` +
		regexp.QuoteMeta(repo.Owner) + "/" + regexp.QuoteMeta(repo.Name) + `/discussions/(\d+)`)
	match := pattern.FindStringSubmatch(discussionsTo)
	if match == nil {
		return 0, false
	}
	number, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return number, true
}
