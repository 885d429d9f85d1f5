// Package github lists pull requests and posts notification comments through
// the GitHub REST and GraphQL APIs.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"
)

const (
	StateOpen   = "open"
	StateClosed = "closed"
)

const pageSize = 100

// ChangeRequest is the part of a pull request the sync reads.
type ChangeRequest struct {
	Number    int    `json:"number"`
	State     string `json:"state"`
	HeadRef   string `json:"headRef"`
	HeadOwner string `json:"headOwner"`
	HeadRepo  string `json:"headRepo"`
	Submitter string `json:"submitter"`
	Title     string `json:"title"`
	Merged    bool   `json:"merged"`
}

func (r ChangeRequest) IsOpen() bool {
	return r.State == StateOpen
}

// Target addresses a pull request conversation.
type Target struct {
	Owner  string
	Name   string
	Number int
}

type Client struct {
	gh *gh.Client
}

// New returns a client authenticated with token. An empty apiURL targets
// api.github.com.
func New(token, apiURL string) (*Client, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	client := gh.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		base, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf("parse github api url: %w", err)
		}
		client.BaseURL = base
	}
	return &Client{gh: client}, nil
}

// ListChangeRequests returns every pull request of owner/name, open and
// closed, in the order the API returns them.
func (c *Client) ListChangeRequests(ctx context.Context, owner, name string) ([]ChangeRequest, error) {
	opts := &gh.PullRequestListOptions{
		State:       "all",
		ListOptions: gh.ListOptions{PerPage: pageSize},
	}
	var requests []ChangeRequest
	for {
		pulls, resp, err := c.gh.PullRequests.List(ctx, owner, name, opts)
		if err != nil {
			return nil, fmt.Errorf("list pull requests %s/%s: %w", owner, name, err)
		}
		for _, pull := range pulls {
			requests = append(requests, fromPullRequest(pull))
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return requests, nil
}

func fromPullRequest(pull *gh.PullRequest) ChangeRequest {
	head := pull.GetHead()
	owner := head.GetRepo().GetOwner().GetLogin()
	if owner == "" {
		owner = head.GetUser().GetLogin()
	}
	return ChangeRequest{
		Number:    pull.GetNumber(),
		State:     pull.GetState(),
		HeadRef:   head.GetRef(),
		HeadOwner: owner,
		HeadRepo:  head.GetRepo().GetName(),
		Submitter: pull.GetUser().GetLogin(),
		Title:     pull.GetTitle(),
		Merged:    pull.MergedAt != nil,
	}
}

// PostComment adds an issue comment to the pull request.
func (c *Client) PostComment(ctx context.Context, target Target, body string) error {
	_, _, err := c.gh.Issues.CreateComment(ctx, target.Owner, target.Name, target.Number, &gh.IssueComment{
		Body: gh.String(body),
	})
	if err != nil {
		return fmt.Errorf("comment on %s/%s#%d: %w", target.Owner, target.Name, target.Number, err)
	}
	return nil
}

const discussionIDQuery = `query($owner: String!, $name: String!, $number: Int!) {
  repository(owner: $owner, name: $name) {
    discussion(number: $number) { id }
  }
}`

const addDiscussionCommentMutation = `mutation($discussionId: ID!, $body: String!) {
  addDiscussionComment(input: {discussionId: $discussionId, body: $body}) {
    clientMutationId
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

// AddDiscussionComment posts body to discussion number of owner/name.
func (c *Client) AddDiscussionComment(ctx context.Context, owner, name string, number int, body string) error {
	var lookup struct {
		Data struct {
			Repository struct {
				Discussion *struct {
					ID string `json:"id"`
				} `json:"discussion"`
			} `json:"repository"`
		} `json:"data"`
		Errors []graphQLError `json:"errors"`
	}
	err := c.graphQL(ctx, discussionIDQuery, map[string]any{
		"owner":  owner,
		"name":   name,
		"number": number,
	}, &lookup)
	if err == nil {
		err = joinGraphQLErrors(lookup.Errors)
	}
	if err != nil {
		return fmt.Errorf("find discussion %s/%s#%d: %w", owner, name, number, err)
	}
	if lookup.Data.Repository.Discussion == nil {
		return fmt.Errorf("find discussion %s/%s#%d: not found", owner, name, number)
	}

	var added struct {
		Errors []graphQLError `json:"errors"`
	}
	err = c.graphQL(ctx, addDiscussionCommentMutation, map[string]any{
		"discussionId": lookup.Data.Repository.Discussion.ID,
		"body":         body,
	}, &added)
	if err == nil {
		err = joinGraphQLErrors(added.Errors)
	}
	if err != nil {
		return fmt.Errorf("comment on discussion %s/%s#%d: %w", owner, name, number, err)
	}
	return nil
}

func (c *Client) graphQL(ctx context.Context, query string, variables map[string]any, out any) error {
	req, err := c.gh.NewRequest(http.MethodPost, "graphql", graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return err
	}
	_, err = c.gh.Do(ctx, req, out)
	return err
}

func joinGraphQLErrors(errs []graphQLError) error {
	if len(errs) == 0 {
		return nil
	}
	joined := make([]error, 0, len(errs))
	for _, e := range errs {
		joined = append(joined, errors.New(e.Message))
	}
	return errors.Join(joined...)
}
