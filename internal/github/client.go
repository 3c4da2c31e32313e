// internal/github/client.go
package github

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"
)

const (
	// maxRetries bounds transient-error retries per API call. Rate limits
	// are retryable but never infinitely: once retries are exhausted the
	// error surfaces to the caller as a phase error.
	maxRetries = 3

	retryBaseDelay = 500 * time.Millisecond

	perPage = 100
)

// Client is a wrapper around the go-github client.
type Client struct {
	gh     *github.Client
	logger *slog.Logger

	searchMaxPages  int
	detailBatchSize int
	batchPause      time.Duration
}

// NewClient creates and configures a new Client instance.
// The provided token is used to create an authenticated http.Client.
func NewClient(token string, logger *slog.Logger) *Client {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)

	return &Client{
		gh:              github.NewClient(tc),
		logger:          logger,
		searchMaxPages:  searchMaxPagesDefault,
		detailBatchSize: detailBatchSizeDefault,
		batchPause:      100 * time.Millisecond,
	}
}

// WithPRFetchLimits tunes the pull request retrieval strategy. The search
// page limit may not exceed the service cap of 10 pages.
func (c *Client) WithPRFetchLimits(searchMaxPages, detailBatchSize int) *Client {
	if searchMaxPages > 0 && searchMaxPages <= searchMaxPagesDefault {
		c.searchMaxPages = searchMaxPages
	}
	if detailBatchSize > 0 {
		c.detailBatchSize = detailBatchSize
	}
	return c
}

// OverrideBaseURL points the client at a different API root. Used by tests
// to target an httptest server.
func (c *Client) OverrideBaseURL(rawURL string) error {
	u, err := url.Parse(rawURL + "/")
	if err != nil {
		return err
	}
	c.gh.BaseURL = u
	c.gh.UploadURL = u
	return nil
}

// ListCommitsByAuthor fetches all commits authored by the given user in a
// repository. Attribution happens upstream via the author listing parameter;
// no local filtering is applied.
func (c *Client) ListCommitsByAuthor(ctx context.Context, owner, name, author string) ([]*github.RepositoryCommit, error) {
	var allCommits []*github.RepositoryCommit

	opts := &github.CommitsListOptions{
		Author: author,
		ListOptions: github.ListOptions{
			PerPage: perPage,
		},
	}

	for {
		c.logger.Debug("Fetching commits page", "owner", owner, "repo", name, "page", opts.Page)

		var commits []*github.RepositoryCommit
		var resp *github.Response
		err := c.withRetry(ctx, "list commits", func() error {
			var err error
			commits, resp, err = c.gh.Repositories.ListCommits(ctx, owner, name, opts)
			return err
		})
		if err != nil {
			return nil, err
		}

		allCommits = append(allCommits, commits...)

		if resp.NextPage == 0 || len(commits) < perPage {
			break
		}
		opts.Page = resp.NextPage
	}

	return allCommits, nil
}

// ListIssuesByCreator fetches all issues created by the given user in a
// repository, in every state. The result still conflates pull requests with
// issues, as the upstream endpoint does; the caller is responsible for
// filtering those out.
func (c *Client) ListIssuesByCreator(ctx context.Context, owner, name, creator string) ([]*github.Issue, error) {
	var allIssues []*github.Issue

	opts := &github.IssueListByRepoOptions{
		Creator: creator,
		State:   "all",
		ListOptions: github.ListOptions{
			PerPage: perPage,
		},
	}

	for {
		c.logger.Debug("Fetching issues page", "owner", owner, "repo", name, "page", opts.Page)

		var issues []*github.Issue
		var resp *github.Response
		err := c.withRetry(ctx, "list issues", func() error {
			var err error
			issues, resp, err = c.gh.Issues.ListByRepo(ctx, owner, name, opts)
			return err
		})
		if err != nil {
			return nil, err
		}

		allIssues = append(allIssues, issues...)

		if resp.NextPage == 0 || len(issues) < perPage {
			break
		}
		opts.Page = resp.NextPage
	}

	return allIssues, nil
}

// withRetry runs fn up to maxRetries times, waiting out rate limit resets
// and backing off on server errors. Non-retryable errors return immediately.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		delay, retryable := retryDelay(err, attempt)
		if !retryable || attempt == maxRetries {
			return err
		}

		c.logger.Warn("Retrying GitHub API call", "op", op, "attempt", attempt, "delay", delay.String(), "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// retryDelay classifies an error and returns how long to wait before the
// next attempt.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	switch e := err.(type) {
	case *github.RateLimitError:
		delay := time.Until(e.Rate.Reset.Time)
		if delay < 0 {
			delay = 0
		}
		return delay, true
	case *github.AbuseRateLimitError:
		if e.RetryAfter != nil {
			return *e.RetryAfter, true
		}
		return retryBaseDelay * time.Duration(attempt), true
	case *github.ErrorResponse:
		if e.Response != nil && e.Response.StatusCode >= 500 {
			return retryBaseDelay * time.Duration(attempt), true
		}
		return 0, false
	default:
		return 0, false
	}
}
