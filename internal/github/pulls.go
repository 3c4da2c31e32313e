// internal/github/pulls.go
package github

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/sync/errgroup"
)

const (
	// The search service caps results at 1000, i.e. 10 pages of 100.
	searchMaxPagesDefault = 10

	detailBatchSizeDefault = 10
)

// PullFetchSource tells the caller which retrieval path produced a result.
type PullFetchSource string

const (
	// SourceSearch means the indexed search path succeeded.
	SourceSearch PullFetchSource = "search"
	// SourceListFallback means the search path failed and the full listing
	// fallback produced the result instead.
	SourceListFallback PullFetchSource = "list_fallback"
)

// PullFetchResult is the outcome of the two-tier pull request retrieval
// strategy. Source distinguishes a fast-path result from a degraded
// fallback result; FallbackReason carries the search failure that forced
// the fallback. Truncated is set when the search path returned exactly the
// service's capped maximum, meaning older results may be missing.
type PullFetchResult struct {
	PullRequests   []*github.PullRequest
	Source         PullFetchSource
	Truncated      bool
	FallbackReason string
}

// EffectivePRState computes the state persisted for a pull request: merged
// when a merge timestamp is present, otherwise the raw open/closed state.
func EffectivePRState(pr *github.PullRequest) string {
	if pr.MergedAt != nil {
		return "merged"
	}
	return pr.GetState()
}

// FetchPullRequestsByAuthor retrieves every pull request authored by
// username in owner/name.
//
// The primary path queries the search index (cheap, but abbreviated records
// capped at 1000 results) and then fetches full PR details in small
// concurrent batches, re-verifying authorship on each detail because search
// can surface co-authored or loosely matched results. If the search call
// fails for any reason the strategy abandons it and pages through the full
// unfiltered PR listing, filtering locally by exact author match.
//
// An error is returned only when the active path itself fails; a degraded
// fallback result is not an error.
func (c *Client) FetchPullRequestsByAuthor(ctx context.Context, owner, name, username string) (PullFetchResult, error) {
	candidates, searchErr := c.searchPullRequests(ctx, owner, name, username)
	if searchErr != nil {
		c.logger.Warn("PR search failed, using pagination fallback",
			"owner", owner, "repo", name, "error", searchErr)

		prs, err := c.listAllPullRequestsByAuthor(ctx, owner, name, username)
		if err != nil {
			return PullFetchResult{}, fmt.Errorf("pr search failed (%v) and list fallback failed: %w", searchErr, err)
		}
		return PullFetchResult{
			PullRequests:   prs,
			Source:         SourceListFallback,
			FallbackReason: searchErr.Error(),
		}, nil
	}

	prs, err := c.fetchPullDetails(ctx, owner, name, username, candidates)
	if err != nil {
		return PullFetchResult{}, err
	}

	result := PullFetchResult{
		PullRequests: prs,
		Source:       SourceSearch,
	}

	if len(candidates) >= c.searchMaxPages*perPage {
		// The search service cap was hit; older PRs may exist beyond it.
		// Documented limitation: no automatic fallback here.
		result.Truncated = true
		c.logger.Warn("PR search returned the capped maximum, results may be truncated",
			"owner", owner, "repo", name, "count", len(candidates))
	}

	return result, nil
}

// searchPullRequests pages through the search index for PRs authored by
// username, returning abbreviated candidate records.
func (c *Client) searchPullRequests(ctx context.Context, owner, name, username string) ([]*github.Issue, error) {
	query := fmt.Sprintf("repo:%s/%s author:%s type:pr", owner, name, username)

	return fetchAllPages(ctx, perPage, c.searchMaxPages, func(page int) ([]*github.Issue, error) {
		c.logger.Debug("Searching pull requests", "query", query, "page", page)

		opts := &github.SearchOptions{
			Sort:  "updated",
			Order: "desc",
			ListOptions: github.ListOptions{
				PerPage: perPage,
				Page:    page,
			},
		}

		var result *github.IssuesSearchResult
		err := c.withRetry(ctx, "search pull requests", func() error {
			var err error
			result, _, err = c.gh.Search.Issues(ctx, query, opts)
			return err
		})
		if err != nil {
			return nil, err
		}
		return result.Issues, nil
	})
}

// fetchPullDetails resolves search candidates to full PR objects in bounded
// concurrent batches, pausing between batches to respect rate limits. Each
// detail fetch is retried on transient failures; a candidate that still
// fails (deleted or inaccessible PR) is skipped, and one whose author does
// not match username exactly is discarded.
func (c *Client) fetchPullDetails(ctx context.Context, owner, name, username string, candidates []*github.Issue) ([]*github.PullRequest, error) {
	var all []*github.PullRequest

	for start := 0; start < len(candidates); start += c.detailBatchSize {
		end := min(start+c.detailBatchSize, len(candidates))
		batch := candidates[start:end]

		results := make([]*github.PullRequest, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.detailBatchSize)

		for i, item := range batch {
			g.Go(func() error {
				number := item.GetNumber()
				var pr *github.PullRequest
				err := c.withRetry(gctx, "fetch pull request detail", func() error {
					var err error
					pr, _, err = c.gh.PullRequests.Get(gctx, owner, name, number)
					return err
				})
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					c.logger.Warn("Could not fetch PR detail, skipping",
						"owner", owner, "repo", name, "number", number, "error", err)
					return nil
				}
				if strings.EqualFold(pr.GetUser().GetLogin(), username) {
					results[i] = pr
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}

		for _, pr := range results {
			if pr != nil {
				all = append(all, pr)
			}
		}

		if end < len(candidates) {
			select {
			case <-time.After(c.batchPause):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return all, nil
}

// listAllPullRequestsByAuthor is the reliable fallback: page through every
// PR in the repository and keep those whose author matches exactly
// (case-insensitive).
func (c *Client) listAllPullRequestsByAuthor(ctx context.Context, owner, name, username string) ([]*github.PullRequest, error) {
	prs, err := fetchAllPages(ctx, perPage, 0, func(page int) ([]*github.PullRequest, error) {
		c.logger.Debug("Listing pull requests", "owner", owner, "repo", name, "page", page)

		opts := &github.PullRequestListOptions{
			State: "all",
			ListOptions: github.ListOptions{
				PerPage: perPage,
				Page:    page,
			},
		}

		var pagePRs []*github.PullRequest
		err := c.withRetry(ctx, "list pull requests", func() error {
			var err error
			pagePRs, _, err = c.gh.PullRequests.List(ctx, owner, name, opts)
			return err
		})
		return pagePRs, err
	})
	if err != nil {
		return nil, err
	}

	var matched []*github.PullRequest
	for _, pr := range prs {
		if pr.User != nil && strings.EqualFold(pr.GetUser().GetLogin(), username) {
			matched = append(matched, pr)
		}
	}
	return matched, nil
}
