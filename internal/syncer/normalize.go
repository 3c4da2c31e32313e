// internal/syncer/normalize.go
package syncer

import (
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v62/github"

	"contrib-tracker/internal/github"
	"contrib-tracker/internal/model"
	"contrib-tracker/internal/store"
)

// normalizeCommit builds the reconciler record for a commit. The external id
// is the SHA; the title is the first line of the commit message; commits
// carry no state.
func normalizeCommit(repositoryID, studentID int64, commit *gh.RepositoryCommit) store.UpsertContributionParams {
	message := commit.GetCommit().GetMessage()
	title, _, _ := strings.Cut(message, "\n")

	date := commitTimestamp(commit)

	return store.UpsertContributionParams{
		RepositoryID: repositoryID,
		StudentID:    studentID,
		Type:         model.TypeCommit,
		ExternalID:   commit.GetSHA(),
		Title:        title,
		URL:          commit.GetHTMLURL(),
		CreatedAt:    date,
		UpdatedAt:    date,
		Metadata: map[string]any{
			"sha":          commit.GetSHA(),
			"message":      message,
			"author_name":  commit.GetCommit().GetAuthor().GetName(),
			"author_email": commit.GetCommit().GetAuthor().GetEmail(),
		},
	}
}

// commitTimestamp prefers the author date, falls back to the committer date,
// and lastly the current time for malformed upstream records.
func commitTimestamp(commit *gh.RepositoryCommit) time.Time {
	if d := commit.GetCommit().GetAuthor().GetDate(); !d.IsZero() {
		return d.Time
	}
	if d := commit.GetCommit().GetCommitter().GetDate(); !d.IsZero() {
		return d.Time
	}
	return time.Now().UTC()
}

// normalizePullRequest builds the reconciler record for a pull request. The
// persisted state is the computed effective state: merged when a merge
// timestamp exists, else the raw open/closed state.
func normalizePullRequest(repositoryID, studentID int64, pr *gh.PullRequest) store.UpsertContributionParams {
	var mergedAt any
	if pr.MergedAt != nil {
		mergedAt = pr.MergedAt.Format(time.RFC3339)
	}

	return store.UpsertContributionParams{
		RepositoryID: repositoryID,
		StudentID:    studentID,
		Type:         model.TypePullRequest,
		ExternalID:   strconv.Itoa(pr.GetNumber()),
		Title:        pr.GetTitle(),
		URL:          pr.GetHTMLURL(),
		State:        github.EffectivePRState(pr),
		CreatedAt:    pr.GetCreatedAt().Time,
		UpdatedAt:    pr.GetUpdatedAt().Time,
		Metadata: map[string]any{
			"number":    pr.GetNumber(),
			"merged_at": mergedAt,
			"body":      pr.GetBody(),
			"draft":     pr.GetDraft(),
		},
	}
}

// normalizeIssue builds the reconciler record for an issue.
func normalizeIssue(repositoryID, studentID int64, issue *gh.Issue) store.UpsertContributionParams {
	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
	}

	return store.UpsertContributionParams{
		RepositoryID: repositoryID,
		StudentID:    studentID,
		Type:         model.TypeIssue,
		ExternalID:   strconv.Itoa(issue.GetNumber()),
		Title:        issue.GetTitle(),
		URL:          issue.GetHTMLURL(),
		State:        issue.GetState(),
		CreatedAt:    issue.GetCreatedAt().Time,
		UpdatedAt:    issue.GetUpdatedAt().Time,
		Metadata: map[string]any{
			"number": issue.GetNumber(),
			"body":   issue.GetBody(),
			"labels": labels,
		},
	}
}
