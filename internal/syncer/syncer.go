// internal/syncer/syncer.go
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	gh "github.com/google/go-github/v62/github"
	"github.com/jackc/pgx/v5"

	custom_errors "contrib-tracker/internal/errors"
	"contrib-tracker/internal/github"
	"contrib-tracker/internal/model"
	"contrib-tracker/internal/store"
)

// phaseCount is the number of fetch-and-reconcile phases per repository
// sync: commits, pull requests, issues.
const phaseCount = 3

// GitHubClient is the upstream surface the syncer consumes. Implemented by
// *github.Client.
type GitHubClient interface {
	ListCommitsByAuthor(ctx context.Context, owner, name, author string) ([]*gh.RepositoryCommit, error)
	ListIssuesByCreator(ctx context.Context, owner, name, creator string) ([]*gh.Issue, error)
	FetchPullRequestsByAuthor(ctx context.Context, owner, name, username string) (github.PullFetchResult, error)
}

// SyncResult is the outcome of one repository sync.
type SyncResult struct {
	Success            bool   `json:"success"`
	ContributionsCount int    `json:"contributions_count"`
	Error              string `json:"error,omitempty"`
}

// RepoSyncResult is one repository's outcome within a batch.
type RepoSyncResult struct {
	RepositoryID int64  `json:"repository_id"`
	Repository   string `json:"repository"`
	SyncResult
}

// Syncer reconciles upstream contributions into the store.
type Syncer struct {
	querier store.Querier
	client  GitHubClient
	logger  *slog.Logger
}

// NewSyncer creates a new Syncer instance.
func NewSyncer(querier store.Querier, client GitHubClient, logger *slog.Logger) *Syncer {
	return &Syncer{
		querier: querier,
		client:  client,
		logger:  logger,
	}
}

// SyncRepository runs one full sync for a (student, repository) pair: three
// sequential, independently fault-isolated phases (commits, pull requests,
// issues), a sync log bracketing the attempt, and a derived final status.
// A phase failure is folded into the result, never returned as an error; the
// returned error is reserved for contract violations (missing identifiers)
// and sync-log bookkeeping failures.
//
// Concurrent invocations for the same repository are not serialized. The
// upsert is conflict-safe per row, so overlapping runs can only do redundant
// work, though their sync logs may report overlapping counts.
func (s *Syncer) SyncRepository(ctx context.Context, repositoryID int64, username, owner, name string) (SyncResult, error) {
	if repositoryID <= 0 {
		return SyncResult{}, &custom_errors.ErrMissingIdentifier{Field: "repository_id"}
	}
	if username == "" {
		return SyncResult{}, &custom_errors.ErrMissingIdentifier{Field: "username"}
	}
	if !model.IsValidUsername(username) {
		return SyncResult{}, &custom_errors.ErrInvalidUsername{Username: username}
	}
	if owner == "" || name == "" {
		return SyncResult{}, &custom_errors.ErrMissingIdentifier{Field: "owner/name"}
	}

	logger := s.logger.With("owner", owner, "repo", name, "username", username)
	logger.Info("Syncing repository")

	logID, err := s.openSyncLog(ctx, repositoryID, username)
	if err != nil {
		return SyncResult{}, fmt.Errorf("failed to create sync log: %w", err)
	}

	// Resolve the repository row to the student the contributions belong
	// to. Failure here is fatal to this repository's sync only.
	studentID, err := s.resolveStudentID(ctx, repositoryID)
	if err != nil {
		logger.Error("Failed to resolve repository to student", "error", err)
		if logErr := s.querier.FinishSyncLog(ctx, logID, model.SyncStatusError, 0, err.Error()); logErr != nil {
			return SyncResult{}, fmt.Errorf("failed to finish sync log: %w", logErr)
		}
		return SyncResult{Success: false, ContributionsCount: 0, Error: err.Error()}, nil
	}

	var phaseErrors []string
	totalCount := 0

	n, phaseErr := runPhase(func() (int, error) {
		return s.syncCommits(ctx, repositoryID, studentID, username, owner, name)
	})
	totalCount += n
	if phaseErr != nil {
		logger.Error("Commit phase failed", "error", phaseErr)
		phaseErrors = append(phaseErrors, fmt.Sprintf("Commits: %v", phaseErr))
	}

	n, phaseErr = runPhase(func() (int, error) {
		return s.syncPullRequests(ctx, repositoryID, studentID, username, owner, name)
	})
	totalCount += n
	if phaseErr != nil {
		logger.Error("Pull request phase failed", "error", phaseErr)
		phaseErrors = append(phaseErrors, fmt.Sprintf("PRs: %v", phaseErr))
	}

	n, phaseErr = runPhase(func() (int, error) {
		return s.syncIssues(ctx, repositoryID, studentID, username, owner, name)
	})
	totalCount += n
	if phaseErr != nil {
		logger.Error("Issue phase failed", "error", phaseErr)
		phaseErrors = append(phaseErrors, fmt.Sprintf("Issues: %v", phaseErr))
	}

	status := model.DeriveSyncStatus(len(phaseErrors), phaseCount)
	errMsg := strings.Join(phaseErrors, "; ")

	if err := s.querier.FinishSyncLog(ctx, logID, status, totalCount, errMsg); err != nil {
		return SyncResult{}, fmt.Errorf("failed to finish sync log: %w", err)
	}

	logger.Info("Repository sync finished", "status", string(status), "contributions", totalCount)

	return SyncResult{
		Success:            len(phaseErrors) < phaseCount,
		ContributionsCount: totalCount,
		Error:              errMsg,
	}, nil
}

// openSyncLog creates the sync log row up front so even a failed attempt
// leaves an audit record. The student reference is resolved from the
// username and may legitimately be absent.
func (s *Syncer) openSyncLog(ctx context.Context, repositoryID int64, username string) (int64, error) {
	var studentID *int64
	student, err := s.querier.GetStudentByUsername(ctx, username)
	switch {
	case err == nil:
		studentID = &student.ID
	case errors.Is(err, pgx.ErrNoRows):
		// Log row keeps a null student reference.
	default:
		return 0, err
	}
	return s.querier.CreateSyncLog(ctx, studentID, repositoryID)
}

func (s *Syncer) resolveStudentID(ctx context.Context, repositoryID int64) (int64, error) {
	repo, err := s.querier.GetRepositoryByID(ctx, repositoryID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, &custom_errors.ErrRepositoryNotFound{ID: repositoryID}
	}
	if err != nil {
		return 0, err
	}
	return repo.StudentID, nil
}

// syncCommits fetches commits attributed upstream to the student and
// reconciles each into the store. Returns the number reconciled before any
// failure, so partially fetched work is never lost.
func (s *Syncer) syncCommits(ctx context.Context, repositoryID, studentID int64, username, owner, name string) (int, error) {
	commits, err := s.client.ListCommitsByAuthor(ctx, owner, name, username)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, commit := range commits {
		if err := s.querier.UpsertContribution(ctx, normalizeCommit(repositoryID, studentID, commit)); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// syncPullRequests runs the two-tier retrieval strategy and reconciles every
// verified PR. A degraded (fallback) retrieval still counts as a successful
// phase; it is logged so operators can distinguish the paths.
func (s *Syncer) syncPullRequests(ctx context.Context, repositoryID, studentID int64, username, owner, name string) (int, error) {
	result, err := s.client.FetchPullRequestsByAuthor(ctx, owner, name, username)
	if err != nil {
		return 0, err
	}

	if result.Source == github.SourceListFallback {
		s.logger.Warn("PRs retrieved via fallback listing",
			"owner", owner, "repo", name, "reason", result.FallbackReason)
	}

	count := 0
	for _, pr := range result.PullRequests {
		if pr.User == nil {
			continue
		}
		if err := s.querier.UpsertContribution(ctx, normalizePullRequest(repositoryID, studentID, pr)); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// syncIssues fetches issues created by the student and reconciles the ones
// that are actually issues: the upstream listing conflates pull requests
// with issues, and items without an identifiable author are dropped.
func (s *Syncer) syncIssues(ctx context.Context, repositoryID, studentID int64, username, owner, name string) (int, error) {
	issues, err := s.client.ListIssuesByCreator(ctx, owner, name, username)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, issue := range issues {
		if !isAttributableIssue(issue) {
			continue
		}
		if err := s.querier.UpsertContribution(ctx, normalizeIssue(repositoryID, studentID, issue)); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// isAttributableIssue keeps items that are real issues with an identifiable
// author. The creator match already happened upstream via the listing
// parameter.
func isAttributableIssue(issue *gh.Issue) bool {
	return !issue.IsPullRequest() && issue.User != nil
}

// runPhase isolates one phase: a panic inside it becomes a phase error
// instead of escaping the orchestrator.
func runPhase(fn func() (int, error)) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
