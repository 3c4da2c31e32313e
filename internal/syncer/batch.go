// internal/syncer/batch.go
package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	custom_errors "contrib-tracker/internal/errors"
	"contrib-tracker/internal/model"
)

// SyncRepositoryByID resolves a repository row and syncs it once, using the
// owning student's username for attribution.
func (s *Syncer) SyncRepositoryByID(ctx context.Context, repositoryID int64) (RepoSyncResult, error) {
	repo, err := s.querier.GetRepositoryByID(ctx, repositoryID)
	if errors.Is(err, pgx.ErrNoRows) {
		return RepoSyncResult{}, &custom_errors.ErrRepositoryNotFound{ID: repositoryID}
	}
	if err != nil {
		return RepoSyncResult{}, err
	}

	student, err := s.querier.GetStudentByID(ctx, repo.StudentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return RepoSyncResult{}, &custom_errors.ErrStudentNotFound{ID: repo.StudentID}
	}
	if err != nil {
		return RepoSyncResult{}, err
	}

	return s.syncOne(ctx, repo, student.GithubUsername), nil
}

// SyncForStudent syncs every repository associated with the student: the
// ones they own plus any repository their existing contributions reference.
// Repositories are processed sequentially; individual failures do not stop
// the batch.
func (s *Syncer) SyncForStudent(ctx context.Context, studentID int64) ([]RepoSyncResult, error) {
	student, err := s.querier.GetStudentByID(ctx, studentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &custom_errors.ErrStudentNotFound{ID: studentID}
	}
	if err != nil {
		return nil, err
	}

	repos, err := s.querier.ListRepositoriesForStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Syncing repositories for student",
		"student_id", studentID, "username", student.GithubUsername, "count", len(repos))

	results := make([]RepoSyncResult, 0, len(repos))
	for _, repo := range repos {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, s.syncOne(ctx, repo, student.GithubUsername))
	}
	return results, nil
}

// SyncAll syncs every tracked repository, sequentially, continuing past
// individual failures. Intended for the scheduled trigger.
func (s *Syncer) SyncAll(ctx context.Context) ([]RepoSyncResult, error) {
	repos, err := s.querier.ListAllRepositories(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Starting full sync", "repositories", len(repos))

	results := make([]RepoSyncResult, 0, len(repos))
	succeeded := 0

	for _, repo := range repos {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		student, err := s.querier.GetStudentByID(ctx, repo.StudentID)
		if err != nil {
			s.logger.Error("Skipping repository with unresolvable student",
				"repository_id", repo.ID, "student_id", repo.StudentID, "error", err)
			results = append(results, RepoSyncResult{
				RepositoryID: repo.ID,
				Repository:   repo.Owner + "/" + repo.Name,
				SyncResult:   SyncResult{Success: false, Error: fmt.Sprintf("resolve student: %v", err)},
			})
			continue
		}

		results = append(results, s.syncOne(ctx, repo, student.GithubUsername))
		if results[len(results)-1].Success {
			succeeded++
		}
	}

	s.logger.Info("Full sync completed", "succeeded", succeeded, "total", len(repos))
	return results, nil
}

// syncOne runs a single repository sync and folds any orchestrator error
// into the per-repository result so batches keep going.
func (s *Syncer) syncOne(ctx context.Context, repo model.Repository, username string) RepoSyncResult {
	result := RepoSyncResult{
		RepositoryID: repo.ID,
		Repository:   repo.Owner + "/" + repo.Name,
	}

	syncResult, err := s.SyncRepository(ctx, repo.ID, username, repo.Owner, repo.Name)
	if err != nil {
		s.logger.Error("Repository sync failed",
			"repository", result.Repository, "error", err)
		result.SyncResult = SyncResult{Success: false, Error: err.Error()}
		return result
	}

	result.SyncResult = syncResult
	return result
}
