// internal/store/querier.go
package store

import (
	"context"
	"time"

	"contrib-tracker/internal/model"
)

// UpsertContributionParams carries one normalized contribution record for
// the idempotent insert-or-update keyed on (repository_id, type,
// external_id).
type UpsertContributionParams struct {
	RepositoryID int64
	StudentID    int64
	Type         model.ContributionType
	ExternalID   string
	Title        string
	URL          string
	State        string // empty for commits, stored as NULL
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Metadata     map[string]any
}

// CreateRepositoryParams registers one repository for a student. A non-nil
// OrganizationID marks the repository as organization-owned.
type CreateRepositoryParams struct {
	StudentID      int64
	Owner          string
	Name           string
	OrganizationID *int64
}

// Querier is the store interface consumed by the syncer and the API layer.
// It is satisfied by *Store and mocked in tests.
type Querier interface {
	GetStudentByID(ctx context.Context, id int64) (model.Student, error)
	GetStudentByUsername(ctx context.Context, username string) (model.Student, error)
	GetRepositoryByID(ctx context.Context, id int64) (model.Repository, error)
	CreateRepository(ctx context.Context, arg CreateRepositoryParams) (model.Repository, error)
	ListAllRepositories(ctx context.Context) ([]model.Repository, error)
	// ListRepositoriesForStudent resolves the union of repositories owned by
	// the student and repositories referenced by any of the student's
	// existing contributions.
	ListRepositoriesForStudent(ctx context.Context, studentID int64) ([]model.Repository, error)
	UpsertContribution(ctx context.Context, arg UpsertContributionParams) error
	ListContributionsByStudent(ctx context.Context, studentID int64) ([]model.Contribution, error)
	ListContributionsByRepository(ctx context.Context, repositoryID int64) ([]model.Contribution, error)
	GetLeaderboard(ctx context.Context) ([]model.LeaderboardEntry, error)
	// CreateSyncLog opens a sync attempt record. A nil studentID is allowed
	// when the username could not be resolved to a student row.
	CreateSyncLog(ctx context.Context, studentID *int64, repositoryID int64) (int64, error)
	FinishSyncLog(ctx context.Context, id int64, status model.SyncStatus, contributionsCount int, errorMessage string) error
	GetLatestSyncLogForRepository(ctx context.Context, repositoryID int64) (model.SyncLog, error)
}
