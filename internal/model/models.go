// internal/model/models.go
package model

import (
	"database/sql"
	"time"
)

// ContributionType is the closed set of contribution categories.
type ContributionType string

const (
	TypeCommit      ContributionType = "commit"
	TypePullRequest ContributionType = "pull_request"
	TypeIssue       ContributionType = "issue"
)

// Contribution states for pull requests and issues. Commits carry no state.
const (
	StateOpen   = "open"
	StateClosed = "closed"
	StateMerged = "merged"
)

// SyncStatus is the outcome of one repository sync attempt.
type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusPartial SyncStatus = "partial"
	SyncStatusError   SyncStatus = "error"
)

// DeriveSyncStatus maps the number of failed phases (out of phaseCount) to a
// sync status: success when nothing failed, error when everything did,
// partial otherwise.
func DeriveSyncStatus(failed, phaseCount int) SyncStatus {
	switch {
	case failed == 0:
		return SyncStatusSuccess
	case failed >= phaseCount:
		return SyncStatusError
	default:
		return SyncStatusPartial
	}
}

// Student is a tracked contributor. The GitHub username is the attribution
// key and is unique across students.
type Student struct {
	ID             int64
	GithubUsername string
	StudentName    *string
	Email          *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Repository is an owner/name pair tracked for one student. The same
// owner/name may appear again under a different student.
type Repository struct {
	ID                 int64
	Owner              string
	Name               string
	FullName           string
	OrganizationID     *int64
	IsOrganizationRepo bool
	StudentID          int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Contribution is the normalized, reconciled unit of work. The tuple
// (RepositoryID, Type, ExternalID) is globally unique and acts as the
// idempotency key for upserts.
type Contribution struct {
	ID           int64
	RepositoryID int64
	StudentID    int64
	Type         ContributionType
	ExternalID   string
	Title        string
	URL          string
	State        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Metadata     map[string]any
	SyncedAt     time.Time
}

// SyncLog records one sync attempt for a (student, repository) pair.
// Append-only: finished exactly once with final status and counts.
type SyncLog struct {
	ID                 int64
	StudentID          sql.NullInt64
	RepositoryID       sql.NullInt64
	Status             SyncStatus
	ContributionsCount int
	ErrorMessage       *string
	StartedAt          time.Time
	CompletedAt        sql.NullTime
}

// LeaderboardEntry is one row of the per-student contribution totals
// projection consumed by the dashboard.
type LeaderboardEntry struct {
	StudentID          int64  `json:"student_id"`
	GithubUsername     string `json:"github_username"`
	StudentName        string `json:"student_name,omitempty"`
	TotalCommits       int64  `json:"total_commits"`
	TotalPullRequests  int64  `json:"total_prs"`
	TotalIssues        int64  `json:"total_issues"`
	TotalContributions int64  `json:"total_contributions"`
}
