// internal/store/store.go
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"contrib-tracker/internal/model"
)

// DBTX is the subset of pgx operations the store needs. Both *pgxpool.Pool
// and pgx.Tx satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the pgx-backed implementation of Querier.
type Store struct {
	db DBTX
}

var _ Querier = (*Store)(nil)

// New creates a Store over a pool or transaction.
func New(db DBTX) *Store {
	return &Store{db: db}
}

const getStudentByID = `
SELECT id, github_username, student_name, email, created_at, updated_at
FROM students WHERE id = $1
`

func (s *Store) GetStudentByID(ctx context.Context, id int64) (model.Student, error) {
	var st model.Student
	err := s.db.QueryRow(ctx, getStudentByID, id).Scan(
		&st.ID, &st.GithubUsername, &st.StudentName, &st.Email, &st.CreatedAt, &st.UpdatedAt,
	)
	return st, err
}

const getStudentByUsername = `
SELECT id, github_username, student_name, email, created_at, updated_at
FROM students WHERE github_username = $1
`

func (s *Store) GetStudentByUsername(ctx context.Context, username string) (model.Student, error) {
	var st model.Student
	err := s.db.QueryRow(ctx, getStudentByUsername, username).Scan(
		&st.ID, &st.GithubUsername, &st.StudentName, &st.Email, &st.CreatedAt, &st.UpdatedAt,
	)
	return st, err
}

const repositoryColumns = `
id, owner, name, full_name, organization_id, is_organization_repo, student_id, created_at, updated_at
`

const getRepositoryByID = `
SELECT ` + repositoryColumns + `
FROM repositories WHERE id = $1
`

func (s *Store) GetRepositoryByID(ctx context.Context, id int64) (model.Repository, error) {
	return scanRepository(s.db.QueryRow(ctx, getRepositoryByID, id))
}

const createRepository = `
INSERT INTO repositories (owner, name, full_name, organization_id, is_organization_repo, student_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + repositoryColumns + `
`

// CreateRepository registers a repository for a student. The unique
// (student_id, owner, name) constraint surfaces duplicates as a pgconn error
// the caller maps to a conflict.
func (s *Store) CreateRepository(ctx context.Context, arg CreateRepositoryParams) (model.Repository, error) {
	fullName := arg.Owner + "/" + arg.Name
	return scanRepository(s.db.QueryRow(ctx, createRepository,
		arg.Owner, arg.Name, fullName, arg.OrganizationID, arg.OrganizationID != nil, arg.StudentID,
	))
}

const listAllRepositories = `
SELECT ` + repositoryColumns + `
FROM repositories ORDER BY id
`

func (s *Store) ListAllRepositories(ctx context.Context) ([]model.Repository, error) {
	rows, err := s.db.Query(ctx, listAllRepositories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRepositories(rows)
}

// The union covers repositories the student formally owns and repositories
// they contributed to under another student's association.
const listRepositoriesForStudent = `
SELECT DISTINCT r.id, r.owner, r.name, r.full_name, r.organization_id, r.is_organization_repo, r.student_id, r.created_at, r.updated_at
FROM repositories r
WHERE r.student_id = $1
UNION
SELECT DISTINCT r.id, r.owner, r.name, r.full_name, r.organization_id, r.is_organization_repo, r.student_id, r.created_at, r.updated_at
FROM contributions c
JOIN repositories r ON c.repository_id = r.id
WHERE c.student_id = $1
ORDER BY id
`

func (s *Store) ListRepositoriesForStudent(ctx context.Context, studentID int64) ([]model.Repository, error) {
	rows, err := s.db.Query(ctx, listRepositoriesForStudent, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRepositories(rows)
}

// The conflict target is the idempotency key: an existing row is updated in
// place, leaving id and created_at untouched.
const upsertContribution = `
INSERT INTO contributions (
    repository_id, student_id, type, external_id, title, url, state,
    created_at, updated_at, metadata
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (repository_id, type, external_id)
DO UPDATE SET
    title = EXCLUDED.title,
    url = EXCLUDED.url,
    state = EXCLUDED.state,
    updated_at = EXCLUDED.updated_at,
    metadata = EXCLUDED.metadata,
    synced_at = CURRENT_TIMESTAMP
`

func (s *Store) UpsertContribution(ctx context.Context, arg UpsertContributionParams) error {
	metadata, err := json.Marshal(arg.Metadata)
	if err != nil {
		return fmt.Errorf("marshal contribution metadata: %w", err)
	}

	var state *string
	if arg.State != "" {
		state = &arg.State
	}

	_, err = s.db.Exec(ctx, upsertContribution,
		arg.RepositoryID, arg.StudentID, string(arg.Type), arg.ExternalID,
		arg.Title, arg.URL, state, arg.CreatedAt, arg.UpdatedAt, metadata,
	)
	return err
}

const contributionColumns = `
id, repository_id, student_id, type, external_id, title, url, state, created_at, updated_at, metadata, synced_at
`

const listContributionsByStudent = `
SELECT ` + contributionColumns + `
FROM contributions WHERE student_id = $1
ORDER BY updated_at DESC
`

func (s *Store) ListContributionsByStudent(ctx context.Context, studentID int64) ([]model.Contribution, error) {
	rows, err := s.db.Query(ctx, listContributionsByStudent, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContributions(rows)
}

const listContributionsByRepository = `
SELECT ` + contributionColumns + `
FROM contributions WHERE repository_id = $1
ORDER BY updated_at DESC
`

func (s *Store) ListContributionsByRepository(ctx context.Context, repositoryID int64) ([]model.Contribution, error) {
	rows, err := s.db.Query(ctx, listContributionsByRepository, repositoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContributions(rows)
}

const getLeaderboard = `
SELECT s.id, s.github_username, COALESCE(s.student_name, ''),
       COUNT(*) FILTER (WHERE c.type = 'commit'),
       COUNT(*) FILTER (WHERE c.type = 'pull_request'),
       COUNT(*) FILTER (WHERE c.type = 'issue'),
       COUNT(c.id)
FROM students s
LEFT JOIN contributions c ON c.student_id = s.id
GROUP BY s.id, s.github_username, s.student_name
ORDER BY COUNT(c.id) DESC, s.github_username
`

func (s *Store) GetLeaderboard(ctx context.Context) ([]model.LeaderboardEntry, error) {
	rows, err := s.db.Query(ctx, getLeaderboard)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(
			&e.StudentID, &e.GithubUsername, &e.StudentName,
			&e.TotalCommits, &e.TotalPullRequests, &e.TotalIssues, &e.TotalContributions,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// A sync log starts in success status and is finalized exactly once by
// FinishSyncLog with the derived status and counts.
const createSyncLog = `
INSERT INTO sync_logs (student_id, repository_id, status)
VALUES ($1, $2, 'success')
RETURNING id
`

func (s *Store) CreateSyncLog(ctx context.Context, studentID *int64, repositoryID int64) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, createSyncLog, studentID, repositoryID).Scan(&id)
	return id, err
}

const finishSyncLog = `
UPDATE sync_logs
SET status = $2, contributions_count = $3, error_message = $4, completed_at = CURRENT_TIMESTAMP
WHERE id = $1
`

func (s *Store) FinishSyncLog(ctx context.Context, id int64, status model.SyncStatus, contributionsCount int, errorMessage string) error {
	var msg *string
	if errorMessage != "" {
		msg = &errorMessage
	}
	_, err := s.db.Exec(ctx, finishSyncLog, id, string(status), contributionsCount, msg)
	return err
}

const getLatestSyncLogForRepository = `
SELECT id, student_id, repository_id, status, contributions_count, error_message, started_at, completed_at
FROM sync_logs WHERE repository_id = $1
ORDER BY started_at DESC
LIMIT 1
`

func (s *Store) GetLatestSyncLogForRepository(ctx context.Context, repositoryID int64) (model.SyncLog, error) {
	var l model.SyncLog
	var status string
	err := s.db.QueryRow(ctx, getLatestSyncLogForRepository, repositoryID).Scan(
		&l.ID, &l.StudentID, &l.RepositoryID, &status, &l.ContributionsCount,
		&l.ErrorMessage, &l.StartedAt, &l.CompletedAt,
	)
	l.Status = model.SyncStatus(status)
	return l, err
}

func scanRepository(row pgx.Row) (model.Repository, error) {
	var r model.Repository
	err := row.Scan(
		&r.ID, &r.Owner, &r.Name, &r.FullName, &r.OrganizationID,
		&r.IsOrganizationRepo, &r.StudentID, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

func collectRepositories(rows pgx.Rows) ([]model.Repository, error) {
	var repos []model.Repository
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

func collectContributions(rows pgx.Rows) ([]model.Contribution, error) {
	var contribs []model.Contribution
	for rows.Next() {
		var c model.Contribution
		var typ string
		var title, state *string
		var metadata []byte
		if err := rows.Scan(
			&c.ID, &c.RepositoryID, &c.StudentID, &typ, &c.ExternalID,
			&title, &c.URL, &state, &c.CreatedAt, &c.UpdatedAt, &metadata, &c.SyncedAt,
		); err != nil {
			return nil, err
		}
		c.Type = model.ContributionType(typ)
		if title != nil {
			c.Title = *title
		}
		if state != nil {
			c.State = *state
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal contribution metadata: %w", err)
			}
		}
		contribs = append(contribs, c)
	}
	return contribs, rows.Err()
}
