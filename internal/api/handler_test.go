// internal/api/handler_test.go
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	custom_errors "contrib-tracker/internal/errors"
	"contrib-tracker/internal/model"
	"contrib-tracker/internal/store"
	"contrib-tracker/internal/syncer"
)

// stubQuerier overrides just the store methods the handler under test needs;
// anything else panics via the embedded nil interface.
type stubQuerier struct {
	store.Querier
	getStudentByID        func(ctx context.Context, id int64) (model.Student, error)
	createRepo            func(ctx context.Context, arg store.CreateRepositoryParams) (model.Repository, error)
	listContribsByStudent func(ctx context.Context, studentID int64) ([]model.Contribution, error)
	latestSyncLog         func(ctx context.Context, repositoryID int64) (model.SyncLog, error)
	leaderboard           func(ctx context.Context) ([]model.LeaderboardEntry, error)
}

func (s *stubQuerier) GetStudentByID(ctx context.Context, id int64) (model.Student, error) {
	return s.getStudentByID(ctx, id)
}
func (s *stubQuerier) CreateRepository(ctx context.Context, arg store.CreateRepositoryParams) (model.Repository, error) {
	return s.createRepo(ctx, arg)
}
func (s *stubQuerier) ListContributionsByStudent(ctx context.Context, studentID int64) ([]model.Contribution, error) {
	return s.listContribsByStudent(ctx, studentID)
}
func (s *stubQuerier) GetLatestSyncLogForRepository(ctx context.Context, repositoryID int64) (model.SyncLog, error) {
	return s.latestSyncLog(ctx, repositoryID)
}
func (s *stubQuerier) GetLeaderboard(ctx context.Context) ([]model.LeaderboardEntry, error) {
	return s.leaderboard(ctx)
}

type stubSync struct {
	byRepo     func(ctx context.Context, repositoryID int64) (syncer.RepoSyncResult, error)
	forStudent func(ctx context.Context, studentID int64) ([]syncer.RepoSyncResult, error)
	all        func(ctx context.Context) ([]syncer.RepoSyncResult, error)
}

func (s *stubSync) SyncRepositoryByID(ctx context.Context, repositoryID int64) (syncer.RepoSyncResult, error) {
	return s.byRepo(ctx, repositoryID)
}
func (s *stubSync) SyncForStudent(ctx context.Context, studentID int64) ([]syncer.RepoSyncResult, error) {
	return s.forStudent(ctx, studentID)
}
func (s *stubSync) SyncAll(ctx context.Context) ([]syncer.RepoSyncResult, error) {
	return s.all(ctx)
}

func newTestRouter(db store.Querier, sync SyncService, cronSecret string) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(db, sync, cronSecret, logger)
}

func doRequest(t *testing.T, router http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(&stubQuerier{}, &stubSync{}, "")
	rec := doRequest(t, router, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestCreateRepository(t *testing.T) {
	t.Run("registers a repository from a GitHub URL", func(t *testing.T) {
		var created store.CreateRepositoryParams
		db := &stubQuerier{
			createRepo: func(ctx context.Context, arg store.CreateRepositoryParams) (model.Repository, error) {
				created = arg
				return model.Repository{ID: 1, Owner: arg.Owner, Name: arg.Name, StudentID: arg.StudentID}, nil
			},
		}
		router := newTestRouter(db, &stubSync{}, "")

		rec := doRequest(t, router, http.MethodPost, "/v1/repositories",
			`{"student_id": 7, "repo_url": "https://github.com/acme/widgets.git"}`, nil)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, int64(7), created.StudentID)
		assert.Equal(t, "acme", created.Owner)
		assert.Equal(t, "widgets", created.Name)
	})

	t.Run("rejects an unparseable repository reference", func(t *testing.T) {
		router := newTestRouter(&stubQuerier{}, &stubSync{}, "")

		rec := doRequest(t, router, http.MethodPost, "/v1/repositories",
			`{"student_id": 7, "repo_url": "not-a-repo"}`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid repository format")
	})

	t.Run("requires student_id and repo_url", func(t *testing.T) {
		router := newTestRouter(&stubQuerier{}, &stubSync{}, "")
		rec := doRequest(t, router, http.MethodPost, "/v1/repositories", `{"repo_url": "acme/widgets"}`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("maps a duplicate registration to 409", func(t *testing.T) {
		db := &stubQuerier{
			createRepo: func(ctx context.Context, arg store.CreateRepositoryParams) (model.Repository, error) {
				return model.Repository{}, &pgconn.PgError{Code: "23505"}
			},
		}
		router := newTestRouter(db, &stubSync{}, "")

		rec := doRequest(t, router, http.MethodPost, "/v1/repositories",
			`{"student_id": 7, "repo_url": "acme/widgets"}`, nil)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("maps an unknown student to 404", func(t *testing.T) {
		db := &stubQuerier{
			createRepo: func(ctx context.Context, arg store.CreateRepositoryParams) (model.Repository, error) {
				return model.Repository{}, &pgconn.PgError{Code: "23503"}
			},
		}
		router := newTestRouter(db, &stubSync{}, "")

		rec := doRequest(t, router, http.MethodPost, "/v1/repositories",
			`{"student_id": 404, "repo_url": "acme/widgets"}`, nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestTriggerSync(t *testing.T) {
	t.Run("requires repository_id or student_id", func(t *testing.T) {
		router := newTestRouter(&stubQuerier{}, &stubSync{}, "")
		rec := doRequest(t, router, http.MethodPost, "/v1/sync", `{}`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("syncs a single repository", func(t *testing.T) {
		var syncedID int64
		sync := &stubSync{
			byRepo: func(ctx context.Context, repositoryID int64) (syncer.RepoSyncResult, error) {
				syncedID = repositoryID
				return syncer.RepoSyncResult{
					RepositoryID: repositoryID,
					Repository:   "acme/widgets",
					SyncResult:   syncer.SyncResult{Success: true, ContributionsCount: 4},
				}, nil
			},
		}
		router := newTestRouter(&stubQuerier{}, sync, "")

		rec := doRequest(t, router, http.MethodPost, "/v1/sync", `{"repository_id": 42}`, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(42), syncedID)
		assert.Contains(t, rec.Body.String(), `"contributions_count":4`)
	})

	t.Run("syncs all repositories for a student", func(t *testing.T) {
		sync := &stubSync{
			forStudent: func(ctx context.Context, studentID int64) ([]syncer.RepoSyncResult, error) {
				assert.Equal(t, int64(7), studentID)
				return []syncer.RepoSyncResult{
					{RepositoryID: 1, Repository: "acme/widgets", SyncResult: syncer.SyncResult{Success: true}},
					{RepositoryID: 2, Repository: "acme/gadgets", SyncResult: syncer.SyncResult{Success: false, Error: "boom"}},
				}, nil
			},
		}
		router := newTestRouter(&stubQuerier{}, sync, "")

		rec := doRequest(t, router, http.MethodPost, "/v1/sync", `{"student_id": 7}`, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "acme/gadgets")
	})

	t.Run("404 when a student has no repositories to sync", func(t *testing.T) {
		sync := &stubSync{
			forStudent: func(ctx context.Context, studentID int64) ([]syncer.RepoSyncResult, error) {
				return []syncer.RepoSyncResult{}, nil
			},
		}
		router := newTestRouter(&stubQuerier{}, sync, "")

		rec := doRequest(t, router, http.MethodPost, "/v1/sync", `{"student_id": 7}`, nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "No repositories found")
	})

	t.Run("maps unknown repository to 404", func(t *testing.T) {
		sync := &stubSync{
			byRepo: func(ctx context.Context, repositoryID int64) (syncer.RepoSyncResult, error) {
				return syncer.RepoSyncResult{}, &custom_errors.ErrRepositoryNotFound{ID: repositoryID}
			},
		}
		router := newTestRouter(&stubQuerier{}, sync, "")

		rec := doRequest(t, router, http.MethodPost, "/v1/sync", `{"repository_id": 404}`, nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCronSync(t *testing.T) {
	sync := &stubSync{
		all: func(ctx context.Context) ([]syncer.RepoSyncResult, error) {
			return []syncer.RepoSyncResult{}, nil
		},
	}

	t.Run("rejects a missing bearer token", func(t *testing.T) {
		router := newTestRouter(&stubQuerier{}, sync, "s3cret")
		rec := doRequest(t, router, http.MethodGet, "/v1/cron/sync", "", nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("accepts the configured secret", func(t *testing.T) {
		router := newTestRouter(&stubQuerier{}, sync, "s3cret")
		rec := doRequest(t, router, http.MethodGet, "/v1/cron/sync", "",
			map[string]string{"Authorization": "Bearer s3cret"})

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestGetStudentContributions(t *testing.T) {
	t.Run("returns contributions for a known student", func(t *testing.T) {
		db := &stubQuerier{
			getStudentByID: func(ctx context.Context, id int64) (model.Student, error) {
				return model.Student{ID: id, GithubUsername: "alice"}, nil
			},
			listContribsByStudent: func(ctx context.Context, studentID int64) ([]model.Contribution, error) {
				return []model.Contribution{
					{ID: 1, Type: model.TypeCommit, ExternalID: "abc"},
				}, nil
			},
		}
		router := newTestRouter(db, &stubSync{}, "")

		rec := doRequest(t, router, http.MethodGet, "/v1/students/7/contributions", "", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "abc")
	})

	t.Run("404 for an unknown student", func(t *testing.T) {
		db := &stubQuerier{
			getStudentByID: func(ctx context.Context, id int64) (model.Student, error) {
				return model.Student{}, pgx.ErrNoRows
			},
		}
		router := newTestRouter(db, &stubSync{}, "")

		rec := doRequest(t, router, http.MethodGet, "/v1/students/404/contributions", "", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("rejects a non-numeric id", func(t *testing.T) {
		router := newTestRouter(&stubQuerier{}, &stubSync{}, "")
		rec := doRequest(t, router, http.MethodGet, "/v1/students/abc/contributions", "", nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetRepositorySyncLog(t *testing.T) {
	db := &stubQuerier{
		latestSyncLog: func(ctx context.Context, repositoryID int64) (model.SyncLog, error) {
			return model.SyncLog{
				ID:                 3,
				Status:             model.SyncStatusPartial,
				ContributionsCount: 2,
				StartedAt:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			}, nil
		},
	}
	router := newTestRouter(db, &stubSync{}, "")

	rec := doRequest(t, router, http.MethodGet, "/v1/repositories/1/sync-log", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "partial")
}

func TestGetLeaderboard(t *testing.T) {
	db := &stubQuerier{
		leaderboard: func(ctx context.Context) ([]model.LeaderboardEntry, error) {
			return []model.LeaderboardEntry{
				{StudentID: 7, GithubUsername: "alice", TotalContributions: 12},
			}, nil
		},
	}
	router := newTestRouter(db, &stubSync{}, "")

	rec := doRequest(t, router, http.MethodGet, "/v1/leaderboard", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice")
}
