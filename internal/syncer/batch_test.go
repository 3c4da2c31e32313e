// internal/syncer/batch_test.go
package syncer

import (
	"context"
	"testing"

	gh "github.com/google/go-github/v62/github"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	custom_errors "contrib-tracker/internal/errors"
	"contrib-tracker/internal/model"
)

// quietGitHub returns one commit per repository so syncs succeed with a
// non-zero count.
func quietGitHub(recordAuthors *[]string) *stubGitHub {
	return &stubGitHub{
		commits: func(owner, name, author string) ([]*gh.RepositoryCommit, error) {
			if recordAuthors != nil {
				*recordAuthors = append(*recordAuthors, author)
			}
			return []*gh.RepositoryCommit{fixtureCommit("abc", "change")}, nil
		},
	}
}

// expectRepoSync wires everything one successful repository sync needs.
func expectRepoSync(mockQ *MockQuerier, repo model.Repository, student model.Student) {
	mockQ.On("GetStudentByUsername", mock.Anything, student.GithubUsername).
		Return(student, nil).Once()
	mockQ.On("CreateSyncLog", mock.Anything, mock.Anything, repo.ID).
		Return(repo.ID*100, nil).Once()
	mockQ.On("GetRepositoryByID", mock.Anything, repo.ID).
		Return(repo, nil).Once()
	mockQ.On("UpsertContribution", mock.Anything, mock.Anything).Return(nil).Once()
	mockQ.On("FinishSyncLog", mock.Anything, repo.ID*100, model.SyncStatusSuccess, 1, "").
		Return(nil).Once()
}

func TestSyncForStudent(t *testing.T) {
	alice := model.Student{ID: 7, GithubUsername: "alice"}
	owned := model.Repository{ID: 1, Owner: "acme", Name: "widgets", StudentID: 7}
	// A repository tracked under another student that alice contributed to.
	contributed := model.Repository{ID: 2, Owner: "acme", Name: "gadgets", StudentID: 9}

	t.Run("syncs the union of owned and contributed repositories", func(t *testing.T) {
		mockQ := new(MockQuerier)
		mockQ.On("GetStudentByID", mock.Anything, int64(7)).Return(alice, nil).Once()
		mockQ.On("ListRepositoriesForStudent", mock.Anything, int64(7)).
			Return([]model.Repository{owned, contributed}, nil).Once()
		expectRepoSync(mockQ, owned, alice)
		expectRepoSync(mockQ, contributed, alice)

		var authors []string
		s := NewSyncer(mockQ, quietGitHub(&authors), testLogger())
		results, err := s.SyncForStudent(context.Background(), 7)

		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.True(t, results[0].Success)
		assert.True(t, results[1].Success)
		assert.Equal(t, "acme/widgets", results[0].Repository)
		assert.Equal(t, "acme/gadgets", results[1].Repository)
		// Attribution always uses the target student's username, even for
		// repositories associated with another student.
		assert.Equal(t, []string{"alice", "alice"}, authors)
		mockQ.AssertExpectations(t)
	})

	t.Run("unknown student is a typed error", func(t *testing.T) {
		mockQ := new(MockQuerier)
		mockQ.On("GetStudentByID", mock.Anything, int64(404)).
			Return(model.Student{}, pgx.ErrNoRows).Once()

		s := NewSyncer(mockQ, &stubGitHub{}, testLogger())
		_, err := s.SyncForStudent(context.Background(), 404)

		var notFound *custom_errors.ErrStudentNotFound
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, int64(404), notFound.ID)
	})
}

func TestSyncAll_ContinuesPastFailures(t *testing.T) {
	alice := model.Student{ID: 7, GithubUsername: "alice"}
	broken := model.Repository{ID: 1, Owner: "acme", Name: "widgets", StudentID: 404}
	healthy := model.Repository{ID: 2, Owner: "acme", Name: "gadgets", StudentID: 7}

	mockQ := new(MockQuerier)
	mockQ.On("ListAllRepositories", mock.Anything).
		Return([]model.Repository{broken, healthy}, nil).Once()
	// The first repository's student row is gone; the batch keeps going.
	mockQ.On("GetStudentByID", mock.Anything, int64(404)).
		Return(model.Student{}, pgx.ErrNoRows).Once()
	mockQ.On("GetStudentByID", mock.Anything, int64(7)).Return(alice, nil).Once()
	expectRepoSync(mockQ, healthy, alice)

	s := NewSyncer(mockQ, quietGitHub(nil), testLogger())
	results, err := s.SyncAll(context.Background())

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "resolve student")
	assert.True(t, results[1].Success)
	assert.Equal(t, 1, results[1].ContributionsCount)
	mockQ.AssertExpectations(t)
}

func TestSyncRepositoryByID(t *testing.T) {
	alice := model.Student{ID: 7, GithubUsername: "alice"}
	repo := model.Repository{ID: 1, Owner: "acme", Name: "widgets", StudentID: 7}

	t.Run("resolves the repository and owning student", func(t *testing.T) {
		mockQ := new(MockQuerier)
		// Once for the coordinator's resolution, once inside the
		// orchestrator's attribution lookup.
		mockQ.On("GetRepositoryByID", mock.Anything, int64(1)).Return(repo, nil)
		mockQ.On("GetStudentByID", mock.Anything, int64(7)).Return(alice, nil).Once()
		mockQ.On("GetStudentByUsername", mock.Anything, "alice").Return(alice, nil).Once()
		mockQ.On("CreateSyncLog", mock.Anything, mock.Anything, int64(1)).
			Return(int64(100), nil).Once()
		mockQ.On("UpsertContribution", mock.Anything, mock.Anything).Return(nil).Once()
		mockQ.On("FinishSyncLog", mock.Anything, int64(100), model.SyncStatusSuccess, 1, "").
			Return(nil).Once()

		s := NewSyncer(mockQ, quietGitHub(nil), testLogger())
		result, err := s.SyncRepositoryByID(context.Background(), 1)

		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "acme/widgets", result.Repository)
		mockQ.AssertExpectations(t)
	})

	t.Run("unknown repository is a typed error", func(t *testing.T) {
		mockQ := new(MockQuerier)
		mockQ.On("GetRepositoryByID", mock.Anything, int64(404)).
			Return(model.Repository{}, pgx.ErrNoRows).Once()

		s := NewSyncer(mockQ, &stubGitHub{}, testLogger())
		_, err := s.SyncRepositoryByID(context.Background(), 404)

		var notFound *custom_errors.ErrRepositoryNotFound
		require.ErrorAs(t, err, &notFound)
	})
}
