// internal/api/handler.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	custom_errors "contrib-tracker/internal/errors"
	"contrib-tracker/internal/model"
	"contrib-tracker/internal/store"
	"contrib-tracker/internal/syncer"
)

// SyncService is the sync surface exposed over HTTP. Implemented by
// *syncer.Syncer.
type SyncService interface {
	SyncRepositoryByID(ctx context.Context, repositoryID int64) (syncer.RepoSyncResult, error)
	SyncForStudent(ctx context.Context, studentID int64) ([]syncer.RepoSyncResult, error)
	SyncAll(ctx context.Context) ([]syncer.RepoSyncResult, error)
}

// Handler is the container for API dependencies.
type Handler struct {
	db         store.Querier
	sync       SyncService
	cronSecret string
	logger     *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(db store.Querier, sync SyncService, cronSecret string, logger *slog.Logger) http.Handler {
	h := &Handler{
		db:         db,
		sync:       sync,
		cronSecret: cronSecret,
		logger:     logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute)) // repository syncs can be slow

	// API Routes
	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/repositories", h.createRepository)
		r.Post("/sync", h.triggerSync)
		r.Get("/cron/sync", h.cronSync)
		r.Get("/students/{id}/contributions", h.getStudentContributions)
		r.Get("/repositories/{id}/sync-log", h.getRepositorySyncLog)
		r.Get("/leaderboard", h.getLeaderboard)
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createRepositoryRequest struct {
	StudentID      int64  `json:"student_id"`
	RepoURL        string `json:"repo_url"`
	OrganizationID *int64 `json:"organization_id,omitempty"`
}

// createRepository registers a repository for a student. The reference is
// accepted as "owner/name" or a github.com URL.
// POST /v1/repositories {"student_id": N, "repo_url": "owner/name"}
func (h *Handler) createRepository(w http.ResponseWriter, r *http.Request) {
	var req createRepositoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.StudentID == 0 || req.RepoURL == "" {
		respondWithError(w, http.StatusBadRequest, "Both student_id and repo_url are required")
		return
	}

	ref, ok := model.ParseRepoRef(req.RepoURL)
	if !ok {
		invalid := &custom_errors.ErrInvalidRepoFormat{Repo: req.RepoURL}
		respondWithError(w, http.StatusBadRequest, invalid.Error())
		return
	}

	repo, err := h.db.CreateRepository(r.Context(), store.CreateRepositoryParams{
		StudentID:      req.StudentID,
		Owner:          ref.Owner,
		Name:           ref.Name,
		OrganizationID: req.OrganizationID,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505": // unique_violation
				respondWithError(w, http.StatusConflict, "Repository already exists for this student")
				return
			case "23503": // foreign_key_violation
				respondWithError(w, http.StatusNotFound, "Student or organization not found")
				return
			}
		}
		h.logger.Error("Failed to create repository", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to create repository")
		return
	}

	respondWithJSON(w, http.StatusCreated, repo)
}

type syncRequest struct {
	RepositoryID int64 `json:"repository_id"`
	StudentID    int64 `json:"student_id"`
}

// triggerSync handles an admin-triggered sync of a single repository or of
// every repository associated with a student.
// POST /v1/sync {"repository_id": N} or {"student_id": N}
func (h *Handler) triggerSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.RepositoryID == 0 && req.StudentID == 0 {
		respondWithError(w, http.StatusBadRequest, "Either repository_id or student_id is required")
		return
	}

	var results []syncer.RepoSyncResult
	var err error

	if req.RepositoryID != 0 {
		var result syncer.RepoSyncResult
		result, err = h.sync.SyncRepositoryByID(r.Context(), req.RepositoryID)
		results = []syncer.RepoSyncResult{result}
	} else {
		results, err = h.sync.SyncForStudent(r.Context(), req.StudentID)
		if err == nil && len(results) == 0 {
			respondWithError(w, http.StatusNotFound, "No repositories found")
			return
		}
	}

	if err != nil {
		var repoNotFound *custom_errors.ErrRepositoryNotFound
		var studentNotFound *custom_errors.ErrStudentNotFound
		if errors.As(err, &repoNotFound) || errors.As(err, &studentNotFound) {
			respondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("Sync failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to sync")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"message": "Sync completed",
		"results": results,
	})
}

// cronSync triggers a full sync of every tracked repository. Guarded by a
// bearer secret so only the scheduler can call it.
// GET /v1/cron/sync
func (h *Handler) cronSync(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret != "" && r.Header.Get("Authorization") != "Bearer "+h.cronSecret {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	results, err := h.sync.SyncAll(r.Context())
	if err != nil {
		h.logger.Error("Full sync failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Sync failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"message": "Sync completed",
		"results": results,
	})
}

// getStudentContributions returns all reconciled contributions for a student.
// GET /v1/students/{id}/contributions
func (h *Handler) getStudentContributions(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid student id")
		return
	}

	if _, err := h.db.GetStudentByID(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Student not found")
			return
		}
		h.logger.Error("Failed to get student", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	contributions, err := h.db.ListContributionsByStudent(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to list contributions", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, contributions)
}

// getRepositorySyncLog returns the most recent sync attempt for a repository.
// GET /v1/repositories/{id}/sync-log
func (h *Handler) getRepositorySyncLog(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid repository id")
		return
	}

	log, err := h.db.GetLatestSyncLogForRepository(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "No sync log found for repository")
			return
		}
		h.logger.Error("Failed to get sync log", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, log)
}

// getLeaderboard returns per-student contribution totals.
// GET /v1/leaderboard
func (h *Handler) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.db.GetLeaderboard(r.Context())
	if err != nil {
		h.logger.Error("Failed to get leaderboard", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, entries)
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
