// internal/errors/errors.go
package errors

import "fmt"

// ErrInvalidRepoFormat is returned when a repository reference is not in
// 'owner/name' format or a recognizable GitHub URL.
type ErrInvalidRepoFormat struct {
	Repo string
}

func (e *ErrInvalidRepoFormat) Error() string {
	return fmt.Sprintf("invalid repository format: %q, expected 'owner/name'", e.Repo)
}

// ErrInvalidUsername is returned when an attribution username is present but
// not a well-formed GitHub username.
type ErrInvalidUsername struct {
	Username string
}

func (e *ErrInvalidUsername) Error() string {
	return fmt.Sprintf("invalid GitHub username: %q", e.Username)
}

// ErrRepositoryNotFound is returned when a repository id cannot be resolved
// in the store.
type ErrRepositoryNotFound struct {
	ID int64
}

func (e *ErrRepositoryNotFound) Error() string {
	return fmt.Sprintf("repository %d not found", e.ID)
}

// ErrStudentNotFound is returned when a student id cannot be resolved in the
// store.
type ErrStudentNotFound struct {
	ID int64
}

func (e *ErrStudentNotFound) Error() string {
	return fmt.Sprintf("student %d not found", e.ID)
}

// ErrMissingIdentifier marks a contract violation: a required identifier was
// empty at a point where the caller must always supply one. These are never
// swallowed into sync logs.
type ErrMissingIdentifier struct {
	Field string
}

func (e *ErrMissingIdentifier) Error() string {
	return fmt.Sprintf("missing required identifier: %s", e.Field)
}
