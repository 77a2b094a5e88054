package userservice

import (
	"errors"
	"fmt"
)

// AuthError is returned when the user-service does not resolve a token to a
// user id.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("get user id: status %d: %s", e.StatusCode, e.Body)
}

// PersistError is returned when a prediction is not stored.
type PersistError struct {
	StatusCode int
	Body       string
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("save prediction: status %d: %s", e.StatusCode, e.Body)
}

// FetchError is returned when history or reports cannot be read.
type FetchError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// MalformedResponseError is returned when a success response does not decode
// into the expected structure.
type MalformedResponseError struct {
	Op  string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// StatusCode extracts the HTTP status carried by a user-service error, or 0.
func StatusCode(err error) int {
	var authErr *AuthError
	var persistErr *PersistError
	var fetchErr *FetchError
	switch {
	case errors.As(err, &authErr):
		return authErr.StatusCode
	case errors.As(err, &persistErr):
		return persistErr.StatusCode
	case errors.As(err, &fetchErr):
		return fetchErr.StatusCode
	}
	return 0
}
