package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidRequest indicates invalid request
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnauthorized indicates unauthorized access
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTurnInFlight indicates a second submission while a turn is being generated
	ErrTurnInFlight = errors.New("a turn is already in progress")
	// ErrInputDisabled indicates the processing gate is holding user input
	ErrInputDisabled = errors.New("input disabled while pages are processing")
	// ErrWarmWatchRunning indicates a remote warm-up is already being watched
	ErrWarmWatchRunning = errors.New("warm watcher already running")
)

// IntentError is raised when the utterance could not be classified; fatal to the turn
type IntentError struct {
	Utterance string
	Err       error
}

func (e *IntentError) Error() string {
	return fmt.Sprintf("intent extraction failed for %q: %v", e.Utterance, e.Err)
}

func (e *IntentError) Unwrap() error {
	return e.Err
}

// SearchError is raised by the search collaborator; callers degrade to zero results
type SearchError struct {
	Query string
	Err   error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search failed [%s]: %v", e.Query, e.Err)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// GenerationKind distinguishes the user-facing flavours of generation failure
type GenerationKind string

const (
	GenerationUnavailable   GenerationKind = "unavailable"
	GenerationQuotaExceeded GenerationKind = "quota_exceeded"
	GenerationDownloading   GenerationKind = "downloading"
)

// GenerationError is raised when the backend could not produce a reply; fatal to the turn
type GenerationError struct {
	Kind GenerationKind
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation %s: %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// ClassifyGeneration wraps a backend error into a GenerationError based on its text
func ClassifyGeneration(err error) *GenerationError {
	if err == nil {
		return nil
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge
	}
	msg := strings.ToLower(err.Error())
	kind := GenerationUnavailable
	switch {
	case strings.Contains(msg, "quota"):
		kind = GenerationQuotaExceeded
	case strings.Contains(msg, "download"):
		kind = GenerationDownloading
	}
	return &GenerationError{Kind: kind, Err: err}
}

// UserMessage is the reply shown in place of an answer for this failure
func (e *GenerationError) UserMessage() string {
	switch e.Kind {
	case GenerationQuotaExceeded:
		return "The language model's usage quota has been exceeded. Please try again later."
	case GenerationDownloading:
		return "The language model is still downloading. Please wait a moment and try again."
	default:
		return "The language model is not available right now. Check that the model backend is running."
	}
}

// PersistenceError is raised by the turn store; logged, never fatal to a turn
type PersistenceError struct {
	Op       string
	ThreadID string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error: %s [%s]: %v", e.Op, e.ThreadID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// StatusPollError is raised by a status source poll; retried by the monitors
type StatusPollError struct {
	Source string
	Err    error
}

func (e *StatusPollError) Error() string {
	return fmt.Sprintf("status poll failed [%s]: %v", e.Source, e.Err)
}

func (e *StatusPollError) Unwrap() error {
	return e.Err
}
