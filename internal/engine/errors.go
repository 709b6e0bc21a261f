package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/agenda/internal/store"
)

// ErrorKind categorizes selection errors.
type ErrorKind string

const (
	// KindNotFound: participant, activity or selection does not exist.
	KindNotFound ErrorKind = "NOT_FOUND"

	// KindForbidden: the participant's role may not perform the operation.
	KindForbidden ErrorKind = "FORBIDDEN"

	// KindConflict: the operation would break a correlation, a time
	// window or the mandatory invariant.
	KindConflict ErrorKind = "CONFLICT"
)

// Error is returned by every engine operation that rejects a request.
//
// Error includes structured fields so callers (CLI, harness) can report
// which activity or correlation caused the rejection.
type Error struct {
	// Kind identifies the error category.
	Kind ErrorKind

	// Message is a human-readable description.
	Message string

	ParticipantID string
	ActivityID    string

	// CorrelationID is set when a correlation caused the rejection.
	CorrelationID string

	// Details contains additional context.
	Details map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var ctx []string
	if e.ParticipantID != "" {
		ctx = append(ctx, "participant="+e.ParticipantID)
	}
	if e.ActivityID != "" {
		ctx = append(ctx, "activity="+e.ActivityID)
	}
	if e.CorrelationID != "" {
		ctx = append(ctx, "correlation="+e.CorrelationID)
	}
	if len(ctx) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, strings.Join(ctx, ", "))
}

// KindOf returns the kind of an engine error anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsNotFound returns true if err is a NOT_FOUND engine error.
func IsNotFound(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindNotFound
}

// IsForbidden returns true if err is a FORBIDDEN engine error.
func IsForbidden(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindForbidden
}

// IsConflict returns true if err is a CONFLICT engine error.
func IsConflict(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindConflict
}

func notFound(participantID, activityID, format string, args ...any) *Error {
	return &Error{
		Kind:          KindNotFound,
		Message:       fmt.Sprintf(format, args...),
		ParticipantID: participantID,
		ActivityID:    activityID,
	}
}

func forbidden(participantID, activityID, format string, args ...any) *Error {
	return &Error{
		Kind:          KindForbidden,
		Message:       fmt.Sprintf(format, args...),
		ParticipantID: participantID,
		ActivityID:    activityID,
	}
}

func conflict(participantID, activityID, format string, args ...any) *Error {
	return &Error{
		Kind:          KindConflict,
		Message:       fmt.Sprintf(format, args...),
		ParticipantID: participantID,
		ActivityID:    activityID,
	}
}

// fromStore maps store sentinels onto engine errors. Other errors are
// wrapped with op.
func fromStore(op, participantID, activityID string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return notFound(participantID, activityID, "%v", err)
	case errors.Is(err, store.ErrAlreadySelected):
		return conflict(participantID, activityID, "%v", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
