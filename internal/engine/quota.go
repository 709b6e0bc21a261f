package engine

import (
	"errors"
	"fmt"
)

// QuotaEnforcer counts auto-pick steps for one Select call and enforces a
// maximum.
//
// The visited set stops REQUIRES cycles (A → B → A). The quota stops
// long acyclic chains (A → B → C → ... → Z). Together they guarantee that
// auto-propagation terminates.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates a new quota enforcer with the given limit.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check increments the step counter and validates against the limit.
//
// Returns StepsExceededError if the quota is exceeded.
func (q *QuotaEnforcer) Check(participantID, activityID string) error {
	q.current++
	if q.current > q.maxSteps {
		return &StepsExceededError{
			ParticipantID: participantID,
			ActivityID:    activityID,
			Steps:         q.current,
			Limit:         q.maxSteps,
		}
	}
	return nil
}

// Current returns the current step count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the maximum steps limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned when auto-propagation exceeds the max
// steps quota. The whole Select is rolled back.
type StepsExceededError struct {
	ParticipantID string // Participant whose selection triggered the chain
	ActivityID    string // Activity that would have been picked next
	Steps         int    // Number of steps taken
	Limit         int    // Maximum allowed steps
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("participant %s exceeded auto-pick quota at %s: %d steps > %d limit",
		e.ParticipantID, e.ActivityID, e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
// Uses errors.As to handle wrapped errors.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
