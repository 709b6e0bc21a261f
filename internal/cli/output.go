package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/agenda/internal/engine"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected request, invalid catalog or failed scenario
	ExitCommandError = 2 // Command error (bad paths, unreachable database, etc.)
)

// Error codes reported in CLIError.Code.
const (
	ErrCodeGeneric       = "E001" // unclassified failure
	ErrCodeLoad          = "E002" // catalog directory could not be loaded
	ErrCodeInvalid       = "E003" // catalog failed validation
	ErrCodeBadInput      = "E004" // bad role, participant id or flag value
	ErrCodeForbidden     = "E403"
	ErrCodeNotFound      = "E404"
	ErrCodeConflict      = "E409"
	ErrCodeStepsExceeded = "E422" // auto-pick chain longer than max steps
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitSuccess for nil and ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format.
// In text mode, data is printed with fmt.Println semantics.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set so JSON output on Writer stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// EngineErrorDetails is the details payload of a rejected engine request.
type EngineErrorDetails struct {
	Kind          string            `json:"kind"`
	ParticipantID string            `json:"participant_id,omitempty"`
	ActivityID    string            `json:"activity_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// reportEngineError prints err and returns the ExitError the command should
// return. Engine rejections exit with ExitFailure; anything else (storage,
// locking) is a command error.
func reportEngineError(f *OutputFormatter, err error) error {
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		if outErr := f.Error(codeForKind(engErr.Kind), engErr.Message, EngineErrorDetails{
			Kind:          string(engErr.Kind),
			ParticipantID: engErr.ParticipantID,
			ActivityID:    engErr.ActivityID,
			CorrelationID: engErr.CorrelationID,
			Extra:         engErr.Details,
		}); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "request rejected", err)
	}

	var stepsErr *engine.StepsExceededError
	if errors.As(err, &stepsErr) {
		if outErr := f.Error(ErrCodeStepsExceeded, stepsErr.Error(), map[string]any{
			"participant_id": stepsErr.ParticipantID,
			"activity_id":    stepsErr.ActivityID,
			"steps":          stepsErr.Steps,
			"limit":          stepsErr.Limit,
		}); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "request rejected", err)
	}

	if outErr := f.Error(ErrCodeGeneric, err.Error(), nil); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitCommandError, "command failed", err)
}

func codeForKind(kind engine.ErrorKind) string {
	switch kind {
	case engine.KindNotFound:
		return ErrCodeNotFound
	case engine.KindForbidden:
		return ErrCodeForbidden
	case engine.KindConflict:
		return ErrCodeConflict
	}
	return ErrCodeGeneric
}
