package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"

	"github.com/roach88/sysarch/internal/assembly"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected mutation, failed check or failed scenarios
	ExitCommandError = 2 // Command error (bad arguments, unreachable database, etc.)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	// Reported is set when the command already wrote its outcome, so the
	// error only selects the exit code.
	Reported bool
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

// newReportedError returns an ExitError for an outcome the command has
// already printed.
func newReportedError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message, Reported: true}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Core rejections map to
// ExitFailure; anything else that is not an ExitError is a command error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if assembly.KindOf(err) != "" {
		return ExitFailure
	}
	return ExitCommandError
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics and text-mode errors (defaults to Writer)
	Verbose   bool
	TraceID   string
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status  string    `json:"status"`             // "ok" or "error"
	Data    any       `json:"data,omitempty"`     // success payload
	Error   *CLIError `json:"error,omitempty"`    // error details
	TraceID string    `json:"trace_id,omitempty"` // correlates with log op ids
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string            `json:"code"`              // error kind, or COMMAND_ERROR
	Message string            `json:"message"`           // human-readable message
	Details map[string]string `json:"details,omitempty"` // additional context
	Hints   []string          `json:"hints,omitempty"`
}

// CodeCommandError is the CLIError code for failures that are not core
// rejections.
const CodeCommandError = "COMMAND_ERROR"

// Success outputs data. In text mode render writes the human-readable form;
// a nil render prints data with fmt.
func (f *OutputFormatter) Success(data any, render func(w io.Writer) error) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data, TraceID: f.TraceID})
	}
	if render != nil {
		return render(f.Writer)
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error outputs err in the configured format.
func (f *OutputFormatter) Error(err error) error {
	cliErr := toCLIError(err)
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "error", Error: cliErr, TraceID: f.TraceID})
	}

	w := f.GetErrWriter()
	fmt.Fprint(w, pterm.Error.Sprintf("[%s] %s\n", cliErr.Code, cliErr.Message))
	for _, hint := range cliErr.Hints {
		fmt.Fprintf(w, "  hint: %s\n", hint)
	}
	if f.Verbose && len(cliErr.Details) > 0 {
		fmt.Fprintf(w, "  details: %v\n", cliErr.Details)
	}
	return nil
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func toCLIError(err error) *CLIError {
	out := &CLIError{
		Code:    CodeCommandError,
		Message: err.Error(),
		Hints:   errors.GetAllHints(err),
	}
	var rejection *assembly.Error
	if errors.As(err, &rejection) {
		out.Code = string(rejection.Kind)
		out.Details = rejection.Details
		if err.Error() == rejection.Error() {
			out.Message = rejection.Message
		}
	}
	return out
}

// VerboseLog outputs a message only if verbose mode is enabled.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
