package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"vendstock/internal/core/apperror"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // domain refusal (unknown machine, commit refused, ...)
	ExitCommandError = 2 // bad flags, storage unavailable
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
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

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Domain errors map to ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Printer renders results as aligned tables or JSON.
type Printer struct {
	Format string
	Writer io.Writer
}

// JSON writes v as indented JSON.
func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table starts a table writing to the printer's writer.
func (p *Printer) Table(header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(p.Writer)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Header = text.FormatDefault
	t.AppendHeader(table.Row(header))
	return t
}

// Error prints a domain error. Text mode shows the code and message, JSON mode the full AppError.
func (p *Printer) Error(err error) {
	appErr, ok := apperror.AsAppError(err)
	if !ok {
		fmt.Fprintf(p.Writer, "error: %v\n", err)
		return
	}
	if p.Format == "json" {
		_ = p.JSON(appErr)
		return
	}
	fmt.Fprintf(p.Writer, "%s: %s\n", appErr.Code, appErr.Message)
}
