package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/catalogmigrate/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool                         `json:"valid" yaml:"valid"`
	Migrations int                          `json:"migrations" yaml:"migrations"`
	Errors     []compiler.ValidationError   `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings   []compiler.DependencyWarning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <migrations-dir>",
		Short: "Validate declarative migrations without applying them",
		Long: `Validate CUE and YAML migration declarations without touching a database.

Performs syntax checking, operation and schema validation, rule expression
compilation, and reports relation targets created by a later migration.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loadResult, loadErrors := compiler.LoadDir(dir, compiler.LoadModeCollectAll)

	// Handle load errors (directory not found, no files, etc.)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *compiler.LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, compiler.ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d migration file(s) in %s", loadResult.FileCount, dir)

	var validationErrors []compiler.ValidationError
	for _, err := range loadErrors {
		validationErrors = append(validationErrors, loadErrorToValidation(err))
	}
	for _, d := range loadResult.Declarations {
		formatter.VerboseLog("Validating migration: %s", d.ID)
	}
	validationErrors = append(validationErrors, compiler.Validate(loadResult.Declarations)...)

	warnings := compiler.AnalyzeDependencies(loadResult.Declarations)

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors, warnings)
	}
	return outputValidateSuccess(formatter, len(loadResult.Declarations), warnings)
}

// loadErrorToValidation converts a per-file load error into a validation error.
func loadErrorToValidation(err error) compiler.ValidationError {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		return compiler.ValidationError{Field: loadErr.Pos.File, Message: loadErr.Message, Code: loadErr.Code, Line: loadErr.Pos.Line}
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return compiler.ValidationError{
			Field:   compileErr.Pos.File + ": " + compileErr.Field,
			Message: compileErr.Message,
			Code:    compiler.ErrCodeLoadFailed,
			Line:    compileErr.Pos.Line,
		}
	}
	return compiler.ValidationError{Field: "load", Message: err.Error(), Code: compiler.ErrCodeGeneric}
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, count int, warnings []compiler.DependencyWarning) error {
	if formatter.Structured() {
		return formatter.Success(ValidationResult{Valid: true, Migrations: count, Warnings: warnings})
	}

	fmt.Fprintf(formatter.Writer, "✓ All %d migration(s) valid\n", count)
	printWarnings(formatter, warnings)
	return nil
}

func printWarnings(formatter *OutputFormatter, warnings []compiler.DependencyWarning) {
	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "⚠ %s\n", w.Message)
	}
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError, warnings []compiler.DependencyWarning) error {
	if formatter.Structured() {
		if err := formatter.Encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs, Warnings: warnings},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	printWarnings(formatter, warnings)

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
