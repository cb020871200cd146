package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/proxysync/internal/config"
	"github.com/roach88/proxysync/internal/harness"
)

// ValidationIssue is one problem found in a file.
type ValidationIssue struct {
	File    string `json:"file"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool              `json:"valid"`
	Checked int               `json:"checked"`
	Errors  []ValidationIssue `json:"errors,omitempty"`
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Config string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [scenario-path...]",
		Short: "Validate a config file and scenario files",
		Long: `Validate a config file against the schema and check scenario files
without running them.

Scenario paths may be files or directories; directories are searched for
.yaml and .yml files.

Examples:
  proxysync validate --config proxysync.yaml
  proxysync validate ./testdata/scenarios
  proxysync validate --config proxysync.yaml ./testdata/scenarios --format json`,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to YAML config")

	return cmd
}

func runValidate(opts *ValidateOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	if opts.Config == "" && len(paths) == 0 {
		return outputValidateError(formatter, ErrCodeConfig, "nothing to validate: pass --config or scenario paths", nil)
	}

	result := ValidationResult{Valid: true}

	if opts.Config != "" {
		formatter.VerboseLog("Validating config: %s", opts.Config)
		result.Checked++
		result.Errors = append(result.Errors, validateConfigFile(opts.Config)...)
	}

	for _, p := range paths {
		files, err := findScenarioFiles(p, "")
		if err != nil {
			return outputValidateError(formatter, ErrCodeScenario, err.Error(), nil)
		}
		for _, f := range files {
			formatter.VerboseLog("Validating scenario: %s", f)
			result.Checked++
			if _, err := harness.LoadScenario(f); err != nil {
				result.Errors = append(result.Errors, ValidationIssue{File: f, Code: ErrCodeScenario, Message: err.Error()})
			}
		}
	}

	result.Valid = len(result.Errors) == 0
	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// validateConfigFile loads path and reports every schema problem separately.
func validateConfigFile(path string) []ValidationIssue {
	_, err := config.Load(path)
	if err == nil {
		return nil
	}
	var ve *config.ValidationError
	if !errors.As(err, &ve) {
		return []ValidationIssue{{File: path, Code: ErrCodeConfig, Message: err.Error()}}
	}
	issues := make([]ValidationIssue, len(ve.Problems))
	for i, p := range ve.Problems {
		issues[i] = ValidationIssue{File: path, Code: ErrCodeConfig, Message: p}
	}
	return issues
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ All %d file(s) valid\n", result.Checked)
	return nil
}

// outputValidateError outputs a single command error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every validation issue.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    result.Errors[0].Code,
				Message: result.Errors[0].Message,
			},
		}
		if err := encodeJSON(formatter.Writer, response); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, issue := range result.Errors {
		fmt.Fprintf(formatter.Writer, "%s\n  %s: %s\n\n", issue.File, issue.Code, issue.Message)
	}
	return failure
}

// isDir reports whether path names an existing directory.
func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
