package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/subsheet/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool           `json:"valid"`
	Tables   []TableSummary `json:"tables,omitempty"`
	Errors   []string       `json:"errors,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

// TableSummary describes one compiled table.
type TableSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Fields  int    `json:"fields"`
	MaxRows int    `json:"max_rows,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema-dir>",
		Short: "Check table definitions",
		Long: `Compile the CUE table definitions in a directory and report errors.

Malformed settings and dependency cycles are warnings: the table still
loads with defaults. Unknown field types, bad references and invalid
formula operators are errors.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	tables, errs := schema.LoadTables(dir)

	// Directory-level failures leave nothing to report per table.
	if tables == nil && len(errs) > 0 {
		var le *schema.LoadError
		if errors.As(errs[0], &le) {
			_ = formatter.Error(le.Code, le.Message, nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", le.Code, le.Message))
		}
		_ = formatter.Error(schema.ErrCodeGeneric, errs[0].Error(), nil)
		return NewExitError(ExitCommandError, errs[0].Error())
	}

	result := ValidationResult{Valid: len(errs) == 0}
	for _, id := range schema.IDs(tables) {
		t := tables[id]
		formatter.VerboseLog("Compiled table: %s (%d fields)", id, t.Fields.Len())
		result.Tables = append(result.Tables, TableSummary{ID: id, Name: t.Name, Fields: t.Fields.Len(), MaxRows: t.MaxRows})
		for _, w := range t.Warnings {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", id, w))
		}
	}
	for _, err := range errs {
		result.Errors = append(result.Errors, err.Error())
	}

	if formatter.Format == "json" {
		if result.Valid {
			return formatter.Success(result)
		}
		_ = formatter.Error(schema.ErrCodeInvalid, result.Errors[0], result)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	w := formatter.Writer
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	if !result.Valid {
		fmt.Fprintln(w, "✗ Validation failed")
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}
	fmt.Fprintf(w, "✓ %d table(s) valid\n", len(result.Tables))
	return nil
}
