package cli

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/subsheet/internal/row"
)

// NewRowsCommand creates the rows command.
func NewRowsCommand(rootOpts *RootOptions) *cobra.Command {
	var sortBy string
	var desc bool

	cmd := &cobra.Command{
		Use:   "rows <table> <record>",
		Short: "List the saved rows of a record",
		Long: `Load every saved row of a sub-table and print it in display order.

Rows are ordered by the table's sort settings unless --sort names a field.

Example:
  subsheet rows lines order-1
  subsheet rows lines order-1 --sort qty --desc --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			s, err := openSession(cmd, rootOpts, args[0], args[1])
			if err != nil {
				return err
			}
			defer s.Close()

			if sortBy != "" {
				if err := s.eng.Sort(s.ctx, sortBy, !desc); err != nil {
					return formatter.Fail("sort failed", err)
				}
			}
			rows, err := s.eng.Rows(s.ctx)
			if err != nil {
				return formatter.Fail("list rows failed", err)
			}
			return formatter.Rows(s.view(rows))
		},
	}

	cmd.Flags().StringVar(&sortBy, "sort", "", "field to sort by")
	cmd.Flags().BoolVar(&desc, "desc", false, "sort descending")
	return cmd
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	var sets []string
	var after string

	cmd := &cobra.Command{
		Use:   "add <table> <record>",
		Short: "Add and save a row",
		Long: `Create a row from field defaults and --set values, recompute its
dependent fields and save it. The saved row is printed with its new id.

Example:
  subsheet add lines order-1 --set name=bolt --set qty=3 --set unitPrice=0.25`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			values, err := parseAssignments(sets)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --set", err)
			}

			s, err := openSession(cmd, rootOpts, args[0], args[1])
			if err != nil {
				return err
			}
			defer s.Close()

			created, err := s.eng.AddRow(s.ctx, values, after)
			if err != nil {
				return formatter.Fail("add failed", err)
			}
			formatter.VerboseLog("Created row %s", created.ID)

			saved, err := s.commit(created.ID)
			if err != nil {
				return formatter.Fail("save failed", err)
			}
			return formatter.Rows(s.view([]row.Row{saved}))
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "field=value (repeatable)")
	cmd.Flags().StringVar(&after, "after", "", "insert after this row id")
	return cmd
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	var sets []string

	cmd := &cobra.Command{
		Use:   "edit <table> <record> <row-id>",
		Short: "Edit cells of a saved row",
		Long: `Apply --set values to a row one field at a time, in field-name order.
Each edit recomputes the fields that depend on it. The row is saved only
when every edit passes validation.

Example:
  subsheet edit lines order-1 0192f0c4-... --set qty=5`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			values, err := parseAssignments(sets)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --set", err)
			}
			if len(values) == 0 {
				return NewExitError(ExitCommandError, "nothing to edit: pass at least one --set")
			}

			s, err := openSession(cmd, rootOpts, args[0], args[1])
			if err != nil {
				return err
			}
			defer s.Close()

			rowID := args[2]
			if _, ok, err := s.eng.Row(s.ctx, rowID); err != nil {
				return formatter.Fail("edit failed", err)
			} else if !ok {
				_ = formatter.Error("E404", fmt.Sprintf("row %s not found", rowID), nil)
				return NewExitError(ExitCommandError, fmt.Sprintf("row %s not found", rowID))
			}

			for _, fieldID := range slices.Sorted(maps.Keys(values)) {
				out, err := s.eng.Edit(s.ctx, rowID, fieldID, values[fieldID])
				if err != nil {
					return formatter.Fail("edit failed", err)
				}
				if out.Err != nil {
					return formatter.Fail("edit rejected", out.Err)
				}
				formatter.VerboseLog("Edited %s.%s (applied=%t, async=%v)", rowID, fieldID, out.Applied, out.Async)
			}

			saved, err := s.commit(rowID)
			if err != nil {
				return formatter.Fail("save failed", err)
			}
			return formatter.Rows(s.view([]row.Row{saved}))
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "field=value (repeatable)")
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "delete <table> <record> <row-id>",
		Short:         "Delete a saved row",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			s, err := openSession(cmd, rootOpts, args[0], args[1])
			if err != nil {
				return err
			}
			defer s.Close()

			rowID := args[2]
			removed, err := s.eng.DeleteRow(s.ctx, rowID)
			if err != nil {
				return formatter.Fail("delete failed", err)
			}
			if !removed {
				_ = formatter.Error("E404", fmt.Sprintf("row %s not found", rowID), nil)
				return NewExitError(ExitCommandError, fmt.Sprintf("row %s not found", rowID))
			}
			if formatter.Format == "json" {
				return formatter.Success(map[string]string{"deleted": rowID})
			}
			fmt.Fprintf(formatter.Writer, "Deleted %s\n", rowID)
			return nil
		},
	}
	return cmd
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <table> <record> <filename>",
		Short: "Export rows to CSV",
		Long: `Write the rows of a record to <export_dir>/<filename>.csv, one column
per visible field. Select values are written as their labels.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			s, err := openSession(cmd, rootOpts, args[0], args[1])
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.eng.RequestExport(s.ctx, args[2]); err != nil {
				return formatter.Fail("export failed", err)
			}
			path := filepath.Join(s.cfg.ExportDir, strings.TrimSuffix(args[2], ".csv")+".csv")
			if formatter.Format == "json" {
				return formatter.Success(map[string]string{"path": path})
			}
			fmt.Fprintf(formatter.Writer, "Exported to %s\n", path)
			return nil
		},
	}
	return cmd
}
