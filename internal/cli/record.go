package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/subsheet/internal/persist"
)

// NewRecordCommand creates the record command group.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Manage related records",
		Long:  "Related records are what relation fields point at and lookup fields read from.",
	}
	cmd.AddCommand(newRecordPutCommand(rootOpts))
	return cmd
}

func newRecordPutCommand(rootOpts *RootOptions) *cobra.Command {
	var sets []string

	cmd := &cobra.Command{
		Use:   "put <table> <id>",
		Short: "Create or replace a related record",
		Long: `Store a related record under <table>/<id>, replacing any previous values.

Example:
  subsheet record put products p-1 --set title=Bolt --set sku=B-100`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			values, err := parseAssignments(sets)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --set", err)
			}

			cfg, err := rootOpts.loadConfig(cmd)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			st, err := persist.Open(cfg.Database)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer st.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := st.PutRecord(ctx, args[0], args[1], values); err != nil {
				return formatter.Fail("put record failed", err)
			}
			if formatter.Format == "json" {
				return formatter.Success(map[string]any{"table": args[0], "id": args[1], "values": values})
			}
			fmt.Fprintf(formatter.Writer, "Stored %s/%s\n", args[0], args[1])
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "field=value (repeatable)")
	return cmd
}
