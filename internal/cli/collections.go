package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/catalogmigrate/internal/store"
)

// NewCollectionsCommand creates the collections command group.
func NewCollectionsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "Inspect catalog collections",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List collections in creation order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			return rootOpts.withStore(cmd, f, func(st *store.Store, _ *zap.Logger) error {
				cols, err := st.ListCollections(cmd.Context())
				if err != nil {
					return fail(f, "E001", "list collections failed", err)
				}
				if f.Structured() {
					return f.Success(cols)
				}
				tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tTYPE\tFIELDS")
				for _, c := range cols {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", c.ID, c.Name, c.Type, len(c.Fields))
				}
				return tw.Flush()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "show <id|name>",
		Short:         "Print one collection in its exported JSON shape",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			return rootOpts.withStore(cmd, f, func(st *store.Store, _ *zap.Logger) error {
				col, err := st.FindCollection(cmd.Context(), args[0])
				if err != nil {
					return fail(f, "E005", "show collection failed", err)
				}
				if f.Structured() {
					return f.Success(col)
				}
				data, err := json.MarshalIndent(col, "", "  ")
				if err != nil {
					return fail(f, "E001", "encode collection failed", err)
				}
				fmt.Fprintln(f.Writer, string(data))
				return nil
			})
		},
	})

	return cmd
}

// withStore opens the catalog, runs fn and closes it again.
func (o *RootOptions) withStore(cmd *cobra.Command, f *OutputFormatter, fn func(*store.Store, *zap.Logger) error) error {
	log, err := o.logger(cmd)
	if err != nil {
		return fail(f, "E002", "setup failed", err)
	}
	defer func() { _ = log.Sync() }()

	st, err := o.openStore(log)
	if err != nil {
		return fail(f, "E002", "setup failed", err)
	}
	defer st.Close()

	return fn(st, log)
}
