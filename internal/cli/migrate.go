package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/catalogmigrate/internal/migrate"
	"github.com/roach88/catalogmigrate/internal/schema"
)

// MigrateUpOptions holds flags for migrate up.
type MigrateUpOptions struct {
	*RootOptions
	Count int
}

// MigrateDownOptions holds flags for migrate down.
type MigrateDownOptions struct {
	*RootOptions
	Count int
	To    string
	All   bool
}

// NewMigrateCommand creates the migrate command group.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, revert and inspect catalog migrations",
	}
	cmd.AddCommand(newMigrateUpCommand(rootOpts))
	cmd.AddCommand(newMigrateDownCommand(rootOpts))
	cmd.AddCommand(newMigrateStatusCommand(rootOpts))
	cmd.AddCommand(newMigrateHistoryCommand(rootOpts))
	return cmd
}

func newMigrateUpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateUpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Long: `Apply pending migrations in ascending id order.

Each migration runs in its own transaction together with its bookkeeping
row. A failing migration stops the run; migrations before it stay applied.

Example:
  catalogmigrate migrate up --db ./catalog.db
  catalogmigrate migrate up --count 1 --migrations-dir ./migrations`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(opts, cmd)
		},
	}
	cmd.Flags().IntVar(&opts.Count, "count", 0, "maximum number of migrations to apply (0 = all)")
	return cmd
}

func runMigrateUp(opts *MigrateUpOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if opts.Count < 0 {
		return fail(f, "E002", "invalid flags", NewExitError(ExitCommandError, "--count must not be negative"))
	}
	r, err := opts.newRunner(cmd, f)
	if err != nil {
		return fail(f, "E002", "setup failed", err)
	}
	defer r.Close()

	res, err := r.Up(cmd.Context(), migrate.UpOptions{Count: opts.Count})
	if res != nil {
		outputResult(f, res)
	}
	if err != nil {
		return fail(f, "E010", "migrate up failed", err)
	}
	return nil
}

func newMigrateDownCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateDownOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Revert applied migrations",
		Long: `Revert applied migrations in descending id order.

Without flags the most recent migration is reverted. --to ID reverts every
migration applied after ID; --all reverts everything.

Example:
  catalogmigrate migrate down
  catalogmigrate migrate down --to 1723867000_init_users`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateDown(opts, cmd)
		},
	}
	cmd.Flags().IntVar(&opts.Count, "count", 1, "number of migrations to revert")
	cmd.Flags().StringVar(&opts.To, "to", "", "revert migrations applied after this id")
	cmd.Flags().BoolVar(&opts.All, "all", false, "revert every applied migration")
	cmd.MarkFlagsMutuallyExclusive("count", "to", "all")
	return cmd
}

func runMigrateDown(opts *MigrateDownOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if opts.Count < 1 {
		return fail(f, "E002", "invalid flags", NewExitError(ExitCommandError, "--count must be at least 1"))
	}
	r, err := opts.newRunner(cmd, f)
	if err != nil {
		return fail(f, "E002", "setup failed", err)
	}
	defer r.Close()

	res, err := r.Down(cmd.Context(), migrate.DownOptions{Count: opts.Count, Target: opts.To, All: opts.All})
	if res != nil {
		outputResult(f, res)
	}
	if err != nil {
		return fail(f, "E011", "migrate down failed", err)
	}
	return nil
}

func outputResult(f *OutputFormatter, res *migrate.Result) {
	if f.Structured() {
		_ = f.Success(res)
		return
	}
	verb := "Applied"
	if res.Direction == migrate.DirectionDown {
		verb = "Reverted"
	}
	if len(res.Executed) == 0 {
		fmt.Fprintln(f.Writer, "Nothing to do")
		return
	}
	fmt.Fprintf(f.Writer, "%s %d migration(s) in batch %s\n", verb, len(res.Executed), res.Batch)
	for _, id := range res.Executed {
		fmt.Fprintf(f.Writer, "  ✓ %s\n", id)
	}
}

func newMigrateStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show applied and pending migrations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			r, err := rootOpts.newRunner(cmd, f)
			if err != nil {
				return fail(f, "E002", "setup failed", err)
			}
			defer r.Close()

			statuses, err := r.Status(cmd.Context())
			if err != nil {
				return fail(f, "E001", "status failed", err)
			}
			if f.Structured() {
				return f.Success(statuses)
			}

			tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATE\tAPPLIED AT\tBATCH")
			for _, st := range statuses {
				state, at := "pending", "-"
				if st.Applied {
					state = "applied"
					at = schema.FormatDate(*st.AppliedAt)
				}
				if st.Orphan {
					state = "orphan"
				}
				batch := st.Batch
				if batch == "" {
					batch = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.ID, state, at, batch)
			}
			return tw.Flush()
		},
	}
}

func newMigrateHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "history",
		Short:         "List applied migrations with their batches",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			r, err := rootOpts.newRunner(cmd, f)
			if err != nil {
				return fail(f, "E002", "setup failed", err)
			}
			defer r.Close()

			history, err := r.History(cmd.Context())
			if err != nil {
				return fail(f, "E001", "history failed", err)
			}
			if f.Structured() {
				return f.Success(history)
			}
			if len(history) == 0 {
				fmt.Fprintln(f.Writer, "No migrations applied")
				return nil
			}
			tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tAPPLIED AT\tBATCH")
			for _, m := range history {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", m.ID, schema.FormatDate(m.AppliedAt), m.Batch)
			}
			return tw.Flush()
		},
	}
}
