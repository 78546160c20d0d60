package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/catalogmigrate/internal/allocation"
	"github.com/roach88/catalogmigrate/internal/schema"
	"github.com/roach88/catalogmigrate/internal/store"
)

// NewSessionsCommand creates the sessions command group.
func NewSessionsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Group allocations into mentor sessions",
	}
	cmd.AddCommand(newSessionsCreateCommand(rootOpts))
	cmd.AddCommand(newSessionsListCommand(rootOpts))
	return cmd
}

// SessionsCreateOptions holds flags for the sessions create command.
type SessionsCreateOptions struct {
	*RootOptions
	Venue string
}

func newSessionsCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SessionsCreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create sessions from active allocations",
		Long: fmt.Sprintf(`Group each mentor's active allocations into sessions of up to %d and mark
the grouped allocations completed. All sessions are created in one
transaction.

Requires the built-in sessions migration to be applied.`, allocation.StudentsPerSession),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			return opts.withStore(cmd, f, func(st *store.Store, log *zap.Logger) error {
				svc := opts.allocationService(st, log, allocation.WithVenue(opts.Venue))
				sessions, err := svc.CreateSessions(cmd.Context())
				if err != nil {
					return fail(f, "E005", "session creation failed", err)
				}

				if f.Structured() {
					return f.Success(sessions)
				}
				if len(sessions) == 0 {
					fmt.Fprintln(f.Writer, "No active allocations")
					return nil
				}
				fmt.Fprintf(f.Writer, "Created %d session(s)\n", len(sessions))
				for _, s := range sessions {
					fmt.Fprintf(f.Writer, "  ✓ %s mentor=%s students=%d\n",
						s.ID, s.GetString("mentor_id"), len(schema.RelationIDs(s.Get("session_students"))))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Venue, "venue", "", "venue of the new sessions (default \""+allocation.DefaultVenue+"\")")
	return cmd
}

func newSessionsListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <mentor-id>",
		Short: "List a mentor's sessions and their mentees",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			return rootOpts.withStore(cmd, f, func(st *store.Store, log *zap.Logger) error {
				sessions, err := rootOpts.allocationService(st, log).MentorSessions(cmd.Context(), args[0])
				if err != nil {
					return fail(f, "E005", "list sessions failed", err)
				}
				if sessions == nil {
					sessions = []allocation.Session{}
				}

				if f.Structured() {
					return f.Success(sessions)
				}
				tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tDATETIME\tVENUE\tMENTEES")
				for _, s := range sessions {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Datetime, s.Venue, strings.Join(s.Mentees, ","))
				}
				return tw.Flush()
			})
		},
	}
}
