package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/catalogmigrate/internal/allocation"
	"github.com/roach88/catalogmigrate/internal/store"
)

// NewAllocateCommand creates the allocate command.
func NewAllocateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allocate <mentee-id>",
		Short: "Assign a mentor to a mentee",
		Long: fmt.Sprintf(`Assign the first mentor with spare capacity to a mentee and record a
pending allocation. A mentor holds at most %d open (active or pending)
allocations. A mentee with an open allocation keeps it.

Requires the built-in users and allocations migrations to be applied.`, allocation.MaxMenteesPerMentor),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			return rootOpts.withStore(cmd, f, func(st *store.Store, log *zap.Logger) error {
				alloc, err := rootOpts.allocationService(st, log).Allocate(cmd.Context(), args[0])
				switch {
				case errors.Is(err, allocation.ErrNoMentors), errors.Is(err, allocation.ErrNoCapacity):
					return fail(f, "E020", "allocation failed", err)
				case errors.Is(err, allocation.ErrNotMentee):
					return fail(f, "E021", "allocation failed", NewExitError(ExitCommandError, err.Error()))
				case err != nil:
					return fail(f, "E005", "allocation failed", err)
				}

				if f.Structured() {
					return f.Success(alloc)
				}
				fmt.Fprintf(f.Writer, "Mentee %s allocated to mentor %s (%s, %s)\n",
					alloc.GetString("mentee_id"), alloc.GetString("mentor_id"), alloc.ID, alloc.GetString("status"))
				return nil
			})
		},
	}

	cmd.AddCommand(newAllocateActivateCommand(rootOpts))
	return cmd
}

func newAllocateActivateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <allocation-id>",
		Short: "Move a pending allocation to active",
		Long: `Move a pending allocation to active. Active allocations are grouped into
sessions by "sessions create". Activating an active allocation is a no-op;
a completed allocation cannot be activated.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			return rootOpts.withStore(cmd, f, func(st *store.Store, log *zap.Logger) error {
				alloc, err := rootOpts.allocationService(st, log).Activate(cmd.Context(), args[0])
				switch {
				case errors.Is(err, allocation.ErrInvalidTransition):
					return fail(f, "E022", "activation failed", err)
				case err != nil:
					return fail(f, "E005", "activation failed", err)
				}

				if f.Structured() {
					return f.Success(alloc)
				}
				fmt.Fprintf(f.Writer, "Allocation %s is %s\n", alloc.ID, alloc.GetString("status"))
				return nil
			})
		},
	}
}

// allocationService builds the allocation service for one command run.
func (o *RootOptions) allocationService(st *store.Store, log *zap.Logger, extra ...allocation.Option) *allocation.Service {
	opts := []allocation.Option{allocation.WithLogger(log)}
	if o.Clock != nil {
		opts = append(opts, allocation.WithClock(o.Clock))
	}
	return allocation.NewService(st, append(opts, extra...)...)
}
