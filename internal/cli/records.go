package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/catalogmigrate/internal/rules"
	"github.com/roach88/catalogmigrate/internal/schema"
	"github.com/roach88/catalogmigrate/internal/store"
)

// RecordsCreateOptions holds flags for records create.
type RecordsCreateOptions struct {
	*RootOptions
	Data string
	ID   string
}

// NewRecordsCommand creates the records command group.
func NewRecordsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Create and list collection records",
	}
	cmd.AddCommand(newRecordsCreateCommand(rootOpts))
	cmd.AddCommand(newRecordsListCommand(rootOpts))
	return cmd
}

func newRecordsCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordsCreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <collection>",
		Short: "Validate and store a record",
		Long: `Validate a record against the collection schema and store it.

Example:
  catalogmigrate records create users --data '{"name":"Ada","role":"mentor"}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordsCreate(opts, args[0], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Data, "data", "{}", "record field values as a JSON object")
	cmd.Flags().StringVar(&opts.ID, "id", "", "record id (generated if empty)")
	return cmd
}

func runRecordsCreate(opts *RecordsCreateOptions, collection string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	var data map[string]any
	if err := json.Unmarshal([]byte(opts.Data), &data); err != nil {
		return fail(f, "E002", "invalid --data", NewExitError(ExitCommandError, fmt.Sprintf("--data must be a JSON object: %v", err)))
	}

	return opts.withStore(cmd, f, func(st *store.Store, _ *zap.Logger) error {
		r := store.NewRecord(data)
		r.ID = opts.ID
		if err := st.SaveRecord(cmd.Context(), collection, r); err != nil {
			var verr *schema.ValidationError
			if errors.As(err, &verr) {
				code := "E110"
				if len(verr.Errors) > 0 {
					code = verr.Errors[0].Code
				}
				_ = f.Error(code, "record is invalid", verr.Errors)
				return WrapExitError(ExitFailure, "record is invalid", err)
			}
			return fail(f, "E005", "create record failed", err)
		}
		if f.Structured() {
			return f.Success(r)
		}
		fmt.Fprintf(f.Writer, "Created %s/%s\n", collection, r.ID)
		return nil
	})
}

// RecordsListOptions holds flags for records list.
type RecordsListOptions struct {
	*RootOptions
	As string
}

func newRecordsListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordsListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list <collection>",
		Short: "List records of a collection in creation order",
		Long: `List records of a collection in creation order.

With --as, only records the collection's list rule allows that user to see
are printed. Fields a record has no value for are seen by the rule as their
zero value ("" for text, 0 for numbers, false for bools, [] for lists).

Example:
  catalogmigrate records list allocations --as mentee_1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordsList(opts, args[0], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.As, "as", "", "evaluate the list rule as this user id")
	return cmd
}

func runRecordsList(opts *RecordsListOptions, collection string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	return opts.withStore(cmd, f, func(st *store.Store, log *zap.Logger) error {
		records, err := st.ListRecords(cmd.Context(), collection)
		if err != nil {
			return fail(f, "E005", "list records failed", err)
		}
		if opts.As != "" {
			if records, err = visibleRecords(cmd.Context(), st, collection, opts.As, records); err != nil {
				return fail(f, "E112", "list rule failed", err)
			}
			log.Debug("Applied list rule",
				zap.String("collection", collection),
				zap.String("auth_id", opts.As),
				zap.Int("visible", len(records)))
		}

		if f.Structured() {
			return f.Success(records)
		}
		tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCREATED\tDATA")
		for _, r := range records {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, schema.FormatDate(r.Created), formatData(r.Data))
		}
		return tw.Flush()
	})
}

// visibleRecords filters records through the collection's list rule as
// evaluated for the given user.
func visibleRecords(ctx context.Context, st *store.Store, collection, authID string, records []*store.Record) ([]*store.Record, error) {
	col, err := st.FindCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	engine, err := rules.Default()
	if err != nil {
		return nil, err
	}
	req := rules.Request{AuthID: authID, AuthCollection: "users", Method: "GET"}

	visible := make([]*store.Record, 0, len(records))
	for _, r := range records {
		ok, err := engine.Allow(col.ListRule, req, r.FieldsOf(col))
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", r.ID, err)
		}
		if ok {
			visible = append(visible, r)
		}
	}
	return visible, nil
}

// formatData renders record data as sorted key=value pairs.
func formatData(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return strings.Join(parts, " ")
}
