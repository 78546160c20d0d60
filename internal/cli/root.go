package cli

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/catalogmigrate/internal/compiler"
	"github.com/roach88/catalogmigrate/internal/config"
	"github.com/roach88/catalogmigrate/internal/logging"
	"github.com/roach88/catalogmigrate/internal/migrate"
	"github.com/roach88/catalogmigrate/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose       bool
	Format        string // "text" | "json" | "yaml"
	Database      string
	MigrationsDir string
	LogLevel      string
	LogFormat     string

	// Registry is the set of compiled-in migrations. Declarative migrations
	// from MigrationsDir are added on top. Nil means migrate.Default().
	Registry *migrate.Registry

	// Clock and BatchGenerator override time and batch ids (for testing).
	Clock          func() time.Time
	BatchGenerator migrate.BatchGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{FormatText, FormatJSON, FormatYAML}

// NewRootCommand creates the root command. cfg supplies flag defaults.
func NewRootCommand(cfg config.Config) *cobra.Command {
	return newRootCommand(&RootOptions{}, cfg)
}

func newRootCommand(opts *RootOptions, cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalogmigrate",
		Short: "catalogmigrate - versioned schema migrations for a collection catalog",
		Long: `Apply and revert versioned schema migrations against a SQLite collection
catalog, and allocate mentors through the records the migrations define.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", FormatText, "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", cfg.Database, "path to SQLite catalog database")
	cmd.PersistentFlags().StringVar(&opts.MigrationsDir, "migrations-dir", cfg.MigrationsDir, "directory of declarative CUE/YAML migrations")
	opts.LogLevel = cfg.LogLevel
	opts.LogFormat = cfg.LogFormat

	// Add subcommands
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewCollectionsCommand(opts))
	cmd.AddCommand(NewRecordsCommand(opts))
	cmd.AddCommand(NewAllocateCommand(opts))
	cmd.AddCommand(NewSessionsCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Logs go to stderr to avoid corrupting structured output
		Verbose:   o.Verbose,
	}
}

// logger builds the command logger. --verbose forces debug level.
func (o *RootOptions) logger(cmd *cobra.Command) (*zap.Logger, error) {
	level := o.LogLevel
	if level == "" {
		level = "info"
	}
	if o.Verbose {
		level = "debug"
	}
	log, err := logging.New(cmd.ErrOrStderr(), level, o.LogFormat)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to configure logging", err)
	}
	return log, nil
}

// openStore opens the catalog named by --db.
func (o *RootOptions) openStore(log *zap.Logger) (*store.Store, error) {
	if o.Database == "" {
		return nil, NewExitError(ExitCommandError, "no database: set --db or CATALOGMIGRATE_DB")
	}
	opts := []store.Option{store.WithLogger(log)}
	if o.Clock != nil {
		opts = append(opts, store.WithClock(o.Clock))
	}
	st, err := store.Open(o.Database, opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// registry returns the compiled-in migrations plus those loaded from
// --migrations-dir.
func (o *RootOptions) registry(f *OutputFormatter) (*migrate.Registry, error) {
	base := o.Registry
	if base == nil {
		base = migrate.Default()
	}
	reg := migrate.NewRegistry()
	for _, m := range base.List() {
		if err := reg.Register(m); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to build registry", err)
		}
	}
	if o.MigrationsDir == "" {
		return reg, nil
	}

	result, loadErrs := compiler.LoadDir(o.MigrationsDir, compiler.LoadModeFailFast)
	if len(loadErrs) > 0 {
		return nil, WrapExitError(ExitCommandError, "failed to load migrations", loadErrs[0])
	}
	f.VerboseLog("Loaded %d declarative migration(s) from %s", len(result.Declarations), o.MigrationsDir)
	if err := compiler.CompileAll(result.Declarations, reg); err != nil {
		return nil, WrapExitError(ExitFailure, "invalid migrations", err)
	}
	return reg, nil
}

// runner bundles everything a migration command needs. Callers must Close it.
type runner struct {
	*migrate.Runner
	store *store.Store
	log   *zap.Logger
}

func (r *runner) Close() {
	_ = r.log.Sync()
	_ = r.store.Close()
}

func (o *RootOptions) newRunner(cmd *cobra.Command, f *OutputFormatter) (*runner, error) {
	log, err := o.logger(cmd)
	if err != nil {
		return nil, err
	}
	reg, err := o.registry(f)
	if err != nil {
		return nil, err
	}
	st, err := o.openStore(log)
	if err != nil {
		return nil, err
	}
	runnerOpts := []migrate.Option{migrate.WithLogger(log)}
	if o.BatchGenerator != nil {
		runnerOpts = append(runnerOpts, migrate.WithBatchGenerator(o.BatchGenerator))
	}
	return &runner{Runner: migrate.NewRunner(st, reg, runnerOpts...), store: st, log: log}, nil
}

// exitCodeFor classifies errors from the catalog layer: unknown ids are
// command errors, everything else is a failure.
func exitCodeFor(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if store.IsNotFound(err) {
		var merr *migrate.MigrationError
		if !errors.As(err, &merr) {
			return ExitCommandError
		}
	}
	return ExitFailure
}

// fail reports err through f and returns it as an *ExitError.
func fail(f *OutputFormatter, code, message string, err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		_ = f.Error(code, exitErr.Error(), nil)
		return exitErr
	}
	_ = f.Error(code, fmt.Sprintf("%s: %v", message, err), nil)
	return WrapExitError(exitCodeFor(err), message, err)
}
