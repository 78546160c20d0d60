package migrate

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/catalogmigrate/internal/store"
)

// Runner applies and reverts the migrations of a Registry against a Store.
type Runner struct {
	store    *store.Store
	registry *Registry
	logger   *zap.Logger
	batches  BatchGenerator
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithBatchGenerator overrides how batch ids are minted.
func WithBatchGenerator(gen BatchGenerator) Option {
	return func(r *Runner) {
		if gen != nil {
			r.batches = gen
		}
	}
}

// NewRunner constructs a Runner. A nil registry means Default().
func NewRunner(s *store.Store, registry *Registry, opts ...Option) *Runner {
	if registry == nil {
		registry = Default()
	}
	r := &Runner{
		store:    s,
		registry: registry,
		logger:   zap.NewNop(),
		batches:  UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UpOptions limit an Up run.
type UpOptions struct {
	// Count is the maximum number of migrations to apply. Zero means all.
	Count int
}

// DownOptions select which applied migrations a Down run reverts.
//
// Without Target or All, Count migrations are reverted (default 1).
type DownOptions struct {
	Count int
	// Target reverts every applied migration with an id greater than Target.
	Target string
	// All reverts every applied migration.
	All bool
}

// Result summarizes a run.
type Result struct {
	Batch     string    `json:"batch" yaml:"batch"`
	Direction Direction `json:"direction" yaml:"direction"`
	// Executed lists the migrations run, in execution order.
	Executed []string `json:"executed" yaml:"executed"`
	// Skipped lists registered migrations Up found already applied.
	Skipped []string `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// Up applies pending migrations in ascending id order.
//
// Already-applied migrations are skipped and listed in Result.Skipped. On
// failure the returned Result holds the steps that did commit.
func (r *Runner) Up(ctx context.Context, opts UpOptions) (*Result, error) {
	applied, err := r.store.AppliedMigrationIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("up: %w", err)
	}

	res := &Result{Batch: r.batches.Generate(), Direction: DirectionUp}
	var todo []Migration
	for _, m := range r.registry.List() {
		if applied[m.ID] {
			res.Skipped = append(res.Skipped, m.ID)
			continue
		}
		if opts.Count > 0 && len(todo) == opts.Count {
			continue
		}
		todo = append(todo, m)
	}

	if len(todo) > 0 {
		r.logger.Info("Bringing up catalog migrations",
			zap.Int("migration_count", len(todo)),
			zap.String("batch", res.Batch))
	}

	for _, m := range todo {
		if err := ctx.Err(); err != nil {
			return res, &MigrationError{ID: m.ID, Direction: DirectionUp, Err: err}
		}
		ran, err := r.apply(ctx, m, res.Batch)
		if err != nil {
			return res, &MigrationError{ID: m.ID, Direction: DirectionUp, Err: err}
		}
		if ran {
			res.Executed = append(res.Executed, m.ID)
		} else {
			res.Skipped = append(res.Skipped, m.ID)
		}
	}
	return res, nil
}

// apply runs one forward step. It reports false if the migration turned out
// to be applied already.
func (r *Runner) apply(ctx context.Context, m Migration, batch string) (bool, error) {
	ran := false
	err := r.store.RunInTx(ctx, func(tx *store.Tx) error {
		done, err := tx.IsApplied(ctx, m.ID)
		if err != nil || done {
			return err
		}
		r.logStep(m.ID, DirectionUp, batch, "started")
		if err := m.Up(ctx, tx); err != nil {
			return err
		}
		if err := tx.MarkApplied(ctx, m.ID, batch); err != nil {
			return err
		}
		ran = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if ran {
		r.logStep(m.ID, DirectionUp, batch, "completed")
	}
	return ran, nil
}

// Down reverts applied migrations in descending id order.
//
// A Target that is neither registered nor applied fails with a
// *store.NotFoundError. An applied migration with no registered definition
// fails with ErrNotRegistered wrapped in a *MigrationError.
func (r *Runner) Down(ctx context.Context, opts DownOptions) (*Result, error) {
	applied, err := r.store.AppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("down: %w", err)
	}
	ids := make([]string, 0, len(applied))
	for _, a := range applied {
		ids = append(ids, a.ID)
	}
	slices.SortFunc(ids, func(a, b string) int { return CompareIDs(b, a) })

	var todo []string
	switch {
	case opts.All:
		todo = ids
	case opts.Target != "":
		_, registered := r.registry.Get(opts.Target)
		if !registered && !slices.Contains(ids, opts.Target) {
			return nil, fmt.Errorf("down: %w", &store.NotFoundError{Kind: "migration", Key: opts.Target})
		}
		for _, id := range ids {
			if CompareIDs(id, opts.Target) > 0 {
				todo = append(todo, id)
			}
		}
	default:
		count := opts.Count
		if count <= 0 {
			count = 1
		}
		todo = ids[:min(count, len(ids))]
	}

	res := &Result{Batch: r.batches.Generate(), Direction: DirectionDown}
	if len(todo) > 0 {
		r.logger.Info("Tearing down catalog migrations",
			zap.Int("migration_count", len(todo)),
			zap.String("batch", res.Batch))
	}

	for _, id := range todo {
		if err := ctx.Err(); err != nil {
			return res, &MigrationError{ID: id, Direction: DirectionDown, Err: err}
		}
		if err := r.revert(ctx, id, res.Batch); err != nil {
			return res, &MigrationError{ID: id, Direction: DirectionDown, Err: err}
		}
		res.Executed = append(res.Executed, id)
	}
	return res, nil
}

func (r *Runner) revert(ctx context.Context, id, batch string) error {
	m, ok := r.registry.Get(id)
	if !ok {
		return ErrNotRegistered
	}
	if m.Down == nil {
		return ErrIrreversible
	}
	r.logStep(id, DirectionDown, batch, "started")
	err := r.store.RunInTx(ctx, func(tx *store.Tx) error {
		if err := m.Down(ctx, tx); err != nil {
			return err
		}
		return tx.MarkReverted(ctx, id)
	})
	if err != nil {
		return err
	}
	r.logStep(id, DirectionDown, batch, "completed")
	return nil
}

func (r *Runner) logStep(id string, dir Direction, batch, event string) {
	r.logger.Debug("Executing catalog migration",
		zap.String("migration_id", id),
		zap.String("direction", string(dir)),
		zap.String("batch", batch),
		zap.String("migration_event", event))
}

// Status is the state of one migration.
type Status struct {
	ID          string     `json:"id" yaml:"id"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Applied     bool       `json:"applied" yaml:"applied"`
	AppliedAt   *time.Time `json:"applied_at,omitempty" yaml:"applied_at,omitempty"`
	Batch       string     `json:"batch,omitempty" yaml:"batch,omitempty"`
	// Orphan marks an applied id with no registered migration.
	Orphan bool `json:"orphan,omitempty" yaml:"orphan,omitempty"`
}

// Status lists every registered migration and every applied one, in
// ascending id order.
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	applied, err := r.store.AppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	byID := make(map[string]store.AppliedMigration, len(applied))
	for _, a := range applied {
		byID[a.ID] = a
	}

	var out []Status
	for _, m := range r.registry.List() {
		st := Status{ID: m.ID, Description: m.Description}
		if a, ok := byID[m.ID]; ok {
			at := a.AppliedAt
			st.Applied = true
			st.AppliedAt = &at
			st.Batch = a.Batch
			delete(byID, m.ID)
		}
		out = append(out, st)
	}
	for _, a := range applied {
		if _, orphan := byID[a.ID]; !orphan {
			continue
		}
		at := a.AppliedAt
		out = append(out, Status{ID: a.ID, Applied: true, AppliedAt: &at, Batch: a.Batch, Orphan: true})
	}
	slices.SortFunc(out, func(a, b Status) int { return CompareIDs(a.ID, b.ID) })
	return out, nil
}

// History returns the applied migrations in ascending id order.
func (r *Runner) History(ctx context.Context) ([]store.AppliedMigration, error) {
	applied, err := r.store.AppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	slices.SortFunc(applied, func(a, b store.AppliedMigration) int { return CompareIDs(a.ID, b.ID) })
	return applied, nil
}
