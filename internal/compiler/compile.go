package compiler

import (
	"context"
	"fmt"

	"github.com/roach88/catalogmigrate/internal/migrate"
	"github.com/roach88/catalogmigrate/internal/store"
)

// Compile turns a validated declaration into a runnable migration.
// A declaration without down operations compiles to an irreversible migration.
func Compile(d *Declaration) (migrate.Migration, error) {
	if errs := Validate(d); len(errs) > 0 {
		return migrate.Migration{}, &CompileError{
			Field:   d.ID,
			Message: errs[0].Error(),
			Pos:     d.Source,
		}
	}

	m := migrate.Migration{
		ID:          d.ID,
		Description: d.Description,
		Up:          applyAll(d.Up),
	}
	if len(d.Down) > 0 {
		m.Down = applyAll(d.Down)
	}
	return m, nil
}

// CompileAll compiles decls and registers them with reg.
func CompileAll(decls []*Declaration, reg *migrate.Registry) error {
	if errs := Validate(decls); len(errs) > 0 {
		return errs[0]
	}
	for _, d := range decls {
		m, err := Compile(d)
		if err != nil {
			return err
		}
		if err := reg.Register(m); err != nil {
			return fmt.Errorf("%s: %w", d.Source, err)
		}
	}
	return nil
}

func applyAll(ops []Operation) migrate.Func {
	return func(ctx context.Context, cat store.Catalog) error {
		for i, op := range ops {
			if err := op.Apply(ctx, cat); err != nil {
				return fmt.Errorf("%s #%d: %w", op.Op, i, err)
			}
		}
		return nil
	}
}

// Apply executes the operation against cat.
func (op Operation) Apply(ctx context.Context, cat store.Catalog) error {
	if op.Op == OpCreateCollection {
		// SaveCollection writes generated ids back; keep the declaration pristine.
		return cat.SaveCollection(ctx, op.Schema.Clone())
	}

	col, err := cat.FindCollection(ctx, op.Collection)
	if err != nil {
		return err
	}

	switch op.Op {
	case OpDeleteCollection:
		return cat.DeleteCollection(ctx, col)
	case OpAddField:
		col.AddField(op.Field.Clone())
	case OpRemoveField:
		if !col.RemoveField(op.Name) {
			return &store.NotFoundError{Kind: "field", Key: col.Name + "." + op.Name}
		}
	case OpSetRule:
		var expr *string
		if op.Expr != nil {
			v := *op.Expr
			expr = &v
		}
		col.SetRule(op.Rule, expr)
	default:
		return fmt.Errorf("unknown operation %q", op.Op)
	}
	return cat.SaveCollection(ctx, col)
}
