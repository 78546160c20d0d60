package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/roach88/catalogmigrate/internal/migrate"
	"github.com/roach88/catalogmigrate/internal/schema"
	"github.com/roach88/catalogmigrate/internal/store"
	"github.com/roach88/catalogmigrate/internal/testutil"
)

func TestCompile_RejectsInvalid(t *testing.T) {
	d := validDeclaration()
	d.ID = "bad"
	_, err := Compile(d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrMigrationID)
}

func TestCompile_NoDownIsIrreversible(t *testing.T) {
	d := validDeclaration()
	d.Down = nil
	m, err := Compile(d)
	require.NoError(t, err)
	assert.NotNil(t, m.Up)
	assert.Nil(t, m.Down)
}

func TestCompile_RunsOperations(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()

	m, err := Compile(validDeclaration())
	require.NoError(t, err)

	require.NoError(t, s.RunInTx(ctx, func(tx *store.Tx) error { return m.Up(ctx, tx) }))
	col, err := s.FindCollection(ctx, "allocations")
	require.NoError(t, err)
	assert.Equal(t, "vegm1c8n4vzwxrl", col.ID)

	// Up can run again after Down: the declaration is not mutated by saving.
	require.NoError(t, s.RunInTx(ctx, func(tx *store.Tx) error { return m.Down(ctx, tx) }))
	require.NoError(t, s.RunInTx(ctx, func(tx *store.Tx) error { return m.Up(ctx, tx) }))
}

func TestOperation_Apply(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()

	create, err := Compile(validDeclaration())
	require.NoError(t, err)
	require.NoError(t, s.RunInTx(ctx, func(tx *store.Tx) error { return create.Up(ctx, tx) }))

	apply := func(op Operation) error {
		return s.RunInTx(ctx, func(tx *store.Tx) error { return op.Apply(ctx, tx) })
	}

	require.NoError(t, apply(Operation{
		Op:         OpAddField,
		Collection: "allocations",
		Field:      &schema.Field{Name: "notes", Options: schema.TextOptions{}},
	}))
	col, err := s.FindCollection(ctx, "allocations")
	require.NoError(t, err)
	_, ok := col.FieldByName("notes")
	assert.True(t, ok)

	require.NoError(t, apply(Operation{
		Op:         OpSetRule,
		Collection: "allocations",
		Rule:       schema.RuleView,
		Expr:       strPtr(`request.auth.id != ""`),
	}))
	col, err = s.FindCollection(ctx, "allocations")
	require.NoError(t, err)
	require.NotNil(t, col.ViewRule)

	require.NoError(t, apply(Operation{Op: OpRemoveField, Collection: "allocations", Name: "notes"}))
	err = apply(Operation{Op: OpRemoveField, Collection: "allocations", Name: "notes"})
	assert.True(t, store.IsNotFound(err))

	err = apply(Operation{Op: OpDeleteCollection, Collection: "missing"})
	assert.True(t, store.IsNotFound(err))

	require.NoError(t, apply(Operation{Op: OpDeleteCollection, Collection: "allocations"}))
	_, err = s.FindCollection(ctx, "allocations")
	assert.True(t, store.IsNotFound(err))
}

func TestCompileAll_RegistersAndRuns(t *testing.T) {
	reg := migrate.NewRegistry()
	require.NoError(t, CompileAll([]*Declaration{validDeclaration()}, reg))
	assert.Equal(t, 1, reg.Len())

	s := testutil.NewStore(t)
	runner := migrate.NewRunner(s, reg, migrate.WithLogger(zaptest.NewLogger(t)))
	ctx := context.Background()

	res, err := runner.Up(ctx, migrate.UpOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1723867136_created_allocations"}, res.Executed)

	_, err = runner.Down(ctx, migrate.DownOptions{})
	require.NoError(t, err)
	cols, err := s.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, cols)
}

func TestCompileAll_DuplicateWithRegistry(t *testing.T) {
	reg := migrate.NewRegistry()
	require.NoError(t, reg.Register(migrate.Migration{
		ID: "1723867136_created_allocations",
		Up: func(context.Context, store.Catalog) error { return nil },
	}))
	err := CompileAll([]*Declaration{validDeclaration()}, reg)
	assert.ErrorContains(t, err, "already registered")
}
