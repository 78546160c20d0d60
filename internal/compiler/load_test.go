package compiler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/roach88/catalogmigrate/internal/migrate"
	"github.com/roach88/catalogmigrate/internal/migrations"
	"github.com/roach88/catalogmigrate/internal/schema"
	"github.com/roach88/catalogmigrate/internal/testutil"
)

func TestLoadDir_Fixtures(t *testing.T) {
	result, errs := LoadDir("testdata/migrations", LoadModeCollectAll)
	require.Empty(t, errs)
	assert.Equal(t, 2, result.FileCount)
	require.Len(t, result.Declarations, 2)

	notes := result.Declarations[0]
	assert.Equal(t, "1723867300_created_notes", notes.ID)
	assert.Equal(t, filepath.Join("testdata", "migrations", "notes.cue"), notes.Source.File)
	assert.Positive(t, notes.Source.Line)

	rules := result.Declarations[1]
	assert.Equal(t, "1723867400_allocation_rules", rules.ID)

	assert.Empty(t, Validate(result.Declarations))
	assert.Empty(t, AnalyzeDependencies(result.Declarations))
}

func TestLoadDir_WithBuiltins(t *testing.T) {
	result, errs := LoadDir("testdata/migrations", LoadModeFailFast)
	require.Empty(t, errs)

	reg := migrate.NewRegistry()
	for _, m := range migrate.Default().List() {
		require.NoError(t, reg.Register(m))
	}
	require.NoError(t, CompileAll(result.Declarations, reg))

	s := testutil.NewStore(t)
	runner := migrate.NewRunner(s, reg, migrate.WithLogger(zaptest.NewLogger(t)))
	ctx := context.Background()

	_, err := runner.Up(ctx, migrate.UpOptions{Count: 2})
	require.NoError(t, err)
	cols, err := s.ListCollections(ctx)
	require.NoError(t, err)
	before, err := schema.SnapshotHash(cols)
	require.NoError(t, err)

	res, err := runner.Up(ctx, migrate.UpOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1723867200_created_sessions", "1723867300_created_notes", "1723867400_allocation_rules"}, res.Executed)

	allocations, err := s.FindCollection(ctx, migrations.AllocationsCollectionID)
	require.NoError(t, err)
	require.NotNil(t, allocations.ListRule)
	_, ok := allocations.FieldByName("session_notes")
	assert.True(t, ok)

	notes, err := s.FindCollection(ctx, "notes")
	require.NoError(t, err)
	require.Len(t, notes.Fields, 2)

	_, err = runner.Down(ctx, migrate.DownOptions{Target: "1723867136_created_allocations"})
	require.NoError(t, err)

	cols, err = s.ListCollections(ctx)
	require.NoError(t, err)
	after, err := schema.SnapshotHash(cols)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestLoadDir_Invalid(t *testing.T) {
	result, errs := LoadDir("testdata/invalid", LoadModeCollectAll)
	require.Empty(t, errs, "the file parses; problems are reported by Validate")
	require.Len(t, result.Declarations, 1)

	got := codes(Validate(result.Declarations))
	assert.Contains(t, got, ErrInvalidSchema)
	assert.Contains(t, got, ErrInvalidRuleKind)
	assert.Contains(t, got, ErrInvalidRuleExpr)
}

func TestLoadDir_Errors(t *testing.T) {
	_, errs := LoadDir(filepath.Join(t.TempDir(), "missing"), LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), ErrCodeNotFound)

	empty := t.TempDir()
	_, errs = LoadDir(empty, LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), ErrCodeNoFiles)

	file := filepath.Join(empty, "readme.txt")
	require.NoError(t, os.WriteFile(file, []byte("hi"), 0o644))
	_, errs = LoadDir(file, LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "not a directory")
}

func TestLoadDir_CollectAll(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("id: ["), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("- 1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.yaml"), []byte("id: \"3_c\"\nup:\n  - op: delete_collection\n    collection: x\n"), 0o644))

	result, errs := LoadDir(dir, LoadModeCollectAll)
	assert.Len(t, errs, 2)
	require.Len(t, result.Declarations, 1)
	assert.Equal(t, "3_c", result.Declarations[0].ID)

	_, errs = LoadDir(dir, LoadModeFailFast)
	assert.Len(t, errs, 1)
}

func TestLoadDir_CUESyntaxError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.cue"), []byte("migration: {"), 0o644))

	_, errs := LoadDir(dir, LoadModeFailFast)
	require.Len(t, errs, 1)
	var cerr *CompileError
	require.ErrorAs(t, errs[0], &cerr)
	assert.Contains(t, cerr.Pos.File, "bad.cue")
}
