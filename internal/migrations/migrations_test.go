package migrations_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/roach88/catalogmigrate/internal/migrate"
	"github.com/roach88/catalogmigrate/internal/migrations"
	"github.com/roach88/catalogmigrate/internal/schema"
	"github.com/roach88/catalogmigrate/internal/store"
	"github.com/roach88/catalogmigrate/internal/testutil"
)

func newRunner(t *testing.T, s *store.Store) *migrate.Runner {
	t.Helper()
	return migrate.NewRunner(s, migrate.Default(),
		migrate.WithLogger(zaptest.NewLogger(t)),
		migrate.WithBatchGenerator(testutil.NewFixedBatchGenerator("batch-1")),
	)
}

func snapshot(t *testing.T, s *store.Store) string {
	t.Helper()
	cols, err := s.ListCollections(context.Background())
	require.NoError(t, err)
	hash, err := schema.SnapshotHash(cols)
	require.NoError(t, err)
	return hash
}

func TestRegistered(t *testing.T) {
	var ids []string
	for _, m := range migrate.Default().List() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"1723867000_init_users", "1723867136_created_allocations", "1723867200_created_sessions"}, ids)
}

func TestAllocationsCollection_Golden(t *testing.T) {
	col, err := migrations.AllocationsCollection()
	require.NoError(t, err)

	data, err := json.MarshalIndent(col, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "allocations_collection", append(data, '\n'))
}

func TestUp_CreatesAllocations(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()

	res, err := newRunner(t, s).Up(ctx, migrate.UpOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1723867000_init_users", "1723867136_created_allocations", "1723867200_created_sessions"}, res.Executed)
	assert.Equal(t, "batch-1", res.Batch)

	col, err := s.FindCollection(ctx, "allocations")
	require.NoError(t, err)
	assert.Equal(t, migrations.AllocationsCollectionID, col.ID)
	assert.Equal(t, schema.TypeBase, col.Type)
	require.Len(t, col.Fields, 4)

	wantFields := []struct {
		id, name string
		typ      schema.FieldType
	}{
		{"r6j9qfyb", "mentor_id", schema.FieldRelation},
		{"liqkccib", "mentee_id", schema.FieldRelation},
		{"tt0qulti", "allocated_on", schema.FieldDate},
		{"ryouc6yq", "status", schema.FieldSelect},
	}
	for i, want := range wantFields {
		assert.Equal(t, want.id, col.Fields[i].ID)
		assert.Equal(t, want.name, col.Fields[i].Name)
		assert.Equal(t, want.typ, col.Fields[i].Type())
		assert.False(t, col.Fields[i].Required)
	}

	mentor := col.Fields[0].Options.(schema.RelationOptions)
	assert.Equal(t, migrations.UsersCollectionID, mentor.CollectionID)
	assert.False(t, mentor.CascadeDelete)
	require.NotNil(t, mentor.MaxSelect)
	assert.Equal(t, 1, *mentor.MaxSelect)
	assert.Nil(t, mentor.MinSelect)

	status := col.Fields[3].Options.(schema.SelectOptions)
	assert.Equal(t, 1, status.MaxSelect)
	assert.Equal(t, []string{"active", "completed", "pending"}, status.Values)

	for _, kind := range schema.RuleKinds {
		assert.Nil(t, col.Rule(kind), "%s rule", kind)
	}
}

func TestUp_CreatesSessions(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()

	_, err := newRunner(t, s).Up(ctx, migrate.UpOptions{})
	require.NoError(t, err)

	col, err := s.FindCollection(ctx, "sessions")
	require.NoError(t, err)
	assert.Equal(t, migrations.SessionsCollectionID, col.ID)
	require.Len(t, col.Fields, 4)

	mentor := col.Fields[0].Options.(schema.RelationOptions)
	assert.Equal(t, "mentor_id", col.Fields[0].Name)
	assert.Equal(t, migrations.UsersCollectionID, mentor.CollectionID)
	assert.False(t, mentor.IsMultiple())

	students := col.Fields[1].Options.(schema.RelationOptions)
	assert.Equal(t, "session_students", col.Fields[1].Name)
	assert.Equal(t, migrations.AllocationsCollectionID, students.CollectionID)
	assert.True(t, students.IsMultiple())

	assert.Equal(t, schema.FieldText, col.Fields[2].Type())
	assert.Equal(t, schema.FieldDate, col.Fields[3].Type())
}

func TestSessionsDown_LeavesAllocations(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()
	runner := newRunner(t, s)

	_, err := runner.Up(ctx, migrate.UpOptions{Count: 2})
	require.NoError(t, err)
	withAllocations := snapshot(t, s)

	_, err = runner.Up(ctx, migrate.UpOptions{})
	require.NoError(t, err)
	res, err := runner.Down(ctx, migrate.DownOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1723867200_created_sessions"}, res.Executed)
	assert.Equal(t, withAllocations, snapshot(t, s))
}

func TestUp_SecondRunIsNoop(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()
	runner := newRunner(t, s)

	_, err := runner.Up(ctx, migrate.UpOptions{})
	require.NoError(t, err)
	before := snapshot(t, s)

	res, err := runner.Up(ctx, migrate.UpOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Executed)
	assert.Equal(t, []string{"1723867000_init_users", "1723867136_created_allocations", "1723867200_created_sessions"}, res.Skipped)
	assert.Equal(t, before, snapshot(t, s))
}

func TestUpDown_RestoresSnapshot(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()
	runner := newRunner(t, s)

	empty := snapshot(t, s)

	_, err := runner.Up(ctx, migrate.UpOptions{Count: 1})
	require.NoError(t, err)
	withUsers := snapshot(t, s)
	assert.NotEqual(t, empty, withUsers)

	_, err = runner.Up(ctx, migrate.UpOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, withUsers, snapshot(t, s))

	res, err := runner.Down(ctx, migrate.DownOptions{Count: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"1723867200_created_sessions", "1723867136_created_allocations"}, res.Executed)
	assert.Equal(t, withUsers, snapshot(t, s))

	_, err = runner.Down(ctx, migrate.DownOptions{All: true})
	require.NoError(t, err)
	assert.Equal(t, empty, snapshot(t, s))
}

func TestDown_AllocationsNotFoundAfterwards(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()
	runner := newRunner(t, s)

	_, err := runner.Up(ctx, migrate.UpOptions{})
	require.NoError(t, err)
	_, err = runner.Down(ctx, migrate.DownOptions{Count: 2})
	require.NoError(t, err)

	_, err = s.FindCollection(ctx, "allocations")
	assert.True(t, store.IsNotFound(err))

	_, err = s.FindCollection(ctx, "users")
	assert.NoError(t, err)
}

func TestAllocationsDown_TwiceFailsNotFound(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()

	_, err := newRunner(t, s).Up(ctx, migrate.UpOptions{})
	require.NoError(t, err)

	down := func() error {
		return s.RunInTx(ctx, func(tx *store.Tx) error {
			return migrations.CreatedAllocations.Down(ctx, tx)
		})
	}
	require.NoError(t, down())
	err = down()
	require.Error(t, err)
	assert.True(t, store.IsNotFound(err))
}

func TestUsersDown_DetachesAllocationRelations(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()

	_, err := newRunner(t, s).Up(ctx, migrate.UpOptions{})
	require.NoError(t, err)

	mentor := store.NewRecord(map[string]any{"name": "Grace", "role": "mentor"})
	require.NoError(t, s.SaveRecord(ctx, "users", mentor))
	mentee := store.NewRecord(map[string]any{"name": "Linus", "role": "mentee"})
	require.NoError(t, s.SaveRecord(ctx, "users", mentee))
	require.NoError(t, s.SaveRecord(ctx, "allocations", store.NewRecord(map[string]any{
		"mentor_id":    mentor.ID,
		"mentee_id":    mentee.ID,
		"allocated_on": "2024-08-17 10:00:00.000Z",
		"status":       "active",
	})))

	require.NoError(t, s.RunInTx(ctx, func(tx *store.Tx) error {
		return migrations.InitUsers.Down(ctx, tx)
	}))

	cols, err := s.ListCollections(ctx)
	require.NoError(t, err)
	known := map[string]bool{}
	for _, c := range cols {
		known[c.ID] = true
	}
	for _, c := range cols {
		for _, f := range c.Fields {
			if rel, ok := f.Options.(schema.RelationOptions); ok {
				assert.True(t, known[rel.CollectionID], "%s.%s targets missing %s", c.Name, f.Name, rel.CollectionID)
			}
		}
	}

	allocations, err := s.FindCollection(ctx, "allocations")
	require.NoError(t, err)
	require.Len(t, allocations.Fields, 2)

	records, err := s.ListRecords(ctx, "allocations")
	require.NoError(t, err)
	require.Len(t, records, 1, "non-cascading relations keep the record")
	assert.Equal(t, map[string]any{
		"allocated_on": "2024-08-17 10:00:00.000Z",
		"status":       "active",
	}, records[0].Data)
}

func TestAllocations_RecordValidation(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()

	_, err := newRunner(t, s).Up(ctx, migrate.UpOptions{})
	require.NoError(t, err)

	tests := []struct {
		name string
		data map[string]any
		code string
	}{
		{"status outside enum", map[string]any{"status": "cancelled"}, schema.ErrValueChoice},
		{"two statuses", map[string]any{"status": []any{"active", "pending"}}, schema.ErrValueRange},
		{"two mentors", map[string]any{"mentor_id": []any{"a", "b"}}, schema.ErrValueRange},
		{"missing mentor", map[string]any{"mentor_id": "nobody"}, schema.ErrRelationTarget},
		{"bad date", map[string]any{"allocated_on": "yesterday"}, schema.ErrValueType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.SaveRecord(ctx, "allocations", store.NewRecord(tt.data))
			var verr *schema.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.True(t, verr.HasCode(tt.code), "want %s, got %v", tt.code, verr.Errors)
		})
	}
}

func TestReopen_KeepsAppliedState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	ctx := context.Background()

	s1 := testutil.OpenStore(t, path)
	_, err := newRunner(t, s1).Up(ctx, migrate.UpOptions{})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2 := testutil.OpenStore(t, path)
	statuses, err := newRunner(t, s2).Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	for _, st := range statuses {
		assert.True(t, st.Applied, st.ID)
		assert.Equal(t, "batch-1", st.Batch)
	}

	res, err := newRunner(t, s2).Up(ctx, migrate.UpOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Executed)
}
