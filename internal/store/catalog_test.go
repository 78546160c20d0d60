package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/catalogmigrate/internal/schema"
)

func usersCollection() *schema.Collection {
	c := schema.NewAuthCollection("users_col", "users")
	c.Fields = []schema.Field{
		schema.MustField(schema.NewTextField("name_fld", "name", schema.TextOptions{})),
		schema.MustField(schema.NewSelectField("role_fld", "role", 1, "mentor", "mentee")),
	}
	return c
}

func relationTo(id, name, target string, cascade bool) schema.Field {
	return schema.MustField(schema.NewRelationField(id, name, schema.RelationOptions{
		CollectionID:  target,
		CascadeDelete: cascade,
		MaxSelect:     schema.IntPtr(1),
	}))
}

func requireValidationCode(t *testing.T, err error, code string) {
	t.Helper()
	var verr *schema.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.HasCode(code), "expected %s in %v", code, verr.Errors)
}

func TestSaveCollection_GeneratesIDsAndTimestamps(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	col := schema.NewBaseCollection("", "notes")
	col.Fields = []schema.Field{{Name: "title", Options: schema.TextOptions{}}}
	require.NoError(t, s.SaveCollection(ctx, col))

	assert.Equal(t, "col001", col.ID)
	assert.Equal(t, "fld001", col.Fields[0].ID)
	assert.False(t, col.Created.IsZero())
	assert.Equal(t, col.Created, col.Updated)

	got, err := s.FindCollection(ctx, "col001")
	require.NoError(t, err)
	assert.Equal(t, "notes", got.Name)
	assert.Equal(t, col.Created, got.Created)
}

func TestFindCollection_ByNameIgnoresCase(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveCollection(ctx, usersCollection()))

	got, err := s.FindCollection(ctx, "USERS")
	require.NoError(t, err)
	assert.Equal(t, "users_col", got.ID)
	assert.Equal(t, schema.TypeAuth, got.Type)
	require.Len(t, got.Fields, 2)
	assert.Equal(t, schema.FieldSelect, got.Fields[1].Type())
}

func TestFindCollection_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.FindCollection(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "collection", nf.Kind)
	assert.Equal(t, "missing", nf.Key)
}

func TestSaveCollection_UpdateKeepsCreated(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	col := usersCollection()
	require.NoError(t, s.SaveCollection(ctx, col))
	created := col.Created

	rule := `request.auth.id != ""`
	col.SetRule(schema.RuleList, &rule)
	require.NoError(t, s.SaveCollection(ctx, col))

	got, err := s.FindCollection(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, created, got.Created)
	assert.True(t, got.Updated.After(created))
	require.NotNil(t, got.ListRule)
	assert.Equal(t, rule, *got.ListRule)
}

func TestSaveCollection_NameConflict(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveCollection(ctx, usersCollection()))

	err := s.SaveCollection(ctx, schema.NewBaseCollection("other_col", "Users"))
	requireValidationCode(t, err, schema.ErrCollectionName)

	_, err = s.FindCollection(ctx, "other_col")
	assert.True(t, IsNotFound(err))
}

func TestSaveCollection_NameMayEqualAnotherID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveCollection(ctx, usersCollection()))

	col := schema.NewBaseCollection("other_col", "users_col")
	col.Fields = []schema.Field{
		schema.MustField(schema.NewTextField("title_fld", "title", schema.TextOptions{})),
	}
	require.NoError(t, s.SaveCollection(ctx, col))

	got, err := s.FindCollection(ctx, "users_col")
	require.NoError(t, err)
	assert.Equal(t, "users_col", got.ID, "an id match wins over a name match")

	got, err = s.FindCollection(ctx, "other_col")
	require.NoError(t, err)
	assert.Equal(t, "users_col", got.Name)
}

func TestSaveCollection_TypeIsImmutable(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveCollection(ctx, usersCollection()))

	changed := usersCollection()
	changed.Type = schema.TypeBase
	requireValidationCode(t, s.SaveCollection(ctx, changed), schema.ErrCollectionType)
}

func TestSaveCollection_UnknownRelationTarget(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	col := schema.NewBaseCollection("posts_col", "posts")
	col.Fields = []schema.Field{relationTo("author_fld", "author", "missing_col", false)}

	requireValidationCode(t, s.SaveCollection(ctx, col), schema.ErrRelationTarget)

	cols, err := s.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, cols)
}

func TestSaveCollection_SelfRelation(t *testing.T) {
	s := createTestStore(t)

	col := schema.NewBaseCollection("nodes_col", "nodes")
	col.Fields = []schema.Field{relationTo("parent_fld", "parent", "nodes_col", false)}
	require.NoError(t, s.SaveCollection(context.Background(), col))
}

func TestListCollections_CreationOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, s.SaveCollection(ctx, schema.NewBaseCollection("", name)))
	}

	cols, err := s.ListCollections(ctx)
	require.NoError(t, err)
	var names []string
	for _, c := range cols {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names)
}

func TestSaveCollection_ReshapesRecords(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	col := usersCollection()
	require.NoError(t, s.SaveCollection(ctx, col))
	require.NoError(t, s.SaveRecord(ctx, "users", NewRecord(map[string]any{"name": "Ada", "role": "mentor"})))

	updated := col.Clone()
	updated.Fields[0].Name = "full_name"
	require.True(t, updated.RemoveField("role"))
	require.NoError(t, s.SaveCollection(ctx, updated))

	records, err := s.ListRecords(ctx, "users")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, map[string]any{"full_name": "Ada"}, records[0].Data)
}

func TestDeleteCollection_DetachesRelations(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCollection(ctx, usersCollection()))

	posts := schema.NewBaseCollection("posts_col", "posts")
	posts.Fields = []schema.Field{
		schema.MustField(schema.NewTextField("title_fld", "title", schema.TextOptions{})),
		relationTo("author_fld", "author", "users_col", true),
	}
	require.NoError(t, s.SaveCollection(ctx, posts))

	tags := schema.NewBaseCollection("tags_col", "tags")
	tags.Fields = []schema.Field{
		schema.MustField(schema.NewTextField("label_fld", "label", schema.TextOptions{})),
		relationTo("owner_fld", "owner", "users_col", false),
	}
	require.NoError(t, s.SaveCollection(ctx, tags))

	user := NewRecord(map[string]any{"name": "Ada", "role": "mentor"})
	require.NoError(t, s.SaveRecord(ctx, "users", user))
	require.NoError(t, s.SaveRecord(ctx, "posts", NewRecord(map[string]any{"title": "hi", "author": user.ID})))
	require.NoError(t, s.SaveRecord(ctx, "posts", NewRecord(map[string]any{"title": "orphan"})))
	require.NoError(t, s.SaveRecord(ctx, "tags", NewRecord(map[string]any{"label": "go", "owner": user.ID})))

	users, err := s.FindCollection(ctx, "users")
	require.NoError(t, err)
	require.NoError(t, s.DeleteCollection(ctx, users))

	_, err = s.FindCollection(ctx, "users")
	assert.True(t, IsNotFound(err))

	gotPosts, err := s.FindCollection(ctx, "posts")
	require.NoError(t, err)
	_, ok := gotPosts.FieldByName("author")
	assert.False(t, ok, "relation field to deleted collection must be removed")

	postRecords, err := s.ListRecords(ctx, "posts")
	require.NoError(t, err)
	require.Len(t, postRecords, 1, "cascading relation deletes the referencing record")
	assert.Equal(t, "orphan", postRecords[0].GetString("title"))

	tagRecords, err := s.ListRecords(ctx, "tags")
	require.NoError(t, err)
	require.Len(t, tagRecords, 1)
	assert.Equal(t, map[string]any{"label": "go"}, tagRecords[0].Data)
}

func TestDeleteCollection_System(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	col := usersCollection()
	col.System = true
	require.NoError(t, s.SaveCollection(ctx, col))

	err := s.DeleteCollection(ctx, col)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSystemCollection))

	_, err = s.FindCollection(ctx, col.ID)
	assert.NoError(t, err)
}

func TestDeleteCollection_NotFound(t *testing.T) {
	s := createTestStore(t)

	err := s.DeleteCollection(context.Background(), schema.NewBaseCollection("ghost_col", "ghost"))
	assert.True(t, IsNotFound(err))
}
